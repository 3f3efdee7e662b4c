// Package conv provides checked integer conversions.
//
// Arena addresses are uint64 while Go slices index with int and record fields
// store int32/int64. These helpers make every narrowing explicit and return
// ErrOverflow instead of silently truncating. Conversions that are provably
// safe by layout constraints use direct casts instead.
package conv
