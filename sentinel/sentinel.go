// Package sentinel bit-packs non-negative values so that a stored zero can be
// told apart from an empty slot.
//
// Zero-filled arena memory reads as 0, which the structures treat as "empty"
// or "null". A wrapped value has its sign bit set and is therefore never 0,
// even when the value itself is 0. IsWrapped distinguishes the two states
// without a separate tag field; the B+tree uses it to mark leaf nodes through
// their key-count field.
//
// Wrapping is defined only for non-negative values.
package sentinel

import "math"

const (
	intTag  = math.MinInt32
	longTag = math.MinInt64
)

// Wrap tags a non-negative int32. Wrap(0) != 0.
func Wrap(v int32) int32 {
	if v < 0 {
		panic("sentinel: cannot wrap negative value")
	}
	return v | intTag
}

// Unwrap removes the tag added by Wrap. Unwrapped values pass through.
func Unwrap(v int32) int32 {
	return v &^ intTag
}

// IsWrapped reports whether v carries the tag.
func IsWrapped(v int32) bool {
	return v < 0
}

// WrapLong tags a non-negative int64. WrapLong(0) != 0.
func WrapLong(v int64) int64 {
	if v < 0 {
		panic("sentinel: cannot wrap negative value")
	}
	return v | longTag
}

// UnwrapLong removes the tag added by WrapLong.
func UnwrapLong(v int64) int64 {
	return v &^ longTag
}

// IsWrappedLong reports whether v carries the tag.
func IsWrappedLong(v int64) bool {
	return v < 0
}
