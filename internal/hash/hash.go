package hash

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Int64 hashes a signed 64-bit key by its little-endian bytes.
func Int64(key int64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(key)) //nolint:gosec // bit reinterpretation
	return xxhash.Sum64(buf[:])
}

// String hashes s without copying it.
func String(s string) uint64 {
	return xxhash.Sum64String(s)
}

// Slot reduces h to a table index in [0, n). n must be positive.
func Slot(h uint64, n int) int {
	return int(h % uint64(n)) //nolint:gosec // n > 0 and the result is < n
}
