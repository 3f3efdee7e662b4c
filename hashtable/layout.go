package hashtable

import "github.com/hupe1980/offheap/arena"

// Bucket layout (5 longs):
//
//	+0  presence bits (bit 0: pair 0 used, bit 1: pair 1 used)
//	+8  key 0
//	+16 value 0
//	+24 key 1
//	+32 value 1
//
// Presence is explicit so any int64, including 0, is a valid key.
const (
	pairsPerBucket = 2
	bucketSize     = (1 + 2*pairsPerBucket) * arena.LongSize

	presenceOffset = 0
	pairsOffset    = arena.LongSize
	pairSize       = 2 * arena.LongSize
)

func keyAddr(bucket arena.Addr, pair int) arena.Addr {
	return bucket + pairsOffset + arena.Addr(pair*pairSize) //nolint:gosec // pair < pairsPerBucket
}

func valueAddr(bucket arena.Addr, pair int) arena.Addr {
	return keyAddr(bucket, pair) + arena.LongSize
}

func used(presence int64, pair int) bool {
	return presence&(1<<pair) != 0
}
