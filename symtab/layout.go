package symtab

import (
	"github.com/hupe1980/offheap/arena"
	"github.com/hupe1980/offheap/sentinel"
)

// String record layout in the data arena:
//
//	+0  int32 length
//	+4  int64 hash
//	+12 bytes
//
// Lookup slots are one long holding the wrapped record address, so the
// first record (address 0) is distinguishable from an empty slot.
const (
	lengthOffset = 0
	hashOffset   = arena.IntSize
	bytesOffset  = arena.IntSize + arena.LongSize
	headerSize   = bytesOffset

	slotSize = arena.LongSize
)

func encodeSlot(sym Symbol) int64 {
	return sentinel.WrapLong(int64(sym)) //nolint:gosec // data addresses fit int64
}

func decodeSlot(v int64) Symbol {
	return Symbol(sentinel.UnwrapLong(v)) //nolint:gosec // unwrapped addresses are non-negative
}

func (t *Table) recordLength(sym Symbol) int {
	return int(t.data.ReadInt(arena.Addr(sym) + lengthOffset))
}

func (t *Table) recordHash(sym Symbol) uint64 {
	return uint64(t.data.ReadLong(arena.Addr(sym) + hashOffset)) //nolint:gosec // bit reinterpretation
}
