package btree

import (
	"fmt"

	"github.com/hupe1980/offheap"
	"github.com/hupe1980/offheap/arena"
	"github.com/hupe1980/offheap/internal/conv"
	"github.com/hupe1980/offheap/sentinel"
)

// Node record layout:
//
//	+0                     int32 key count (wrapped for leaves)
//	+4                     BlockSize keys of KeyLength longs
//	+4+BlockSize*keyBytes  BlockSize+1 longs
//
// Internal nodes use the long slots as child node ids. Leaves store one
// value per key and keep the wrapped id of the next leaf in the last slot
// (0 when there is none).
const (
	countOffset = 0
	keysOffset  = arena.IntSize
)

type layout struct {
	keyLength    int
	blockSize    int
	keyBytes     int
	slotsOffset  int
	recordLength int
}

func newLayout(keyLength, blockSize int) layout {
	keyBytes := keyLength * arena.LongSize
	slotsOffset := keysOffset + blockSize*keyBytes
	return layout{
		keyLength:    keyLength,
		blockSize:    blockSize,
		keyBytes:     keyBytes,
		slotsOffset:  slotsOffset,
		recordLength: slotsOffset + (blockSize+1)*arena.LongSize,
	}
}

func (t *Tree) nodeAddr(n offheap.NodeID) arena.Addr {
	return t.base + arena.Addr(uint64(n)*uint64(t.layout.recordLength)) //nolint:gosec // recordLength > 0
}

func (t *Tree) isLeaf(n offheap.NodeID) bool {
	return sentinel.IsWrapped(t.arena.ReadInt(t.nodeAddr(n) + countOffset))
}

func (t *Tree) count(n offheap.NodeID) int {
	c := t.arena.ReadInt(t.nodeAddr(n) + countOffset)
	if sentinel.IsWrapped(c) {
		return int(sentinel.Unwrap(c))
	}
	return int(c)
}

// setCount panics if c does not fit the int32 count field, which the
// block size validation in Config rules out.
func (t *Tree) setCount(n offheap.NodeID, c int, leaf bool) {
	v, err := conv.IntToInt32(c)
	if err != nil {
		panic(fmt.Errorf("btree: node %d count: %w", n, err))
	}
	if leaf {
		v = sentinel.Wrap(v)
	}
	t.arena.WriteInt(t.nodeAddr(n)+countOffset, v)
}

func (t *Tree) keyAddr(n offheap.NodeID, i int) arena.Addr {
	return t.nodeAddr(n) + arena.Addr(keysOffset+i*t.layout.keyBytes) //nolint:gosec // i < blockSize
}

func (t *Tree) slotAddr(n offheap.NodeID, i int) arena.Addr {
	return t.nodeAddr(n) + arena.Addr(t.layout.slotsOffset+i*arena.LongSize) //nolint:gosec // i <= blockSize
}

// compareKey compares the i-th key of n with k.
func (t *Tree) compareKey(n offheap.NodeID, i int, k Key) int {
	addr := t.keyAddr(n, i)
	for j, v := range k {
		s := t.arena.ReadLong(addr + arena.Addr(j*arena.LongSize)) //nolint:gosec // j < keyLength
		switch {
		case s < v:
			return -1
		case s > v:
			return 1
		}
	}
	return 0
}

func (t *Tree) readKey(n offheap.NodeID, i int) Key {
	addr := t.keyAddr(n, i)
	k := make(Key, t.layout.keyLength)
	for j := range k {
		k[j] = t.arena.ReadLong(addr + arena.Addr(j*arena.LongSize)) //nolint:gosec // j < keyLength
	}
	return k
}

func (t *Tree) writeKey(n offheap.NodeID, i int, k Key) {
	addr := t.keyAddr(n, i)
	for j, v := range k {
		t.arena.WriteLong(addr+arena.Addr(j*arena.LongSize), v) //nolint:gosec // j < keyLength
	}
}

func (t *Tree) child(n offheap.NodeID, i int) offheap.NodeID {
	return offheap.NodeID(t.arena.ReadLong(t.slotAddr(n, i))) //nolint:gosec // node ids fit uint32
}

func (t *Tree) setChild(n offheap.NodeID, i int, c offheap.NodeID) {
	t.arena.WriteLong(t.slotAddr(n, i), int64(c))
}

func (t *Tree) value(n offheap.NodeID, i int) int64 {
	return t.arena.ReadLong(t.slotAddr(n, i))
}

func (t *Tree) setValue(n offheap.NodeID, i int, v int64) {
	t.arena.WriteLong(t.slotAddr(n, i), v)
}

func (t *Tree) next(n offheap.NodeID) (offheap.NodeID, bool) {
	v := t.arena.ReadLong(t.slotAddr(n, t.layout.blockSize))
	if v == 0 {
		return 0, false
	}
	return offheap.NodeID(sentinel.UnwrapLong(v)), true //nolint:gosec // node ids fit uint32
}

func (t *Tree) setNext(n offheap.NodeID, next offheap.NodeID, ok bool) {
	var v int64
	if ok {
		v = sentinel.WrapLong(int64(next))
	}
	t.arena.WriteLong(t.slotAddr(n, t.layout.blockSize), v)
}

// shiftRight moves keys [from, count) and the matching slots one position
// right, opening a gap at from. slotBias is 1 for internal nodes, whose
// child i+1 sits to the right of key i.
func (t *Tree) shiftRight(n offheap.NodeID, from, count, slotBias int) {
	if m := count - from; m > 0 {
		t.arena.TransferBytes(t.keyAddr(n, from), t.keyAddr(n, from+1), m*t.layout.keyBytes)
		t.arena.TransferBytes(t.slotAddr(n, from+slotBias), t.slotAddr(n, from+slotBias+1), m*arena.LongSize)
	}
}
