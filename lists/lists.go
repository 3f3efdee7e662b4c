// Package lists stores many independent append-only singly linked lists of
// int64 values in one shared arena.
//
// A list handle is two longs (head, tail); a cell is two longs (value, next).
// Links are stored wrapped (see package sentinel) so that 0 always means
// "no cell", whatever address a cell happens to occupy.
package lists

import (
	"iter"

	"github.com/hupe1980/offheap"
	"github.com/hupe1980/offheap/arena"
	"github.com/hupe1980/offheap/sentinel"
)

// List is the address of a list handle.
type List arena.Addr

const (
	handleSize = 2 * arena.LongSize
	cellSize   = 2 * arena.LongSize

	headOffset  = 0
	tailOffset  = arena.LongSize
	valueOffset = 0
	nextOffset  = arena.LongSize
)

// Lists is a collection of linked lists sharing one arena.
type Lists struct {
	arena *arena.Arena
	cells int64
}

// New creates an empty collection.
func New(opts ...offheap.Option) (*Lists, error) {
	a, err := arena.New(offheap.WithDefaults(opts, offheap.WithName(arena.NewName("lists")))...)
	if err != nil {
		return nil, err
	}
	return &Lists{arena: a}, nil
}

// Arena exposes the backing arena for diagnostics.
func (l *Lists) Arena() *arena.Arena { return l.arena }

// Cells returns the total number of values appended across all lists.
func (l *Lists) Cells() int64 { return l.cells }

// CreateList allocates an empty list.
func (l *Lists) CreateList() (List, error) {
	addr, err := l.arena.Alloc(handleSize)
	if err != nil {
		return 0, err
	}
	return List(addr), nil
}

func (l *Lists) link(addr arena.Addr) arena.Addr {
	v := l.arena.ReadLong(addr)
	if v == 0 {
		return 0
	}
	return arena.Addr(sentinel.UnwrapLong(v)) //nolint:gosec // unwrapped links are non-negative
}

func (l *Lists) setLink(addr, target arena.Addr) {
	l.arena.WriteLong(addr, sentinel.WrapLong(int64(target))) //nolint:gosec // addresses fit int64
}

// Append adds value at the tail of list.
func (l *Lists) Append(list List, value int64) error {
	handle := arena.Addr(list)
	if err := l.validate(handle); err != nil {
		return err
	}

	cell, err := l.arena.Alloc(cellSize)
	if err != nil {
		return err
	}
	l.arena.WriteLong(cell+valueOffset, value)

	if l.arena.ReadLong(handle+tailOffset) == 0 {
		l.setLink(handle+headOffset, cell)
	} else {
		l.setLink(l.link(handle+tailOffset)+nextOffset, cell)
	}
	l.setLink(handle+tailOffset, cell)
	l.cells++
	return nil
}

func (l *Lists) validate(handle arena.Addr) error {
	if l.arena.Released() {
		return offheap.ErrReleased
	}
	if uint64(handle)+handleSize > l.arena.UsedSize() {
		return offheap.ErrOutOfBounds
	}
	return nil
}

// Iterate calls fn for every value of list in append order until fn returns false.
func (l *Lists) Iterate(list List, fn func(value int64) bool) error {
	if err := l.validate(arena.Addr(list)); err != nil {
		return err
	}
	for cell := l.link(arena.Addr(list) + headOffset); cell != 0; cell = l.link(cell + nextOffset) {
		if !fn(l.arena.ReadLong(cell + valueOffset)) {
			return nil
		}
	}
	return nil
}

// Values returns an iterator over the values of list. An invalid list yields nothing.
func (l *Lists) Values(list List) iter.Seq[int64] {
	return func(yield func(int64) bool) {
		_ = l.Iterate(list, yield)
	}
}

// Release frees the arena. The collection must not be used afterwards.
func (l *Lists) Release() {
	l.arena.Release()
}
