// Package sparse implements a sparse int64 matrix over an off-heap B+tree.
//
// Entries are keyed by (x, y), so all entries of a row are adjacent in key
// order. A zero value is never stored: absence means zero. A roaring bitmap
// of populated rows lets row scans skip rows that have no entries.
package sparse

import (
	"iter"
	"math"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/offheap"
	"github.com/hupe1980/offheap/arena"
	"github.com/hupe1980/offheap/btree"
)

// Matrix is a sparse matrix over the full int64 coordinate range.
type Matrix struct {
	tree *btree.Tree
	rows *roaring64.Bitmap
}

// New creates an empty matrix on its own arena.
func New(opts ...offheap.Option) (*Matrix, error) {
	tree, err := btree.New(btree.Config{KeyLength: 2},
		offheap.WithDefaults(opts, offheap.WithName(arena.NewName("sparse-matrix")))...)
	if err != nil {
		return nil, err
	}
	return &Matrix{tree: tree, rows: roaring64.New()}, nil
}

// NewWithArena creates an empty matrix whose tree nodes are allocated from a.
// The caller keeps ownership of a.
func NewWithArena(a *arena.Arena, opts ...offheap.Option) (*Matrix, error) {
	tree, err := btree.NewWithArena(a, btree.Config{KeyLength: 2}, opts...)
	if err != nil {
		return nil, err
	}
	return &Matrix{tree: tree, rows: roaring64.New()}, nil
}

// rowBit maps a row to its bitmap position. Flipping the sign bit keeps
// negative rows ordered before non-negative ones.
func rowBit(x int64) uint64 {
	return uint64(x) ^ 1<<63 //nolint:gosec // bit reinterpretation
}

func rowOf(bit uint64) int64 {
	return int64(bit ^ 1<<63) //nolint:gosec // inverse of rowBit
}

// Put sets (x, y) to v. Putting 0 does nothing.
func (m *Matrix) Put(x, y, v int64) error {
	if v == 0 {
		return nil
	}
	if err := m.tree.Put(btree.Key{x, y}, v); err != nil {
		return err
	}
	m.rows.Add(rowBit(x))
	return nil
}

// Get returns the value at (x, y), or 0 if it was never set.
func (m *Matrix) Get(x, y int64) int64 {
	if !m.rows.Contains(rowBit(x)) {
		return 0
	}
	v, _ := m.tree.Get(btree.Key{x, y})
	return v
}

// Update sets (x, y) to fn(current). Unlike Put it stores the result even
// when it is 0.
func (m *Matrix) Update(x, y int64, fn func(prev int64) int64) error {
	err := m.tree.Upsert(btree.Key{x, y}, func(prev int64, _ bool) int64 {
		return fn(prev)
	})
	if err != nil {
		return err
	}
	m.rows.Add(rowBit(x))
	return nil
}

// IterateRow calls fn for every stored entry of row x in column order until
// fn returns false. The scan starts at the smallest column so negative
// columns are included.
func (m *Matrix) IterateRow(x int64, fn func(y, v int64) bool) error {
	if !m.rows.Contains(rowBit(x)) {
		return nil
	}
	return m.tree.Iterate(btree.Key{x, math.MinInt64}, func(k btree.Key, v int64) bool {
		if k[0] != x {
			return false
		}
		return fn(k[1], v)
	})
}

// Row returns an iterator over the (column, value) entries of row x.
func (m *Matrix) Row(x int64) iter.Seq2[int64, int64] {
	return func(yield func(int64, int64) bool) {
		_ = m.IterateRow(x, yield)
	}
}

// Iterate calls fn for every stored entry in row-major order until fn
// returns false.
func (m *Matrix) Iterate(fn func(x, y, v int64) bool) error {
	return m.tree.Iterate(nil, func(k btree.Key, v int64) bool {
		return fn(k[0], k[1], v)
	})
}

// HasRow reports whether row x has at least one stored entry.
func (m *Matrix) HasRow(x int64) bool {
	return m.rows.Contains(rowBit(x))
}

// Rows returns an iterator over the populated rows in ascending order.
func (m *Matrix) Rows() iter.Seq[int64] {
	return func(yield func(int64) bool) {
		it := m.rows.Iterator()
		for it.HasNext() {
			if !yield(rowOf(it.Next())) {
				return
			}
		}
	}
}

// NumRows returns the number of populated rows.
func (m *Matrix) NumRows() int {
	return int(m.rows.GetCardinality()) //nolint:gosec // bounded by Len
}

// Len returns the number of stored entries.
func (m *Matrix) Len() int { return m.tree.Len() }

// Tree exposes the underlying B+tree for diagnostics.
func (m *Matrix) Tree() *btree.Tree { return m.tree }

// Release frees the matrix. The matrix must not be used afterwards.
func (m *Matrix) Release() {
	m.tree.Release()
	m.rows.Clear()
}
