// Package flattable implements an append-only store of fixed-width int64 rows.
//
// Row r, column c lives at r*recordLength + c*8 in the table's arena. Rows are
// numbered 0, 1, 2, ... in append order with no gaps; there is no deletion.
package flattable

import (
	"fmt"

	"github.com/hupe1980/offheap"
	"github.com/hupe1980/offheap/arena"
)

// Table is a fixed-column row store.
type Table struct {
	arena        *arena.Arena
	columns      int
	recordLength int
	rows         int64
}

// New creates a table with the given column count.
func New(columns int, opts ...offheap.Option) (*Table, error) {
	if columns <= 0 {
		return nil, fmt.Errorf("%w: columns must be positive, got %d", offheap.ErrInvalidConfig, columns)
	}

	a, err := arena.New(offheap.WithDefaults(opts, offheap.WithName(arena.NewName("flattable")))...)
	if err != nil {
		return nil, err
	}
	a.Advise(arena.AccessSequential)

	return &Table{
		arena:        a,
		columns:      columns,
		recordLength: columns * arena.LongSize,
	}, nil
}

// Columns returns the configured column count.
func (t *Table) Columns() int { return t.columns }

// Rows returns the number of appended rows.
func (t *Table) Rows() int64 { return t.rows }

// Arena exposes the backing arena for diagnostics.
func (t *Table) Arena() *arena.Arena { return t.arena }

// AppendRow allocates a zeroed row and returns its index.
func (t *Table) AppendRow() (offheap.RowID, error) {
	addr, err := t.arena.Alloc(t.recordLength)
	if err != nil {
		return 0, err
	}
	row := offheap.RowID(uint64(addr) / uint64(t.recordLength)) //nolint:gosec // row count fits int64
	t.rows++
	return row, nil
}

func (t *Table) cellAddr(row offheap.RowID, col int) (arena.Addr, error) {
	if t.arena.Released() {
		return 0, offheap.ErrReleased
	}
	if row < 0 || int64(row) >= t.rows {
		return 0, fmt.Errorf("%w: row %d of %d", offheap.ErrOutOfBounds, row, t.rows)
	}
	if col < 0 || col >= t.columns {
		return 0, fmt.Errorf("%w: column %d of %d", offheap.ErrOutOfBounds, col, t.columns)
	}
	return arena.Addr(int64(row)*int64(t.recordLength) + int64(col)*arena.LongSize), nil //nolint:gosec // validated above
}

// WriteCell stores v at (row, col).
func (t *Table) WriteCell(row offheap.RowID, col int, v int64) error {
	addr, err := t.cellAddr(row, col)
	if err != nil {
		return err
	}
	t.arena.WriteLong(addr, v)
	return nil
}

// ReadCell loads the value at (row, col).
func (t *Table) ReadCell(row offheap.RowID, col int) (int64, error) {
	addr, err := t.cellAddr(row, col)
	if err != nil {
		return 0, err
	}
	return t.arena.ReadLong(addr), nil
}

// WriteRow stores values into row. len(values) must equal Columns().
func (t *Table) WriteRow(row offheap.RowID, values []int64) error {
	if len(values) != t.columns {
		return &offheap.ErrColumnMismatch{Expected: t.columns, Actual: len(values)}
	}
	base, err := t.cellAddr(row, 0)
	if err != nil {
		return err
	}
	for i, v := range values {
		t.arena.WriteLong(base+arena.Addr(i*arena.LongSize), v)
	}
	return nil
}

// ReadRow loads row into values. len(values) must equal Columns().
func (t *Table) ReadRow(row offheap.RowID, values []int64) error {
	if len(values) != t.columns {
		return &offheap.ErrColumnMismatch{Expected: t.columns, Actual: len(values)}
	}
	base, err := t.cellAddr(row, 0)
	if err != nil {
		return err
	}
	for i := range values {
		values[i] = t.arena.ReadLong(base + arena.Addr(i*arena.LongSize))
	}
	return nil
}

// Release frees the table's arena. The table must not be used afterwards.
func (t *Table) Release() {
	t.arena.Release()
}
