// Package symtab interns strings in off-heap memory.
//
// Every distinct string is stored once, as a (length, hash, bytes) record in
// an append-only data arena; the record address is the string's Symbol. A
// separate open-addressed lookup arena maps string hashes to records. Probing
// is linear, one slot at a time, wrapping at the end of the lookup region.
// The probe is bounded only by the table size unless Config.MaxProbe is set.
//
// When more than 75% of the lookup slots are in use the lookup region grows
// by one page and every entry is reinserted using its stored hash.
package symtab

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/offheap"
	"github.com/hupe1980/offheap/arena"
	"github.com/hupe1980/offheap/internal/conv"
	"github.com/hupe1980/offheap/internal/hash"
)

// ErrProbeExhausted is returned when no slot was found within the probe bound.
var ErrProbeExhausted = errors.New("symtab: probe bound exhausted")

// DefaultLoadFactor is the fill ratio of lookup slots that triggers a rehash.
const DefaultLoadFactor = 0.75

const longProbeSlots = 256

// Symbol identifies an interned string. It is the address of the string
// record and stays valid until the table is released.
type Symbol arena.Addr

// Config tunes a Table. The zero value selects the defaults.
type Config struct {
	// InitialPages is the size of the first lookup region in arena pages. Default 1.
	InitialPages int
	// MaxProbe caps the number of slots a probe may visit. 0 means no cap.
	MaxProbe int
	// LoadFactor is the slot fill ratio that triggers a rehash, in (0, 1).
	// Default 0.75.
	LoadFactor float64
}

func (c *Config) setDefaults() error {
	if c.InitialPages == 0 {
		c.InitialPages = 1
	}
	if c.LoadFactor == 0 {
		c.LoadFactor = DefaultLoadFactor
	}
	if c.InitialPages < 0 || c.MaxProbe < 0 || c.LoadFactor < 0 || c.LoadFactor >= 1 {
		return fmt.Errorf("%w: symtab %+v", offheap.ErrInvalidConfig, *c)
	}
	return nil
}

// Table is an off-heap string interning table.
type Table struct {
	cfg     Config
	opts    []offheap.Option
	logger  *offheap.Logger
	metrics offheap.MetricsCollector

	lookup *arena.Arena
	data   *arena.Arena
	slots  int
	pages  int
	count  int

	longProbe rate.Sometimes
}

// New creates an empty table.
func New(cfg Config, opts ...offheap.Option) (*Table, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}

	name := arena.NewName("symtab")
	o := offheap.ApplyOptions(opts...)

	data, err := arena.New(offheap.WithDefaults(opts, offheap.WithName(name+"-data"))...)
	if err != nil {
		return nil, err
	}
	data.Advise(arena.AccessSequential)

	t := &Table{
		cfg:       cfg,
		opts:      offheap.WithDefaults(opts, offheap.WithName(name+"-lookup")),
		logger:    o.Logger.WithStructure("symtab"),
		metrics:   o.Metrics,
		data:      data,
		pages:     cfg.InitialPages,
		longProbe: rate.Sometimes{First: 1, Interval: time.Second},
	}

	lookup, slots, err := t.newLookup(cfg.InitialPages)
	if err != nil {
		data.Release()
		return nil, err
	}
	t.lookup, t.slots = lookup, slots
	return t, nil
}

func (t *Table) newLookup(pages int) (*arena.Arena, int, error) {
	a, err := arena.New(t.opts...)
	if err != nil {
		return nil, 0, err
	}
	slots := max(pages*a.PageSize()/slotSize, 1)
	if _, err := a.Alloc(slots * slotSize); err != nil {
		a.Release()
		return nil, 0, err
	}
	a.Advise(arena.AccessRandom)
	return a, slots, nil
}

// Len returns the number of interned strings.
func (t *Table) Len() int { return t.count }

// Capacity returns the number of lookup slots.
func (t *Table) Capacity() int { return t.slots }

// DataSize returns the number of bytes used by string records.
func (t *Table) DataSize() uint64 { return t.data.UsedSize() }

// probe walks the slots of h starting at its home slot. It returns the
// address of the slot holding a record equal to b (found) or of the first
// empty slot (!found).
func (t *Table) probe(h uint64, b []byte) (slot arena.Addr, found bool, err error) {
	end := arena.Addr(t.lookup.UsedSize())
	slot = arena.Addr(hash.Slot(h, t.slots) * slotSize) //nolint:gosec // slot index < slots

	limit := t.slots
	if t.cfg.MaxProbe > 0 {
		limit = min(limit, t.cfg.MaxProbe)
	}

	for i := 0; i < limit; i++ {
		v := t.lookup.ReadLong(slot)
		if v == 0 {
			t.noteProbe(i)
			return slot, false, nil
		}
		if t.matches(decodeSlot(v), h, b) {
			t.noteProbe(i)
			return slot, true, nil
		}
		slot += slotSize
		if slot >= end {
			slot = 0
		}
	}
	return 0, false, ErrProbeExhausted
}

func (t *Table) noteProbe(slots int) {
	if slots < longProbeSlots {
		return
	}
	t.longProbe.Do(func() {
		t.logger.LogLongProbe(context.Background(), slots, t.slots)
	})
}

func (t *Table) matches(sym Symbol, h uint64, b []byte) bool {
	return t.recordHash(sym) == h &&
		t.recordLength(sym) == len(b) &&
		t.data.Equal(arena.Addr(sym)+bytesOffset, b)
}

// Symbol interns s and returns its symbol. Interning the same string again
// returns the same symbol.
func (t *Table) Symbol(s string) (Symbol, error) {
	if t.data.Released() {
		return 0, offheap.ErrReleased
	}

	b := []byte(s)
	h := hash.String(s)
	slot, found, err := t.probe(h, b)
	if err != nil {
		return 0, err
	}
	if found {
		return decodeSlot(t.lookup.ReadLong(slot)), nil
	}

	sym, err := t.appendRecord(h, b)
	if err != nil {
		return 0, err
	}
	t.lookup.WriteLong(slot, encodeSlot(sym))
	t.count++

	if float64(t.count) > float64(t.slots)*t.cfg.LoadFactor {
		if err := t.rehash(); err != nil {
			return sym, fmt.Errorf("symtab: rehash: %w", err)
		}
	}
	return sym, nil
}

func (t *Table) appendRecord(h uint64, b []byte) (Symbol, error) {
	// The record size must fit the int32 length field.
	size, err := conv.IntToInt32(headerSize + len(b))
	if err != nil {
		return 0, fmt.Errorf("%w: string of %d bytes: %w", offheap.ErrOutOfBounds, len(b), err)
	}
	addr, err := t.data.Alloc(int(size))
	if err != nil {
		return 0, err
	}
	t.data.WriteInt(addr+lengthOffset, size-headerSize)
	t.data.WriteLong(addr+hashOffset, int64(h)) //nolint:gosec // bit reinterpretation
	t.data.WriteBytes(addr+bytesOffset, b)
	return Symbol(addr), nil
}

// Lookup returns the symbol of s without interning it.
func (t *Table) Lookup(s string) (Symbol, bool) {
	if t.data.Released() {
		return 0, false
	}
	slot, found, err := t.probe(hash.String(s), []byte(s))
	if err != nil || !found {
		return 0, false
	}
	return decodeSlot(t.lookup.ReadLong(slot)), true
}

// Bytes returns a copy of the bytes interned as sym.
func (t *Table) Bytes(sym Symbol) ([]byte, error) {
	if t.data.Released() {
		return nil, offheap.ErrReleased
	}
	if uint64(sym)+headerSize > t.data.UsedSize() {
		return nil, fmt.Errorf("%w: symbol %d", offheap.ErrOutOfBounds, sym)
	}
	n := t.recordLength(sym)
	if n < 0 || uint64(sym)+headerSize+uint64(n) > t.data.UsedSize() {
		return nil, fmt.Errorf("%w: symbol %d", offheap.ErrOutOfBounds, sym)
	}
	buf := make([]byte, n)
	t.data.ReadBytes(arena.Addr(sym)+bytesOffset, buf)
	return buf, nil
}

// String returns the string interned as sym.
func (t *Table) String(sym Symbol) (string, error) {
	b, err := t.Bytes(sym)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// All returns an iterator over every interned string in interning order.
func (t *Table) All() iter.Seq2[Symbol, string] {
	return func(yield func(Symbol, string) bool) {
		if t.data.Released() {
			return
		}
		end := t.data.UsedSize()
		for addr := uint64(0); addr < end; {
			sym := Symbol(addr)
			n := t.recordLength(sym)
			buf := make([]byte, n)
			t.data.ReadBytes(arena.Addr(sym)+bytesOffset, buf)
			if !yield(sym, string(buf)) {
				return
			}
			addr += headerSize + uint64(n) //nolint:gosec // lengths are non-negative
		}
	}
}

// rehash grows the lookup region by one page and reinserts every entry
// using its stored hash. String records do not move.
func (t *Table) rehash() error {
	start := time.Now()
	pages := t.pages + 1

	lookup, slots, err := t.newLookup(pages)
	if err != nil {
		return err
	}

	old, oldSlots := t.lookup, t.slots
	end := arena.Addr(lookup.UsedSize())
	for src := arena.Addr(0); src < arena.Addr(old.UsedSize()); src += slotSize {
		v := old.ReadLong(src)
		if v == 0 {
			continue
		}
		dst := arena.Addr(hash.Slot(t.recordHash(decodeSlot(v)), slots) * slotSize) //nolint:gosec // slot index < slots
		for lookup.ReadLong(dst) != 0 {
			dst += slotSize
			if dst >= end {
				dst = 0
			}
		}
		lookup.WriteLong(dst, v)
	}

	t.lookup, t.slots, t.pages = lookup, slots, pages
	old.Release()

	t.metrics.RecordRehash(t.count, time.Since(start))
	t.logger.LogRehash(context.Background(), t.count, oldSlots, slots, lookup.UsedSize())
	return nil
}

// Release frees both arenas. The table must not be used afterwards.
func (t *Table) Release() {
	t.lookup.Release()
	t.data.Release()
}
