// Package hashtable implements an open-addressed int64 -> int64 map stored in
// an off-heap arena.
//
// The region holds Capacity() buckets of two key/value pairs each. A key's
// home bucket is hash(key) mod Capacity(); probing advances one bucket at a
// time and wraps to address 0 at the end of the region. Probing is bounded to
// Config.MaxProbeWraps passes over the table, so a lookup that exhausts the
// bound reports "not found" even if the key might exist in a saturated table.
//
// When the number of keys exceeds Capacity()*LoadFactor the table rehashes
// into a larger arena: the first rehash adds one page, and every later rehash
// doubles the number of pages added.
package hashtable

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/offheap"
	"github.com/hupe1980/offheap/arena"
	"github.com/hupe1980/offheap/internal/hash"
)

// ErrProbeExhausted is returned by Put when no slot was found within the probe bound.
var ErrProbeExhausted = errors.New("hashtable: probe bound exhausted")

const (
	// DefaultLoadFactor is the fill ratio that triggers a rehash.
	DefaultLoadFactor = 0.75
	// DefaultMaxProbeWraps bounds a probe to two passes over the table.
	DefaultMaxProbeWraps = 2

	longProbeBuckets = 64
)

// Config tunes a Table. The zero value selects the defaults.
type Config struct {
	// InitialPages is the size of the first region in arena pages. Default 1.
	InitialPages int
	// MaxProbeWraps is the number of full passes a probe may make. Default 2.
	MaxProbeWraps int
	// LoadFactor is keys per bucket that triggers a rehash, in (0, 2].
	// Default 0.75.
	LoadFactor float64
}

func (c *Config) setDefaults() error {
	if c.InitialPages == 0 {
		c.InitialPages = 1
	}
	if c.MaxProbeWraps == 0 {
		c.MaxProbeWraps = DefaultMaxProbeWraps
	}
	if c.LoadFactor == 0 {
		c.LoadFactor = DefaultLoadFactor
	}
	if c.InitialPages < 0 || c.MaxProbeWraps < 0 || c.LoadFactor < 0 || c.LoadFactor > pairsPerBucket {
		return fmt.Errorf("%w: hashtable %+v", offheap.ErrInvalidConfig, *c)
	}
	return nil
}

// Table is an off-heap int64 -> int64 hash map.
type Table struct {
	cfg     Config
	opts    []offheap.Option
	logger  *offheap.Logger
	metrics offheap.MetricsCollector

	arena         *arena.Arena
	availableKeys int
	numberOfKeys  int
	pages         int
	increment     int

	longProbe rate.Sometimes
}

// New creates an empty table.
func New(cfg Config, opts ...offheap.Option) (*Table, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}

	// Every region arena shares one name so logs follow the table across rehashes.
	opts = offheap.WithDefaults(opts, offheap.WithName(arena.NewName("hashtable")))
	o := offheap.ApplyOptions(opts...)

	t := &Table{
		cfg:       cfg,
		opts:      opts,
		logger:    o.Logger.WithStructure("hashtable"),
		metrics:   o.Metrics,
		pages:     cfg.InitialPages,
		increment: 1,
		longProbe: rate.Sometimes{First: 1, Interval: time.Second},
	}

	a, buckets, err := t.newRegion(cfg.InitialPages)
	if err != nil {
		return nil, err
	}
	t.arena = a
	t.availableKeys = buckets
	return t, nil
}

func (t *Table) newRegion(pages int) (*arena.Arena, int, error) {
	a, err := arena.New(t.opts...)
	if err != nil {
		return nil, 0, err
	}
	buckets := max(pages*a.PageSize()/bucketSize, 1)
	if _, err := a.Alloc(buckets * bucketSize); err != nil {
		a.Release()
		return nil, 0, err
	}
	a.Advise(arena.AccessRandom)
	return a, buckets, nil
}

// Len returns the number of stored keys.
func (t *Table) Len() int { return t.numberOfKeys }

// Capacity returns the number of buckets (each holds two pairs).
func (t *Table) Capacity() int { return t.availableKeys }

// Arena exposes the current region arena for diagnostics.
// It is replaced on every rehash.
func (t *Table) Arena() *arena.Arena { return t.arena }

// find walks the probe sequence of key. It returns the bucket and pair
// holding key (found) or the first empty pair on the path (!found).
// ok is false when the probe bound was exhausted.
func (t *Table) find(key int64) (bucket arena.Addr, pair int, found, ok bool) {
	end := arena.Addr(t.arena.UsedSize())
	bucket = arena.Addr(hash.Slot(hash.Int64(key), t.availableKeys) * bucketSize) //nolint:gosec // slot < availableKeys
	limit := t.cfg.MaxProbeWraps * t.availableKeys

	for i := 0; i < limit; i++ {
		presence := t.arena.ReadLong(bucket + presenceOffset)
		for p := 0; p < pairsPerBucket; p++ {
			if !used(presence, p) {
				t.noteProbe(i)
				return bucket, p, false, true
			}
			if t.arena.ReadLong(keyAddr(bucket, p)) == key {
				t.noteProbe(i)
				return bucket, p, true, true
			}
		}
		bucket += bucketSize
		if bucket >= end {
			bucket = 0
		}
	}
	t.noteProbe(limit)
	return 0, 0, false, false
}

func (t *Table) noteProbe(buckets int) {
	if buckets < longProbeBuckets {
		return
	}
	t.longProbe.Do(func() {
		t.logger.LogLongProbe(context.Background(), buckets, t.availableKeys)
	})
}

// Get returns the value stored for key.
func (t *Table) Get(key int64) (int64, bool) {
	if t.arena.Released() {
		return 0, false
	}
	bucket, pair, found, _ := t.find(key)
	if !found {
		return 0, false
	}
	return t.arena.ReadLong(valueAddr(bucket, pair)), true
}

// Contains reports whether key is stored.
func (t *Table) Contains(key int64) bool {
	_, ok := t.Get(key)
	return ok
}

// Put stores value for key, replacing any previous value.
//
// If the insert crosses the load factor the table rehashes before returning.
// A failed rehash is returned as an error, but the pair itself is stored.
func (t *Table) Put(key, value int64) error {
	if t.arena.Released() {
		return offheap.ErrReleased
	}
	inserted, err := t.insert(key, value)
	if err != nil {
		return err
	}
	if inserted && float64(t.numberOfKeys) > float64(t.availableKeys)*t.cfg.LoadFactor {
		if err := t.rehash(); err != nil {
			return fmt.Errorf("hashtable: rehash: %w", err)
		}
	}
	return nil
}

func (t *Table) insert(key, value int64) (bool, error) {
	bucket, pair, found, ok := t.find(key)
	if !ok {
		return false, ErrProbeExhausted
	}
	t.arena.WriteLong(valueAddr(bucket, pair), value)
	if found {
		return false, nil
	}
	presence := t.arena.ReadLong(bucket + presenceOffset)
	t.arena.WriteLong(bucket+presenceOffset, presence|1<<pair)
	t.arena.WriteLong(keyAddr(bucket, pair), key)
	t.numberOfKeys++
	return true, nil
}

// rehash moves every pair into a larger region and releases the old one.
func (t *Table) rehash() error {
	start := time.Now()

	old, oldBuckets, oldKeys := t.arena, t.availableKeys, t.numberOfKeys
	pages := t.pages + t.increment

	a, buckets, err := t.newRegion(pages)
	if err != nil {
		return err
	}
	t.arena, t.availableKeys, t.numberOfKeys = a, buckets, 0

	// Old buckets are read sequentially and written through insert.
	end := arena.Addr(old.UsedSize())
	for bucket := arena.Addr(0); bucket < end; bucket += bucketSize {
		presence := old.ReadLong(bucket + presenceOffset)
		for p := 0; p < pairsPerBucket; p++ {
			if !used(presence, p) {
				continue
			}
			if _, err := t.insert(old.ReadLong(keyAddr(bucket, p)), old.ReadLong(valueAddr(bucket, p))); err != nil {
				a.Release()
				t.arena, t.availableKeys, t.numberOfKeys = old, oldBuckets, oldKeys
				return err
			}
		}
	}

	t.pages = pages
	t.increment *= 2
	old.Release()

	t.metrics.RecordRehash(t.numberOfKeys, time.Since(start))
	t.logger.LogRehash(context.Background(), t.numberOfKeys, oldBuckets, buckets, a.UsedSize())
	return nil
}

// Range calls fn for every stored pair in bucket order until fn returns false.
func (t *Table) Range(fn func(key, value int64) bool) {
	if t.arena.Released() {
		return
	}
	end := arena.Addr(t.arena.UsedSize())
	for bucket := arena.Addr(0); bucket < end; bucket += bucketSize {
		presence := t.arena.ReadLong(bucket + presenceOffset)
		for p := 0; p < pairsPerBucket; p++ {
			if used(presence, p) && !fn(t.arena.ReadLong(keyAddr(bucket, p)), t.arena.ReadLong(valueAddr(bucket, p))) {
				return
			}
		}
	}
}

// Release frees the current region. The table must not be used afterwards.
func (t *Table) Release() {
	t.arena.Release()
}
