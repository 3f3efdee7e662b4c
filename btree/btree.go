// Package btree implements a B+tree over fixed-arity int64 keys whose nodes
// live in an off-heap arena.
//
// Nodes are fixed-size records addressed by offheap.NodeID; node n sits at
// base + n*recordLength. Leaves are chained left to right through next-leaf
// links so that range scans never revisit internal nodes.
//
// Insertion splits full nodes on the way down, so a parent always has room
// for the separator it receives. A leaf split moves the upper half of its
// entries to a new right sibling and copies the sibling's first key into the
// parent. An internal split moves the upper half of its keys and children
// and promotes the middle key.
//
// The tree has no deletion. When duplicates are allowed, a new entry is
// placed after every entry with an equal key.
package btree

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/hupe1980/offheap"
	"github.com/hupe1980/offheap/arena"
	"github.com/hupe1980/offheap/internal/conv"
)

const (
	// DefaultBlockSize is the number of keys per node.
	DefaultBlockSize = 64
	// MinBlockSize keeps both halves of a split internal node non-empty.
	MinBlockSize = 3
)

// Key is a tuple of KeyLength int64 components, ordered lexicographically.
type Key []int64

// Compare returns -1, 0 or +1 as a sorts before, equal to or after b.
func Compare(a, b Key) int {
	return slices.Compare(a, b)
}

// Config describes the tree shape.
type Config struct {
	// KeyLength is the number of int64 components per key. Default 1.
	KeyLength int
	// BlockSize is the number of keys per node. Default 64.
	BlockSize int
	// AllowDuplicates keeps every Put of an equal key as its own entry.
	AllowDuplicates bool
}

func (c *Config) setDefaults() error {
	if c.KeyLength == 0 {
		c.KeyLength = 1
	}
	if c.BlockSize == 0 {
		c.BlockSize = DefaultBlockSize
	}
	if c.KeyLength < 0 || c.BlockSize < MinBlockSize {
		return fmt.Errorf("%w: btree %+v", offheap.ErrInvalidConfig, *c)
	}
	// Key counts are stored as int32.
	if _, err := conv.IntToInt32(c.BlockSize); err != nil {
		return fmt.Errorf("%w: btree block size: %w", offheap.ErrInvalidConfig, err)
	}
	return nil
}

// Stats describes the tree shape.
type Stats struct {
	Nodes   int
	Leaves  int
	Height  int
	Entries int
}

// Tree is an off-heap B+tree.
type Tree struct {
	cfg     Config
	layout  layout
	logger  *offheap.Logger
	metrics offheap.MetricsCollector

	arena     *arena.Arena
	ownsArena bool
	base      arena.Addr
	released  bool

	root    offheap.NodeID
	height  int
	nodes   int
	leaves  int
	entries int
}

// New creates an empty tree on its own arena.
func New(cfg Config, opts ...offheap.Option) (*Tree, error) {
	a, err := arena.New(offheap.WithDefaults(opts, offheap.WithName(arena.NewName("btree")))...)
	if err != nil {
		return nil, err
	}
	t, err := newTree(a, cfg, opts)
	if err != nil {
		a.Release()
		return nil, err
	}
	t.ownsArena = true
	return t, nil
}

// NewWithArena creates an empty tree whose nodes are allocated from a.
// The arena may be shared with other structures; the tree never releases it.
func NewWithArena(a *arena.Arena, cfg Config, opts ...offheap.Option) (*Tree, error) {
	return newTree(a, cfg, opts)
}

func newTree(a *arena.Arena, cfg Config, opts []offheap.Option) (*Tree, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}
	if a.Released() {
		return nil, offheap.ErrReleased
	}
	o := offheap.ApplyOptions(opts...)

	t := &Tree{
		cfg:     cfg,
		layout:  newLayout(cfg.KeyLength, cfg.BlockSize),
		logger:  o.Logger.WithStructure("btree").WithArena(a.Name()),
		metrics: o.Metrics,
		arena:   a,
	}

	base, err := a.Alloc(t.layout.recordLength)
	if err != nil {
		return nil, err
	}
	t.base = base
	t.root = 0
	t.nodes, t.leaves, t.height = 1, 1, 1
	t.setCount(t.root, 0, true)
	return t, nil
}

// Config returns the effective configuration.
func (t *Tree) Config() Config { return t.cfg }

// Arena returns the arena holding the nodes.
func (t *Tree) Arena() *arena.Arena { return t.arena }

// Len returns the number of entries.
func (t *Tree) Len() int { return t.entries }

// Stats returns the current tree shape.
func (t *Tree) Stats() Stats {
	return Stats{
		Nodes:   t.nodes,
		Leaves:  t.leaves,
		Height:  t.height,
		Entries: t.entries,
	}
}

func (t *Tree) checkKey(k Key) error {
	if t.released || t.arena.Released() {
		return offheap.ErrReleased
	}
	if len(k) != t.cfg.KeyLength {
		return fmt.Errorf("%w: key has %d components, want %d", offheap.ErrOutOfBounds, len(k), t.cfg.KeyLength)
	}
	return nil
}

// allocNode allocates a zeroed node record. Records are kept on a
// recordLength grid relative to base so ids stay address-derived even when
// other structures allocate from the same arena in between.
func (t *Tree) allocNode() (offheap.NodeID, error) {
	rl := uint64(t.layout.recordLength) //nolint:gosec // recordLength > 0
	if pad := (t.arena.UsedSize() - uint64(t.base)) % rl; pad != 0 {
		n, err := conv.Uint64ToInt(rl - pad)
		if err != nil {
			return 0, err
		}
		if _, err := t.arena.Alloc(n); err != nil {
			return 0, err
		}
	}

	addr, err := t.arena.Alloc(t.layout.recordLength)
	if err != nil {
		return 0, err
	}
	id, err := conv.Uint64ToUint32((uint64(addr) - uint64(t.base)) / rl)
	if err != nil {
		return 0, fmt.Errorf("%w: node id: %w", offheap.ErrOutOfBounds, err)
	}
	t.nodes++
	return offheap.NodeID(id), nil
}

// Put stores value under key. Without duplicates an existing entry is
// replaced; with duplicates a new entry is added after the equal ones.
func (t *Tree) Put(key Key, value int64) error {
	return t.Upsert(key, func(int64, bool) int64 { return value })
}

// Upsert stores fn(prev, found) under key. Without duplicates fn sees the
// current value of an existing entry; with duplicates it is always called
// with (0, false) and a new entry is added.
func (t *Tree) Upsert(key Key, fn func(prev int64, found bool) int64) error {
	if err := t.checkKey(key); err != nil {
		return err
	}

	if t.count(t.root) == t.cfg.BlockSize {
		if err := t.growRoot(); err != nil {
			return err
		}
	}

	n := t.root
	for !t.isLeaf(n) {
		i := t.upperBound(n, key)
		c := t.child(n, i)
		if t.count(c) == t.cfg.BlockSize {
			if err := t.splitChild(n, i); err != nil {
				return err
			}
			if t.compareKey(n, i, key) <= 0 {
				i++
			}
			c = t.child(n, i)
		}
		n = c
	}

	t.insertIntoLeaf(n, key, fn)
	return nil
}

func (t *Tree) growRoot() error {
	root, err := t.allocNode()
	if err != nil {
		return err
	}
	t.setCount(root, 0, false)
	t.setChild(root, 0, t.root)
	if err := t.splitChild(root, 0); err != nil {
		// The record stays allocated but is never reachable.
		t.nodes--
		return err
	}
	t.root = root
	t.height++
	t.logger.DebugContext(context.Background(), "root split", "root", root, "height", t.height)
	return nil
}

// upperBound returns the index of the first key of internal node n that is
// strictly greater than k, i.e. the child an insertion of k descends into.
func (t *Tree) upperBound(n offheap.NodeID, k Key) int {
	c := t.count(n)
	for i := 0; i < c; i++ {
		if t.compareKey(n, i, k) > 0 {
			return i
		}
	}
	return c
}

// lowerBound returns the index of the first key of n that is >= k.
func (t *Tree) lowerBound(n offheap.NodeID, k Key) int {
	c := t.count(n)
	for i := 0; i < c; i++ {
		if t.compareKey(n, i, k) >= 0 {
			return i
		}
	}
	return c
}

func (t *Tree) insertIntoLeaf(n offheap.NodeID, key Key, fn func(int64, bool) int64) {
	c := t.count(n)
	i := 0
	for ; i < c; i++ {
		cmp := t.compareKey(n, i, key)
		if cmp == 0 && !t.cfg.AllowDuplicates {
			t.setValue(n, i, fn(t.value(n, i), true))
			return
		}
		if cmp > 0 {
			break
		}
	}

	t.shiftRight(n, i, c, 0)
	t.writeKey(n, i, key)
	t.setValue(n, i, fn(0, false))
	t.setCount(n, c+1, true)
	t.entries++
}

// splitChild splits the full i-th child of parent p, which must have room
// for one more key.
func (t *Tree) splitChild(p offheap.NodeID, i int) error {
	left := t.child(p, i)
	right, err := t.allocNode()
	if err != nil {
		return err
	}

	l := t.layout
	c := t.count(left)
	mid := l.blockSize / 2
	leaf := t.isLeaf(left)

	if leaf {
		m := c - mid
		t.arena.TransferBytes(t.keyAddr(left, mid), t.keyAddr(right, 0), m*l.keyBytes)
		t.arena.TransferBytes(t.slotAddr(left, mid), t.slotAddr(right, 0), m*arena.LongSize)
		next, ok := t.next(left)
		t.setNext(right, next, ok)
		t.setNext(left, right, true)
		t.setCount(right, m, true)
		t.setCount(left, mid, true)
		t.leaves++
	} else {
		m := c - mid - 1
		t.arena.TransferBytes(t.keyAddr(left, mid+1), t.keyAddr(right, 0), m*l.keyBytes)
		t.arena.TransferBytes(t.slotAddr(left, mid+1), t.slotAddr(right, 0), (m+1)*arena.LongSize)
		t.setCount(right, m, false)
	}

	pc := t.count(p)
	t.shiftRight(p, i, pc, 1)
	if leaf {
		t.arena.TransferBytes(t.keyAddr(right, 0), t.keyAddr(p, i), l.keyBytes)
	} else {
		t.arena.TransferBytes(t.keyAddr(left, mid), t.keyAddr(p, i), l.keyBytes)
		t.setCount(left, mid, false)
	}
	t.setChild(p, i+1, right)
	t.setCount(p, pc+1, false)

	t.metrics.RecordSplit(leaf)
	return nil
}

// seek returns the first entry whose key is >= k, descending by lower
// bound so entries equal to a separator are found on either side of it.
func (t *Tree) seek(k Key) (offheap.NodeID, int, bool) {
	n := t.root
	for !t.isLeaf(n) {
		n = t.child(n, t.lowerBound(n, k))
	}
	return t.settle(n, t.lowerBound(n, k))
}

// settle moves (n, i) forward along the leaf chain to the next existing entry.
func (t *Tree) settle(n offheap.NodeID, i int) (offheap.NodeID, int, bool) {
	for i >= t.count(n) {
		next, ok := t.next(n)
		if !ok {
			return 0, 0, false
		}
		n, i = next, 0
	}
	return n, i, true
}

func (t *Tree) first() (offheap.NodeID, int, bool) {
	n := t.root
	for !t.isLeaf(n) {
		n = t.child(n, 0)
	}
	return t.settle(n, 0)
}

// Get returns the value of the first entry equal to key. Keys of the wrong
// arity are never found.
func (t *Tree) Get(key Key) (int64, bool) {
	if t.checkKey(key) != nil {
		return 0, false
	}
	n, i, ok := t.seek(key)
	if !ok || t.compareKey(n, i, key) != 0 {
		return 0, false
	}
	return t.value(n, i), true
}

// Contains reports whether an entry equal to key exists.
func (t *Tree) Contains(key Key) bool {
	_, ok := t.Get(key)
	return ok
}

// Iterate calls fn for every entry with a key >= start, in key order, until
// fn returns false. A nil start iterates from the smallest key. Entries with
// equal keys are visited in insertion order.
func (t *Tree) Iterate(start Key, fn func(key Key, value int64) bool) error {
	var (
		n  offheap.NodeID
		i  int
		ok bool
	)
	if start == nil {
		if t.released || t.arena.Released() {
			return offheap.ErrReleased
		}
		n, i, ok = t.first()
	} else {
		if err := t.checkKey(start); err != nil {
			return err
		}
		n, i, ok = t.seek(start)
	}

	for ok {
		if !fn(t.readKey(n, i), t.value(n, i)) {
			return nil
		}
		n, i, ok = t.settle(n, i+1)
	}
	return nil
}

// All returns an iterator over the entries with a key >= start.
// An invalid start yields nothing.
func (t *Tree) All(start Key) iter.Seq2[Key, int64] {
	return func(yield func(Key, int64) bool) {
		_ = t.Iterate(start, yield)
	}
}

// Release frees the arena if the tree owns it. A tree on a shared arena
// only becomes unusable; the arena owner releases the memory.
func (t *Tree) Release() {
	if t.released {
		return
	}
	t.released = true
	if t.ownsArena {
		t.arena.Release()
	}
}
