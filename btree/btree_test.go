package btree

import (
	"math"
	"math/rand/v2"
	"slices"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/offheap"
	"github.com/hupe1980/offheap/arena"
	"github.com/hupe1980/offheap/resource"
)

func newTestTree(t *testing.T, cfg Config, opts ...offheap.Option) *Tree {
	t.Helper()
	tr, err := New(cfg, append([]offheap.Option{offheap.WithPageSize(512)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(tr.Release)
	return tr
}

func collect(t *testing.T, tr *Tree, start Key) ([]Key, []int64) {
	t.Helper()
	var keys []Key
	var values []int64
	require.NoError(t, tr.Iterate(start, func(k Key, v int64) bool {
		keys = append(keys, k)
		values = append(values, v)
		return true
	}))
	return keys, values
}

func TestRootSplitsOnFifthInsert(t *testing.T) {
	tr := newTestTree(t, Config{KeyLength: 1, BlockSize: 4})

	for k := int64(1); k <= 4; k++ {
		require.NoError(t, tr.Put(Key{k}, k*10))
	}
	assert.Equal(t, 1, tr.Stats().Height)
	assert.Equal(t, 1, tr.Stats().Nodes)

	require.NoError(t, tr.Put(Key{5}, 50))
	assert.Equal(t, 2, tr.Stats().Height)
	assert.Equal(t, 3, tr.Stats().Nodes, "root plus two leaves")

	for k := int64(6); k <= 10; k++ {
		require.NoError(t, tr.Put(Key{k}, k*10))
	}

	keys, values := collect(t, tr, Key{1})
	require.Len(t, keys, 10)
	for i := range keys {
		assert.Equal(t, Key{int64(i + 1)}, keys[i])
		assert.Equal(t, int64(i+1)*10, values[i])
	}
}

func TestGet(t *testing.T) {
	tr := newTestTree(t, Config{BlockSize: 4})

	for _, k := range []int64{40, 10, 30, 20, 0, -5} {
		require.NoError(t, tr.Put(Key{k}, k+1))
	}

	for _, k := range []int64{40, 10, 30, 20, 0, -5} {
		v, ok := tr.Get(Key{k})
		assert.True(t, ok, "key %d", k)
		assert.Equal(t, k+1, v)
	}

	_, ok := tr.Get(Key{15})
	assert.False(t, ok)
	assert.False(t, tr.Contains(Key{100}))
	assert.True(t, tr.Contains(Key{0}))
}

func TestPut_ReplacesWithoutDuplicates(t *testing.T) {
	tr := newTestTree(t, Config{BlockSize: 4})

	for i := 0; i < 3; i++ {
		for k := int64(0); k < 20; k++ {
			require.NoError(t, tr.Put(Key{k}, k+int64(i)))
		}
	}
	assert.Equal(t, 20, tr.Len())

	v, ok := tr.Get(Key{7})
	assert.True(t, ok)
	assert.Equal(t, int64(9), v)
}

func TestUpsert_Accumulates(t *testing.T) {
	tr := newTestTree(t, Config{KeyLength: 2, BlockSize: 4})
	add := func(delta int64) func(int64, bool) int64 {
		return func(prev int64, _ bool) int64 { return prev + delta }
	}

	require.NoError(t, tr.Upsert(Key{1, 2}, add(5)))
	require.NoError(t, tr.Upsert(Key{1, 2}, add(7)))

	v, ok := tr.Get(Key{1, 2})
	assert.True(t, ok)
	assert.Equal(t, int64(12), v)
	assert.Equal(t, 1, tr.Len())

	var seen []bool
	require.NoError(t, tr.Upsert(Key{3, 3}, func(prev int64, found bool) int64 {
		seen = append(seen, found)
		return 1
	}))
	require.NoError(t, tr.Upsert(Key{3, 3}, func(prev int64, found bool) int64 {
		seen = append(seen, found)
		assert.Equal(t, int64(1), prev)
		return 2
	}))
	assert.Equal(t, []bool{false, true}, seen)
}

func TestDuplicates_KeepEveryEntry(t *testing.T) {
	tr := newTestTree(t, Config{BlockSize: 4, AllowDuplicates: true})

	const n = 25
	require.NoError(t, tr.Put(Key{1}, -1))
	for i := int64(0); i < n; i++ {
		require.NoError(t, tr.Put(Key{5}, i))
	}
	require.NoError(t, tr.Put(Key{9}, -9))

	assert.Equal(t, n+2, tr.Len())

	var values []int64
	for k, v := range tr.All(Key{5}) {
		if k[0] != 5 {
			break
		}
		values = append(values, v)
	}
	require.Len(t, values, n)
	for i, v := range values {
		assert.Equal(t, int64(i), v, "equal keys iterate in insertion order")
	}

	v, ok := tr.Get(Key{5})
	assert.True(t, ok)
	assert.Equal(t, int64(0), v, "Get returns the oldest equal entry")
}

func TestDuplicates_UpsertAlwaysInserts(t *testing.T) {
	tr := newTestTree(t, Config{BlockSize: 4, AllowDuplicates: true})

	for i := 0; i < 3; i++ {
		require.NoError(t, tr.Upsert(Key{1}, func(prev int64, found bool) int64 {
			assert.False(t, found)
			assert.Zero(t, prev)
			return 1
		}))
	}
	assert.Equal(t, 3, tr.Len())
}

func TestIterate_StartsAtLowerBound(t *testing.T) {
	tr := newTestTree(t, Config{BlockSize: 4})
	for k := int64(0); k < 100; k += 10 {
		require.NoError(t, tr.Put(Key{k}, k))
	}

	keys, _ := collect(t, tr, Key{35})
	require.NotEmpty(t, keys)
	assert.Equal(t, Key{40}, keys[0])
	assert.Len(t, keys, 6)

	keys, _ = collect(t, tr, Key{1000})
	assert.Empty(t, keys)

	keys, _ = collect(t, tr, nil)
	assert.Len(t, keys, 10)
}

func TestIterate_EarlyStop(t *testing.T) {
	tr := newTestTree(t, Config{BlockSize: 4})
	for k := int64(0); k < 50; k++ {
		require.NoError(t, tr.Put(Key{k}, k))
	}

	count := 0
	require.NoError(t, tr.Iterate(Key{0}, func(Key, int64) bool {
		count++
		return count < 7
	}))
	assert.Equal(t, 7, count)
}

func TestRandomKeys_MatchReference(t *testing.T) {
	tests := []struct {
		name      string
		blockSize int
	}{
		{"min block", MinBlockSize},
		{"odd block", 5},
		{"default block", DefaultBlockSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := &offheap.BasicMetricsCollector{}
			tr := newTestTree(t, Config{KeyLength: 2, BlockSize: tt.blockSize}, offheap.WithMetricsCollector(metrics))
			rng := rand.New(rand.NewPCG(1, uint64(tt.blockSize)))

			ref := map[[2]int64]int64{}
			for i := 0; i < 20000; i++ {
				k := [2]int64{rng.Int64N(100) - 50, rng.Int64N(1000)}
				v := rng.Int64()
				require.NoError(t, tr.Put(Key{k[0], k[1]}, v))
				ref[k] = v
			}
			assert.Equal(t, len(ref), tr.Len())

			want := make([]Key, 0, len(ref))
			for k := range ref {
				want = append(want, Key{k[0], k[1]})
			}
			slices.SortFunc(want, Compare)

			keys, values := collect(t, tr, nil)
			require.Equal(t, want, keys)
			for i, k := range keys {
				assert.Equal(t, ref[[2]int64{k[0], k[1]}], values[i])
			}

			for k, v := range ref {
				got, ok := tr.Get(Key{k[0], k[1]})
				require.True(t, ok)
				assert.Equal(t, v, got)
			}

			stats := metrics.GetStats()
			assert.Positive(t, stats.LeafSplits)
			assert.Positive(t, stats.InternalSplits)
			assert.Greater(t, tr.Stats().Height, 2)
		})
	}
}

func TestRandomDuplicates_StableOrder(t *testing.T) {
	tr := newTestTree(t, Config{BlockSize: 3, AllowDuplicates: true})
	rng := rand.New(rand.NewPCG(7, 7))

	type entry struct {
		key int64
		seq int64
	}
	var ref []entry
	for i := int64(0); i < 3000; i++ {
		k := rng.Int64N(40)
		require.NoError(t, tr.Put(Key{k}, i))
		ref = append(ref, entry{k, i})
	}
	sort.SliceStable(ref, func(a, b int) bool { return ref[a].key < ref[b].key })

	keys, values := collect(t, tr, nil)
	require.Len(t, keys, len(ref))
	for i, e := range ref {
		assert.Equal(t, Key{e.key}, keys[i])
		assert.Equal(t, e.seq, values[i])
	}

	// A lookup of any present key finds its oldest entry.
	for _, e := range ref {
		got, ok := tr.Get(Key{e.key})
		require.True(t, ok)
		first := slices.IndexFunc(ref, func(x entry) bool { return x.key == e.key })
		assert.Equal(t, ref[first].seq, got)
	}
}

func TestKeyLengthMismatch(t *testing.T) {
	tr := newTestTree(t, Config{KeyLength: 2})

	assert.ErrorIs(t, tr.Put(Key{1}, 1), offheap.ErrOutOfBounds)
	assert.ErrorIs(t, tr.Iterate(Key{1, 2, 3}, func(Key, int64) bool { return true }), offheap.ErrOutOfBounds)
	assert.False(t, tr.Contains(Key{1}))
}

func TestConfig_Invalid(t *testing.T) {
	tooLarge := math.MaxInt32
	tooLarge++ // does not fit the int32 key count

	for _, cfg := range []Config{
		{KeyLength: -1},
		{BlockSize: 2},
		{BlockSize: tooLarge},
	} {
		_, err := New(cfg)
		assert.ErrorIs(t, err, offheap.ErrInvalidConfig, "%+v", cfg)
	}
}

func TestRootSplit_AllocationFailure(t *testing.T) {
	// 64-byte pages and 76-byte records (BlockSize 4, one long per key): the
	// root leaf uses two pages, the new root a third, and the budget leaves
	// no room for the right sibling.
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 3 * 64})
	tr, err := New(Config{BlockSize: 4}, offheap.WithPageSize(64), offheap.WithMemoryController(rc))
	require.NoError(t, err)
	defer tr.Release()

	for k := int64(1); k <= 4; k++ {
		require.NoError(t, tr.Put(Key{k}, k))
	}

	err = tr.Put(Key{5}, 5)
	assert.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)

	stats := tr.Stats()
	assert.Equal(t, 1, stats.Nodes, "an unreachable root is not counted")
	assert.Equal(t, 1, stats.Height)
	assert.Equal(t, 4, stats.Entries)

	for k := int64(1); k <= 4; k++ {
		v, ok := tr.Get(Key{k})
		require.True(t, ok)
		assert.Equal(t, k, v)
	}
	assert.False(t, tr.Contains(Key{5}))
}

func TestSharedArena(t *testing.T) {
	a, err := arena.New(offheap.WithPageSize(256))
	require.NoError(t, err)
	defer a.Release()

	t1, err := NewWithArena(a, Config{BlockSize: 4})
	require.NoError(t, err)
	t2, err := NewWithArena(a, Config{KeyLength: 3, BlockSize: 5})
	require.NoError(t, err)

	for k := int64(0); k < 200; k++ {
		require.NoError(t, t1.Put(Key{k}, k))
		require.NoError(t, t2.Put(Key{k, -k, k % 3}, -k))
		// Unrelated allocations between node records.
		_, err := a.Alloc(int(k%7) + 1)
		require.NoError(t, err)
	}

	for k := int64(0); k < 200; k++ {
		v, ok := t1.Get(Key{k})
		require.True(t, ok)
		assert.Equal(t, k, v)
		v, ok = t2.Get(Key{k, -k, k % 3})
		require.True(t, ok)
		assert.Equal(t, -k, v)
	}

	t1.Release()
	assert.False(t, a.Released(), "a tree never releases a shared arena")
	assert.ErrorIs(t, t1.Put(Key{1}, 1), offheap.ErrReleased)
	assert.Equal(t, 200, t2.Len())
}

func TestRelease(t *testing.T) {
	tr, err := New(Config{})
	require.NoError(t, err)
	require.NoError(t, tr.Put(Key{1}, 1))

	tr.Release()
	tr.Release()

	assert.True(t, tr.Arena().Released())
	assert.ErrorIs(t, tr.Put(Key{2}, 2), offheap.ErrReleased)
	assert.ErrorIs(t, tr.Iterate(nil, func(Key, int64) bool { return true }), offheap.ErrReleased)
	assert.False(t, tr.Contains(Key{1}))
}

func BenchmarkPut(b *testing.B) {
	tr, _ := New(Config{KeyLength: 2})
	defer tr.Release()
	rng := rand.New(rand.NewPCG(1, 1))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = tr.Put(Key{rng.Int64N(1 << 20), int64(i)}, int64(i))
	}
}

func BenchmarkGet(b *testing.B) {
	tr, _ := New(Config{})
	defer tr.Release()
	for i := int64(0); i < 100000; i++ {
		_ = tr.Put(Key{i}, i)
	}
	key := Key{0}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key[0] = int64(i % 100000)
		_, _ = tr.Get(key)
	}
}
