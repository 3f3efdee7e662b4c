package arena

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/offheap"
	"github.com/hupe1980/offheap/resource"
)

func newTestArena(t *testing.T, pageSize int, opts ...offheap.Option) *Arena {
	t.Helper()
	a, err := New(append([]offheap.Option{offheap.WithPageSize(pageSize)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(a.Release)
	return a
}

func TestArena_New(t *testing.T) {
	t.Run("default page size", func(t *testing.T) {
		a := newTestArena(t, 0)
		assert.Equal(t, offheap.DefaultPageSize, a.PageSize())
		assert.Equal(t, uint64(0), a.UsedSize())
		assert.Equal(t, 0, a.Stats().Pages, "pages are mapped lazily")
	})

	t.Run("rounded to power of two", func(t *testing.T) {
		a := newTestArena(t, 1000)
		assert.Equal(t, 1024, a.PageSize())
	})

	t.Run("minimum page size", func(t *testing.T) {
		a := newTestArena(t, 3)
		assert.Equal(t, MinPageSize, a.PageSize())
	})

	t.Run("generated name", func(t *testing.T) {
		a := newTestArena(t, 0)
		assert.Regexp(t, `^arena-[0-9a-f]{8}$`, a.Name())
	})

	t.Run("explicit name", func(t *testing.T) {
		a := newTestArena(t, 0, offheap.WithName("sparse-matrix"))
		assert.Equal(t, "sparse-matrix", a.Name())
	})
}

func TestArena_Alloc(t *testing.T) {
	t.Run("monotonic addresses", func(t *testing.T) {
		a := newTestArena(t, 64)

		prev := Addr(0)
		for i := 0; i < 20; i++ {
			addr, err := a.Alloc(24)
			require.NoError(t, err)
			if i > 0 {
				assert.Greater(t, addr, prev)
			}
			assert.Equal(t, Addr(i*24), addr)
			prev = addr
		}
		assert.Equal(t, uint64(480), a.UsedSize())
		assert.Equal(t, 8, a.Stats().Pages)
	})

	t.Run("zeroed memory", func(t *testing.T) {
		a := newTestArena(t, 4096)

		addr, err := a.Alloc(4096 * 3)
		require.NoError(t, err)
		buf := make([]byte, 4096*3)
		a.ReadBytes(addr, buf)
		for i, b := range buf {
			if b != 0 {
				t.Fatalf("byte %d not zero: %d", i, b)
			}
		}
	})

	t.Run("zero size", func(t *testing.T) {
		a := newTestArena(t, 64)

		addr, err := a.Alloc(0)
		require.NoError(t, err)
		assert.Equal(t, Addr(0), addr)
		assert.Equal(t, uint64(0), a.UsedSize())
	})

	t.Run("negative size", func(t *testing.T) {
		a := newTestArena(t, 64)

		_, err := a.Alloc(-1)
		assert.ErrorIs(t, err, offheap.ErrOutOfBounds)
	})
}

func TestArena_TypedAccess(t *testing.T) {
	// 64-byte pages force most fields below to straddle a boundary.
	a := newTestArena(t, 64)
	_, err := a.Alloc(512)
	require.NoError(t, err)

	for _, addr := range []Addr{0, 60, 61, 62, 63, 64, 127, 200} {
		a.WriteLong(addr, -1234567890123)
		assert.Equal(t, int64(-1234567890123), a.ReadLong(addr), "long at %d", addr)

		a.WriteInt(addr, -42)
		assert.Equal(t, int32(-42), a.ReadInt(addr), "int at %d", addr)
	}

	a.WriteByteAt(300, 0x7f)
	assert.Equal(t, byte(0x7f), a.ReadByteAt(300))
}

func TestArena_Bytes(t *testing.T) {
	a := newTestArena(t, 64)
	_, err := a.Alloc(256)
	require.NoError(t, err)

	payload := []byte("the quick brown fox jumps over the lazy dog, twice over")
	a.WriteBytes(50, payload)

	out := make([]byte, len(payload))
	a.ReadBytes(50, out)
	assert.Equal(t, payload, out)

	assert.True(t, a.Equal(50, payload))
	assert.False(t, a.Equal(50, []byte("the quick brown cat")))
	assert.True(t, a.Equal(50, nil))
}

func TestArena_TransferBytes(t *testing.T) {
	t.Run("overlapping within a page", func(t *testing.T) {
		a := newTestArena(t, 1024)
		_, err := a.Alloc(64)
		require.NoError(t, err)
		a.WriteBytes(0, []byte{1, 2, 3, 4, 5, 6, 7, 8})

		a.TransferBytes(0, 2, 6)

		out := make([]byte, 8)
		a.ReadBytes(0, out)
		assert.Equal(t, []byte{1, 2, 1, 2, 3, 4, 5, 6}, out)
	})

	t.Run("across pages", func(t *testing.T) {
		a := newTestArena(t, 64)
		_, err := a.Alloc(256)
		require.NoError(t, err)
		for i := 0; i < 16; i++ {
			a.WriteLong(Addr(40+i*8), int64(i))
		}

		a.TransferBytes(40, 48, 15*8)

		assert.Equal(t, int64(0), a.ReadLong(40))
		for i := 0; i < 15; i++ {
			assert.Equal(t, int64(i), a.ReadLong(Addr(48+i*8)))
		}
	})

	t.Run("zero length", func(t *testing.T) {
		a := newTestArena(t, 64)
		a.TransferBytes(0, 0, 0)
	})
}

func TestArena_Zero(t *testing.T) {
	a := newTestArena(t, 64)
	_, err := a.Alloc(200)
	require.NoError(t, err)
	for i := 0; i < 25; i++ {
		a.WriteLong(Addr(i*8), -1)
	}

	a.Zero(30, 100)

	for i := 0; i < 200; i++ {
		b := a.ReadByteAt(Addr(i))
		if i >= 30 && i < 130 {
			assert.Equal(t, byte(0), b, "byte %d", i)
		} else {
			assert.Equal(t, byte(0xff), b, "byte %d", i)
		}
	}
}

func TestArena_OutOfBounds(t *testing.T) {
	a := newTestArena(t, 64)
	_, err := a.Alloc(16)
	require.NoError(t, err)

	assertPanicsWith(t, offheap.ErrOutOfBounds, func() { a.ReadLong(9) })
	assertPanicsWith(t, offheap.ErrOutOfBounds, func() { a.WriteInt(16, 1) })
	assertPanicsWith(t, offheap.ErrOutOfBounds, func() { a.ReadBytes(0, make([]byte, 17)) })
}

func TestArena_Release(t *testing.T) {
	rc := resource.NewController(resource.Config{})
	metrics := &offheap.BasicMetricsCollector{}
	a, err := New(offheap.WithPageSize(4096), offheap.WithMemoryController(rc), offheap.WithMetricsCollector(metrics))
	require.NoError(t, err)

	_, err = a.Alloc(10000)
	require.NoError(t, err)
	assert.Equal(t, int64(3*4096), rc.MemoryUsage())

	a.Release()
	a.Release() // idempotent

	assert.True(t, a.Released())
	assert.Equal(t, int64(0), rc.MemoryUsage())

	_, err = a.Alloc(8)
	assert.ErrorIs(t, err, offheap.ErrReleased)
	assertPanicsWith(t, offheap.ErrReleased, func() { a.ReadLong(0) })

	stats := metrics.GetStats()
	assert.Equal(t, int64(3), stats.PageAllocs)
	assert.Equal(t, int64(1), stats.Releases)
	assert.Equal(t, int64(3*4096), stats.BytesReleased)
}

func TestArena_MemoryLimit(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 2 * 4096})
	a := newTestArena(t, 4096, offheap.WithMemoryController(rc))

	_, err := a.Alloc(2 * 4096)
	require.NoError(t, err)

	_, err = a.Alloc(1)
	assert.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)
	assert.Equal(t, uint64(2*4096), a.UsedSize(), "failed alloc must not move the high-water mark")
}

func TestArena_Advise(t *testing.T) {
	a := newTestArena(t, 4096)
	a.Advise(AccessRandom)

	_, err := a.Alloc(3 * 4096)
	require.NoError(t, err)
	a.WriteLong(8192, 7)
	assert.Equal(t, int64(7), a.ReadLong(8192))
}

func TestArena_Stats(t *testing.T) {
	a := newTestArena(t, 128)

	_, _ = a.Alloc(100)
	_, _ = a.Alloc(100)

	stats := a.Stats()
	assert.Equal(t, 2, stats.Pages)
	assert.Equal(t, uint64(256), stats.BytesReserved)
	assert.Equal(t, uint64(200), stats.BytesUsed)
	assert.Equal(t, uint64(2), stats.Allocs)
	assert.Contains(t, a.String(), "pages: 2")
}

func assertPanicsWith(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		require.NotNil(t, r, "expected panic")
		err, ok := r.(error)
		require.True(t, ok, "panic value is not an error: %v", r)
		assert.True(t, errors.Is(err, target), "got %v, want %v", err, target)
	}()
	fn()
}

func BenchmarkArena_ReadLong(b *testing.B) {
	a, _ := New()
	defer a.Release()
	_, _ = a.Alloc(1 << 20)

	b.ResetTimer()
	var sink int64
	for i := 0; i < b.N; i++ {
		sink += a.ReadLong(Addr((i * 8) & (1<<20 - 8)))
	}
	_ = sink
}
