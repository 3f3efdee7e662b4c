package arena

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math/bits"
	"os"

	"github.com/google/uuid"

	"github.com/hupe1980/offheap"
	"github.com/hupe1980/offheap/internal/conv"
	"github.com/hupe1980/offheap/internal/mmap"
	"github.com/hupe1980/offheap/resource"
)

// Addr is a byte address inside an Arena.
type Addr uint64

const (
	// LongSize is the width of a long field.
	LongSize = 8
	// IntSize is the width of an int field.
	IntSize = 4

	// MinPageSize is the smallest page size accepted; smaller requests are raised.
	MinPageSize = 64
)

var le = binary.LittleEndian

// AccessPattern hints how pages will be accessed.
type AccessPattern = mmap.AccessPattern

const (
	AccessDefault    = mmap.AccessDefault
	AccessSequential = mmap.AccessSequential
	AccessRandom     = mmap.AccessRandom
)

// Stats is a snapshot of arena usage.
type Stats struct {
	Pages         int
	PageSize      int
	BytesReserved uint64
	BytesUsed     uint64
	Allocs        uint64
}

type page struct {
	data    []byte
	mapping *mmap.Mapping // nil for heap pages
}

// Arena is a growable region of page-backed memory.
type Arena struct {
	name     string
	pageSize int
	pageBits int
	pageMask uint64
	mapped   bool
	advice   AccessPattern

	pages    []page
	used     uint64
	allocs   uint64
	released bool

	rc      *resource.Controller
	logger  *offheap.Logger
	metrics offheap.MetricsCollector
}

// NewName returns a diagnostic arena name of the form kind-xxxxxxxx.
func NewName(kind string) string {
	return kind + "-" + uuid.NewString()[:8]
}

// New creates an empty Arena. No page is mapped until the first Alloc.
func New(opts ...offheap.Option) (*Arena, error) {
	o := offheap.ApplyOptions(opts...)

	pageSize := max(o.PageSize, MinPageSize)
	// Round up to next power of 2 for shift/mask addressing
	pageBits := bits.Len(uint(pageSize - 1)) //nolint:gosec // pageSize > 0
	pageSize = 1 << pageBits

	mask, err := conv.IntToUint64(pageSize - 1)
	if err != nil {
		return nil, fmt.Errorf("%w: page size: %w", offheap.ErrInvalidConfig, err)
	}

	name := o.Name
	if name == "" {
		name = NewName("arena")
	}

	return &Arena{
		name:     name,
		pageSize: pageSize,
		pageBits: pageBits,
		pageMask: mask,
		mapped:   pageSize%os.Getpagesize() == 0,
		rc:       o.Memory,
		logger:   o.Logger.WithArena(name),
		metrics:  o.Metrics,
	}, nil
}

// Name returns the diagnostic name.
func (a *Arena) Name() string { return a.name }

// PageSize returns the page size in bytes.
func (a *Arena) PageSize() int { return a.pageSize }

// UsedSize returns the high-water mark: the address the next Alloc returns.
func (a *Arena) UsedSize() uint64 { return a.used }

// Released reports whether Release has been called.
func (a *Arena) Released() bool { return a.released }

// Alloc reserves size zeroed bytes and returns their base address.
func (a *Arena) Alloc(size int) (Addr, error) {
	if a.released {
		return 0, offheap.ErrReleased
	}
	n, err := conv.IntToUint64(size)
	if err != nil {
		return 0, fmt.Errorf("%w: alloc size: %w", offheap.ErrOutOfBounds, err)
	}

	base := a.used
	end := base + n
	for end > a.reserved() {
		if err := a.grow(); err != nil {
			a.logger.LogAllocFailure(context.Background(), size, err)
			return 0, err
		}
	}

	a.used = end
	a.allocs++
	return Addr(base), nil
}

func (a *Arena) reserved() uint64 {
	return uint64(len(a.pages)) << a.pageBits
}

func (a *Arena) grow() error {
	if err := a.rc.AcquireMemory(int64(a.pageSize)); err != nil {
		a.metrics.RecordAlloc(a.pageSize, err)
		return err
	}

	p := page{}
	if a.mapped {
		m, err := mmap.MapAnon(a.pageSize)
		if err != nil {
			a.rc.ReleaseMemory(int64(a.pageSize))
			a.metrics.RecordAlloc(a.pageSize, err)
			return fmt.Errorf("failed to map anonymous memory for page: %w", err)
		}
		if a.advice != AccessDefault {
			_ = m.Advise(a.advice)
		}
		p.data = m.Bytes()
		p.mapping = m
	} else {
		p.data = make([]byte, a.pageSize)
	}

	a.pages = append(a.pages, p)
	a.metrics.RecordAlloc(a.pageSize, nil)
	return nil
}

// Advise records an access hint and applies it to every mapped page,
// including pages mapped later.
func (a *Arena) Advise(pattern AccessPattern) {
	a.advice = pattern
	for _, p := range a.pages {
		if p.mapping != nil {
			_ = p.mapping.Advise(pattern)
		}
	}
}

// Release unmaps every page. All addresses become invalid. It is idempotent.
func (a *Arena) Release() {
	if a.released {
		return
	}
	a.released = true

	reserved := a.reserved()
	for i := range a.pages {
		if m := a.pages[i].mapping; m != nil {
			_ = m.Close()
		}
		a.pages[i] = page{}
	}
	pages := len(a.pages)
	a.pages = nil

	a.rc.ReleaseMemory(int64(reserved)) //nolint:gosec // bounded by memory actually mapped
	a.metrics.RecordRelease(reserved)
	a.logger.LogRelease(context.Background(), pages, a.used)
}

// Stats returns the current arena statistics.
func (a *Arena) Stats() Stats {
	return Stats{
		Pages:         len(a.pages),
		PageSize:      a.pageSize,
		BytesReserved: a.reserved(),
		BytesUsed:     a.used,
		Allocs:        a.allocs,
	}
}

func (a *Arena) String() string {
	s := a.Stats()
	return fmt.Sprintf(
		"Arena{name: %s, pages: %d, page: %d B, reserved: %.2f MB, used: %.2f MB, allocs: %d}",
		a.name,
		s.Pages,
		s.PageSize,
		float64(s.BytesReserved)/(1024*1024),
		float64(s.BytesUsed)/(1024*1024),
		s.Allocs,
	)
}

// check panics unless [addr, addr+n) lies inside the used region.
func (a *Arena) check(addr Addr, n int) {
	if a.released {
		panic(fmt.Errorf("arena %s: %w", a.name, offheap.ErrReleased))
	}
	if uint64(addr)+uint64(n) > a.used { //nolint:gosec // n is a small non-negative width
		panic(fmt.Errorf("arena %s: %w: [%d, %d) beyond used size %d",
			a.name, offheap.ErrOutOfBounds, addr, uint64(addr)+uint64(n), a.used)) //nolint:gosec // see above
	}
}

// window returns the n bytes at addr when they lie inside one page.
func (a *Arena) window(addr Addr, n int) ([]byte, bool) {
	p := uint64(addr) >> a.pageBits
	off := uint64(addr) & a.pageMask
	end := off + uint64(n) //nolint:gosec // n >= 0
	if end > uint64(a.pageSize) {
		return nil, false
	}
	return a.pages[p].data[off:end:end], true
}

// ReadLong reads an 8-byte signed integer.
func (a *Arena) ReadLong(addr Addr) int64 {
	a.check(addr, LongSize)
	if b, ok := a.window(addr, LongSize); ok {
		return int64(le.Uint64(b)) //nolint:gosec // bit reinterpretation
	}
	var buf [LongSize]byte
	a.copyOut(addr, buf[:])
	return int64(le.Uint64(buf[:])) //nolint:gosec // bit reinterpretation
}

// WriteLong writes an 8-byte signed integer.
func (a *Arena) WriteLong(addr Addr, v int64) {
	a.check(addr, LongSize)
	if b, ok := a.window(addr, LongSize); ok {
		le.PutUint64(b, uint64(v)) //nolint:gosec // bit reinterpretation
		return
	}
	var buf [LongSize]byte
	le.PutUint64(buf[:], uint64(v)) //nolint:gosec // bit reinterpretation
	a.copyIn(addr, buf[:])
}

// ReadInt reads a 4-byte signed integer.
func (a *Arena) ReadInt(addr Addr) int32 {
	a.check(addr, IntSize)
	if b, ok := a.window(addr, IntSize); ok {
		return int32(le.Uint32(b)) //nolint:gosec // bit reinterpretation
	}
	var buf [IntSize]byte
	a.copyOut(addr, buf[:])
	return int32(le.Uint32(buf[:])) //nolint:gosec // bit reinterpretation
}

// WriteInt writes a 4-byte signed integer.
func (a *Arena) WriteInt(addr Addr, v int32) {
	a.check(addr, IntSize)
	if b, ok := a.window(addr, IntSize); ok {
		le.PutUint32(b, uint32(v)) //nolint:gosec // bit reinterpretation
		return
	}
	var buf [IntSize]byte
	le.PutUint32(buf[:], uint32(v)) //nolint:gosec // bit reinterpretation
	a.copyIn(addr, buf[:])
}

// ReadByteAt reads a single byte.
func (a *Arena) ReadByteAt(addr Addr) byte {
	a.check(addr, 1)
	return a.pages[uint64(addr)>>a.pageBits].data[uint64(addr)&a.pageMask]
}

// WriteByteAt writes a single byte.
func (a *Arena) WriteByteAt(addr Addr, v byte) {
	a.check(addr, 1)
	a.pages[uint64(addr)>>a.pageBits].data[uint64(addr)&a.pageMask] = v
}

// ReadBytes fills buf with the bytes starting at addr.
func (a *Arena) ReadBytes(addr Addr, buf []byte) {
	a.check(addr, len(buf))
	a.copyOut(addr, buf)
}

// WriteBytes copies buf into the arena starting at addr.
func (a *Arena) WriteBytes(addr Addr, buf []byte) {
	a.check(addr, len(buf))
	a.copyIn(addr, buf)
}

// Equal reports whether the len(b) bytes at addr equal b, without copying.
func (a *Arena) Equal(addr Addr, b []byte) bool {
	a.check(addr, len(b))
	for len(b) > 0 {
		off := uint64(addr) & a.pageMask
		data := a.pages[uint64(addr)>>a.pageBits].data[off:]
		n := min(len(data), len(b))
		if !bytes.Equal(data[:n], b[:n]) {
			return false
		}
		b = b[n:]
		addr += Addr(n) //nolint:gosec // n > 0
	}
	return true
}

// TransferBytes copies n bytes from src to dst. Overlapping ranges are allowed.
func (a *Arena) TransferBytes(src, dst Addr, n int) {
	if n == 0 {
		return
	}
	a.check(src, n)
	a.check(dst, n)

	s, sok := a.window(src, n)
	d, dok := a.window(dst, n)
	if sok && dok {
		copy(d, s) // copy is memmove
		return
	}

	tmp := make([]byte, n)
	a.copyOut(src, tmp)
	a.copyIn(dst, tmp)
}

// Zero clears n bytes at addr.
func (a *Arena) Zero(addr Addr, n int) {
	a.check(addr, n)
	for n > 0 {
		off := uint64(addr) & a.pageMask
		data := a.pages[uint64(addr)>>a.pageBits].data[off:]
		m := min(len(data), n)
		clear(data[:m])
		n -= m
		addr += Addr(m) //nolint:gosec // m > 0
	}
}

func (a *Arena) copyOut(addr Addr, buf []byte) {
	for len(buf) > 0 {
		off := uint64(addr) & a.pageMask
		n := copy(buf, a.pages[uint64(addr)>>a.pageBits].data[off:])
		buf = buf[n:]
		addr += Addr(n) //nolint:gosec // n > 0
	}
}

func (a *Arena) copyIn(addr Addr, buf []byte) {
	for len(buf) > 0 {
		off := uint64(addr) & a.pageMask
		n := copy(a.pages[uint64(addr)>>a.pageBits].data[off:], buf)
		buf = buf[n:]
		addr += Addr(n) //nolint:gosec // n > 0
	}
}
