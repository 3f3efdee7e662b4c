// Package mmap provides anonymous memory mappings used as arena pages.
//
// # Overview
//
// An anonymous private mapping is zero-filled memory obtained directly from
// the kernel. It is invisible to the Go garbage collector, which keeps
// multi-megabyte hash regions and B+tree node arrays off the GC's scan path.
//
// # Usage
//
//	m, err := mmap.MapAnon(1 << 20)
//	if err != nil { ... }
//	defer m.Close()
//
//	page := m.Bytes()
//	_ = m.Advise(mmap.AccessRandom)
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with MAP_ANON|MAP_PRIVATE, madvise(2)
//   - Other platforms: a zeroed heap slice; Advise is a no-op
//
// # Thread Safety
//
// Close is idempotent and protected by an atomic flag. Callers must ensure
// no goroutine touches Bytes() after Close returns.
package mmap
