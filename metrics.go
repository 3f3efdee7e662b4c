package offheap

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordAlloc is called after every arena page growth.
	// bytes is the number of bytes reserved, err is nil if successful.
	RecordAlloc(bytes int, err error)

	// RecordRehash is called after a hashtable or symbol table rehash.
	// entries is the number of live entries moved, duration the time taken.
	RecordRehash(entries int, duration time.Duration)

	// RecordSplit is called after each B+tree node split.
	RecordSplit(leaf bool)

	// RecordRelease is called when an arena releases its pages.
	RecordRelease(bytes uint64)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAlloc(int, error)          {}
func (NoopMetricsCollector) RecordRehash(int, time.Duration) {}
func (NoopMetricsCollector) RecordSplit(bool)                {}
func (NoopMetricsCollector) RecordRelease(uint64)            {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	PageAllocs       atomic.Int64
	PageAllocErrors  atomic.Int64
	BytesReserved    atomic.Int64
	Rehashes         atomic.Int64
	RehashedEntries  atomic.Int64
	RehashTotalNanos atomic.Int64
	LeafSplits       atomic.Int64
	InternalSplits   atomic.Int64
	Releases         atomic.Int64
	BytesReleased    atomic.Int64
}

// RecordAlloc implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAlloc(bytes int, err error) {
	if err != nil {
		b.PageAllocErrors.Add(1)
		return
	}
	b.PageAllocs.Add(1)
	b.BytesReserved.Add(int64(bytes))
}

// RecordRehash implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRehash(entries int, duration time.Duration) {
	b.Rehashes.Add(1)
	b.RehashedEntries.Add(int64(entries))
	b.RehashTotalNanos.Add(duration.Nanoseconds())
}

// RecordSplit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSplit(leaf bool) {
	if leaf {
		b.LeafSplits.Add(1)
	} else {
		b.InternalSplits.Add(1)
	}
}

// RecordRelease implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRelease(bytes uint64) {
	b.Releases.Add(1)
	b.BytesReleased.Add(int64(bytes)) //nolint:gosec // arena sizes fit in int64
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		PageAllocs:      b.PageAllocs.Load(),
		PageAllocErrors: b.PageAllocErrors.Load(),
		BytesReserved:   b.BytesReserved.Load(),
		Rehashes:        b.Rehashes.Load(),
		RehashedEntries: b.RehashedEntries.Load(),
		RehashAvgNanos:  b.getAvgRehashNanos(),
		LeafSplits:      b.LeafSplits.Load(),
		InternalSplits:  b.InternalSplits.Load(),
		Releases:        b.Releases.Load(),
		BytesReleased:   b.BytesReleased.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgRehashNanos() int64 {
	count := b.Rehashes.Load()
	if count == 0 {
		return 0
	}
	return b.RehashTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	PageAllocs      int64
	PageAllocErrors int64
	BytesReserved   int64
	Rehashes        int64
	RehashedEntries int64
	RehashAvgNanos  int64
	LeafSplits      int64
	InternalSplits  int64
	Releases        int64
	BytesReleased   int64
}
