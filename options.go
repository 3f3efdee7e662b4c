package offheap

import (
	"log/slog"

	"github.com/hupe1980/offheap/resource"
)

// DefaultPageSize is the default arena page size (64 KiB).
const DefaultPageSize = 64 * 1024

// Options carries the ambient configuration shared by arenas and structures.
type Options struct {
	// PageSize is the arena allocation granularity in bytes.
	PageSize int
	// Name identifies the arena in logs and stats. Empty means generated.
	Name string
	// Logger receives structured diagnostics. Never nil after ApplyOptions.
	Logger *Logger
	// Metrics receives operational counters. Never nil after ApplyOptions.
	Metrics MetricsCollector
	// Memory, if set, is charged for every arena page.
	Memory *resource.Controller
}

// Option configures an arena or a structure.
type Option func(*Options)

// WithPageSize sets the arena page size. It is rounded up to a power of two.
// Non-positive values select DefaultPageSize.
func WithPageSize(size int) Option {
	return func(o *Options) {
		o.PageSize = size
	}
}

// WithName sets the diagnostic name of the arena.
func WithName(name string) Option {
	return func(o *Options) {
		o.Name = name
	}
}

// WithLogger configures structured logging.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *Options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.Logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *Options) {
		o.Logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector.
// Pass nil to disable metrics collection.
//
// Example:
//
//	metrics := &offheap.BasicMetricsCollector{}
//	ht, _ := hashtable.New(hashtable.Config{}, offheap.WithMetricsCollector(metrics))
//	// ... use ht ...
//	fmt.Println(metrics.GetStats().Rehashes)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *Options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.Metrics = mc
	}
}

// WithMemoryController charges every arena page against rc.
// Allocation fails with resource.ErrMemoryLimitExceeded once the limit is hit.
func WithMemoryController(rc *resource.Controller) Option {
	return func(o *Options) {
		o.Memory = rc
	}
}

// ApplyOptions returns Options with defaults filled in.
func ApplyOptions(optFns ...Option) Options {
	o := Options{
		PageSize: DefaultPageSize,
		Logger:   NoopLogger(),
		Metrics:  NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	return o
}

// WithDefaults returns optFns preceded by defaults, so caller options win.
// Structures use it to give their arenas a kind-specific name.
func WithDefaults(optFns []Option, defaults ...Option) []Option {
	out := make([]Option, 0, len(defaults)+len(optFns))
	out = append(out, defaults...)
	return append(out, optFns...)
}
