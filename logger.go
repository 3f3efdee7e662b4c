package offheap

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with offheap-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	}))
}

// WithArena adds the arena name to every record.
func (l *Logger) WithArena(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("arena", name),
	}
}

// WithStructure adds the structure kind (hashtable, btree, ...) to every record.
func (l *Logger) WithStructure(kind string) *Logger {
	return &Logger{
		Logger: l.Logger.With("structure", kind),
	}
}

// LogRehash logs a completed rehash.
func (l *Logger) LogRehash(ctx context.Context, entries, oldCapacity, newCapacity int, usedBytes uint64) {
	l.DebugContext(ctx, "rehash completed",
		"entries", entries,
		"old_capacity", oldCapacity,
		"new_capacity", newCapacity,
		"used_bytes", usedBytes,
	)
}

// LogAllocFailure logs an arena allocation that could not be served.
func (l *Logger) LogAllocFailure(ctx context.Context, size int, err error) {
	l.ErrorContext(ctx, "arena allocation failed",
		"size", size,
		"error", err,
	)
}

// LogRelease logs the release of an arena.
func (l *Logger) LogRelease(ctx context.Context, pages int, usedBytes uint64) {
	l.DebugContext(ctx, "arena released",
		"pages", pages,
		"used_bytes", usedBytes,
	)
}

// LogLongProbe logs a probe sequence that visited an unusual number of slots.
func (l *Logger) LogLongProbe(ctx context.Context, probes, capacity int) {
	l.WarnContext(ctx, "long probe sequence",
		"probes", probes,
		"capacity", capacity,
	)
}
