// Package offheap provides index structures that keep their data in a manually
// managed byte arena instead of Go heap objects.
//
// # Structures
//
//   - hashtable: open-addressed int64 -> int64 map with load-factor rehash
//   - btree: multi-column-key B+tree with leaf chaining and optional duplicates
//   - sparse: coordinate-indexed sparse matrix built on btree
//   - symtab: string interning table returning stable symbol addresses
//   - flattable: append-only fixed-width row store
//   - lists: many append-only singly linked lists sharing one arena
//
// Every structure owns (or is handed) an arena.Arena whose pages are anonymous
// memory mappings. Nothing is reclaimed until Release is called, after which
// all addresses are invalid.
//
// # Quick Start
//
//	ht, err := hashtable.New(hashtable.Config{}, offheap.WithLogLevel(slog.LevelDebug))
//	if err != nil { ... }
//	defer ht.Release()
//
//	_ = ht.Put(5, 100)
//	v, ok := ht.Get(5) // 100, true
//
// # Concurrency
//
// Structures are single-writer and not internally synchronized. Reads that
// cannot trigger a rehash may run concurrently with other reads. The
// resource.Controller used to budget arena memory is safe for concurrent use
// and may be shared across structures.
//
// # Package Layout
//
// The root package holds the ambient pieces shared by every structure:
// functional options, the slog-based Logger, the MetricsCollector interface
// and the common error values.
package offheap
