// Package resource implements a process-wide memory budget for arena pages.
//
// Every arena.Arena built with offheap.WithMemoryController charges each page
// it maps against the Controller and returns the bytes on Release. When the
// limit would be exceeded the allocation fails fast with
// ErrMemoryLimitExceeded; nothing blocks, so a single writer never stalls
// inside a Put.
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 1 << 30, // 1GB limit
//	})
//
//	ht, _ := hashtable.New(hashtable.Config{}, offheap.WithMemoryController(rc))
//	defer ht.Release()
//
// # Thread Safety
//
// All Controller methods are safe for concurrent use. The limit is enforced
// with a weighted semaphore and usage is tracked with atomic counters.
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully - they become no-ops.
package resource
