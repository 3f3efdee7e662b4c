// Package arena provides the page-based, off-heap byte arena every structure
// stores its records in.
//
// # Address Space
//
// An Arena is an append-only sequence of fixed-size pages presented as one
// contiguous address space. Alloc returns monotonically increasing addresses
// and never reuses space; a record may straddle a page boundary and the typed
// accessors handle the split transparently. UsedSize is the high-water mark
// and doubles as the wrap boundary for open-addressed probing.
//
// # Memory
//
// Pages whose size is a multiple of the OS page size are anonymous memory
// mappings (see internal/mmap), keeping large regions away from the garbage
// collector. Smaller pages fall back to heap slices, which keeps unit tests
// with tiny pages cheap. Page growth can be charged against a
// resource.Controller to enforce a memory budget.
//
// # Safety
//
// Alloc returns errors. Accessors panic on addresses beyond UsedSize or after
// Release; the panic value wraps offheap.ErrOutOfBounds or offheap.ErrReleased.
//
// # Concurrency
//
// An Arena is not synchronized. Reads may run concurrently with other reads;
// Alloc, writes and Release require exclusive access.
package arena
