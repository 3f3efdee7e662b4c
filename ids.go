package offheap

// NodeID is the index of a B+tree node record within its arena.
// The byte address of a node is base + NodeID*recordLength.
type NodeID uint32

// RowID is the sequential index of a flat table row.
type RowID int64
