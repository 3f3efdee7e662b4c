// Package hash provides the hash functions used to place keys in open-addressed
// tables.
//
// # xxHash64
//
// All table placement uses xxHash64 (github.com/cespare/xxhash/v2):
//
//   - ~10 GB/s on modern CPUs for long inputs, a few ns for 8-byte keys
//   - Good avalanche behavior, so "hash mod capacity" spreads sequential keys
//   - Stable across processes and platforms
//
// # Usage
//
//	h := hash.Int64(key)       // hashtable keys
//	h := hash.String("symbol") // symbol table strings
package hash
