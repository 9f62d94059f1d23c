// Package cache memoises values under content-hash keys.
//
// Keys are built from the inputs a value was derived from (see Hasher), so a cached value
// is reused only when every input is identical. MemoryCache serves in-process memoisation
// such as objective values of already evaluated selections; FileCache persists values
// such as distance matrices across runs.
package cache

// Reader provides read-only access to a cache.
type Reader[V any] interface {
	// Get returns the value stored under key and whether it was found.
	Get(key Key) (V, bool)

	// Len returns the number of stored entries.
	Len() int
}

// Writer provides write access to a cache.
type Writer[V any] interface {
	// Set stores value under key, replacing any previous value.
	Set(key Key, value V) error

	// Delete removes the value stored under key, if any.
	Delete(key Key) error
}

// ReadWriter combines both read and write access to the cache.
type ReadWriter[V any] interface {
	Reader[V]
	Writer[V]
}

// Stats counts lookups served by a cache.
type Stats struct {
	Hits   uint64
	Misses uint64
}
