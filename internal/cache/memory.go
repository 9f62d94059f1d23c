package cache

import (
	"sync"
	"sync/atomic"
)

// MemoryCache is a concurrency-safe in-process cache. When MaxEntries is positive and the
// cache is full, an arbitrary entry is evicted to make room.
type MemoryCache[V any] struct {
	mu         sync.RWMutex
	items      map[Key]V
	maxEntries int

	hits   atomic.Uint64
	misses atomic.Uint64
}

var _ ReadWriter[float64] = &MemoryCache[float64]{}

// NewMemoryCache returns an empty cache holding at most maxEntries values (0 is unbounded).
func NewMemoryCache[V any](maxEntries int) *MemoryCache[V] {
	return &MemoryCache[V]{
		items:      make(map[Key]V),
		maxEntries: maxEntries,
	}
}

func (c *MemoryCache[V]) Get(key Key) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

func (c *MemoryCache[V]) Set(key Key, value V) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[key]; !exists && c.maxEntries > 0 && len(c.items) >= c.maxEntries {
		for k := range c.items {
			delete(c.items, k)
			break
		}
	}
	c.items[key] = value
	return nil
}

func (c *MemoryCache[V]) Delete(key Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

func (c *MemoryCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats returns the lookup counters.
func (c *MemoryCache[V]) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}
