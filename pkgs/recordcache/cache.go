package recordcache

import "sync"

// Cache memoizes ledger reads by record id for the lifetime of one reading
// session. Ledger records are immutable once written, so entries are never
// evicted; only the set of ids grows. A cache must not be shared between
// independent sessions.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[uint64]V
}

// New creates an empty cache.
func New[V any]() *Cache[V] {
	return &Cache[V]{entries: make(map[uint64]V)}
}

// Get returns the cached value for id.
func (c *Cache[V]) Get(id uint64) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[id]
	return v, ok
}

// Put stores v under id, replacing any previous value.
func (c *Cache[V]) Put(id uint64, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = v
}

// Len returns the number of cached ids.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
