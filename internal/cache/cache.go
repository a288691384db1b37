package cache

import (
	"sync"
	"time"
)

// entry pairs a stored value with its storage instant and TTL. Entries are
// replaced wholesale on Put, never mutated in place.
type entry[V any] struct {
	value    V
	storedAt time.Time
	ttl      time.Duration
}

func (e entry[V]) valid(now time.Time) bool {
	return now.Sub(e.storedAt) < e.ttl
}

// Cache is a lazy-expiry TTL cache: staleness is checked on read, there is no
// background eviction, and expired entries stay in the map until overwritten
// or explicitly invalidated (deletion is a caller decision). All operations
// are total: none fail, none perform I/O.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]entry[V]
	now     func() time.Time // swapped out in tests
}

// New creates an empty cache.
func New[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{
		entries: make(map[K]entry[V]),
		now:     time.Now,
	}
}

// Get returns the stored value if one exists and its TTL has not elapsed.
// An expired entry behaves as absent but is not deleted.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !e.valid(c.now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores value under key with the given TTL, overwriting any previous
// entry atomically.
func (c *Cache[K, V]) Put(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[V]{value: value, storedAt: c.now(), ttl: ttl}
}

// Invalidate removes the entry for key unconditionally.
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// InvalidateAll removes every entry.
func (c *Cache[K, V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]entry[V])
}

// Age reports the elapsed time since key was stored, regardless of whether
// the entry is still valid, so callers can log staleness even for expired
// entries. ok is false when no entry exists at all.
func (c *Cache[K, V]) Age(key K) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return 0, false
	}
	return c.now().Sub(e.storedAt), true
}
