package cache

import (
	"sync"
	"time"
)

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache stores values in-memory with per-entry TTLs.
type TTLCache[K comparable, V any] struct {
	mu    sync.Mutex
	items map[K]cacheEntry[V]
	now   func() time.Time
}

// NewTTLCache constructs a new TTLCache instance.
func NewTTLCache[K comparable, V any]() *TTLCache[K, V] {
	return &TTLCache[K, V]{items: make(map[K]cacheEntry[V]), now: time.Now}
}

// WithClock replaces the time source, for tests.
func (c *TTLCache[K, V]) WithClock(now func() time.Time) *TTLCache[K, V] {
	c.now = now
	return c
}

// Get returns a cached value if it exists and has not expired.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.live(key)
	if !ok {
		return zero, false
	}
	return entry.value, true
}

// Set stores a value with the provided TTL. A non-positive TTL never expires.
func (c *TTLCache[K, V]) Set(key K, value V, ttl time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.items[key] = c.entry(value, ttl)
	c.mu.Unlock()
}

// SetIfAbsent stores value unless a live entry exists and reports whether it stored.
func (c *TTLCache[K, V]) SetIfAbsent(key K, value V, ttl time.Duration) bool {
	if c == nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.live(key); ok {
		return false
	}
	c.items[key] = c.entry(value, ttl)
	return true
}

// Delete removes a cached entry.
func (c *TTLCache[K, V]) Delete(key K) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Len counts live entries and drops expired ones.
func (c *TTLCache[K, V]) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key := range c.items {
		if _, ok := c.live(key); ok {
			n++
		}
	}
	return n
}

func (c *TTLCache[K, V]) entry(value V, ttl time.Duration) cacheEntry[V] {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}
	return cacheEntry[V]{value: value, expiresAt: expiresAt}
}

// live must be called with mu held.
func (c *TTLCache[K, V]) live(key K) (cacheEntry[V], bool) {
	entry, ok := c.items[key]
	if !ok {
		return entry, false
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		delete(c.items, key)
		return entry, false
	}
	return entry, true
}
