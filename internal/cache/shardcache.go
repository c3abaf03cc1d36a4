// Package cache provides a generic, hit/miss-instrumented LRU used by
// internal/index to hold lazily-loaded, decoded shard objects in memory
// (spec §4.6). Grounded on the teacher's internal/cache.Manager pattern of
// a memory-cache-first, stats-tracked lookup in front of durable storage,
// generalized from a single untyped TTL cache to a typed, size-bounded LRU
// per shard kind.
package cache

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is a fixed-capacity, least-recently-used cache over key type K and
// value type V, with running hit/miss counters.
type Cache[K comparable, V any] struct {
	inner  *lru.Cache[K, V]
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a Cache holding at most size entries.
func New[K comparable, V any](size int) (*Cache[K, V], error) {
	if size <= 0 {
		size = 1
	}
	inner, err := lru.New[K, V](size)
	if err != nil {
		return nil, err
	}
	return &Cache[K, V]{inner: inner}, nil
}

// Get returns the cached value for key, recording a hit or miss.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	v, ok := c.inner.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Add inserts or updates key's cached value, evicting the least recently
// used entry if the cache is at capacity.
func (c *Cache[K, V]) Add(key K, value V) {
	c.inner.Add(key, value)
}

// Remove evicts key, if present.
func (c *Cache[K, V]) Remove(key K) {
	c.inner.Remove(key)
}

// Len returns the number of entries currently cached.
func (c *Cache[K, V]) Len() int {
	return c.inner.Len()
}

// Stats returns the running hit/miss counts since creation.
func (c *Cache[K, V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// HitRate returns hits/(hits+misses), or 0 if Get has never been called.
func (c *Cache[K, V]) HitRate() float64 {
	hits, misses := c.Stats()
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
