package reconcile

import (
	"sync"
	"time"
)

// ttlCache is a bounded in-process map with expiry checks on read. It is a
// performance optimization only: correctness must hold with an empty cache
// (cold start, restart, or multi-instance deployment).
type ttlCache[T any] struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[string]cacheEntry[T]
}

type cacheEntry[T any] struct {
	value   T
	expires time.Time
}

func newTTLCache[T any](maxEntries int) *ttlCache[T] {
	return &ttlCache[T]{
		maxEntries: maxEntries,
		entries:    make(map[string]cacheEntry[T]),
	}
}

func (c *ttlCache[T]) get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		var zero T
		return zero, false
	}
	if time.Now().After(entry.expires) {
		delete(c.entries, key)
		var zero T
		return zero, false
	}
	return entry.value, true
}

func (c *ttlCache[T]) set(key string, value T, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		now := time.Now()
		for k, e := range c.entries {
			if now.After(e.expires) {
				delete(c.entries, k)
			}
		}
		// Still full after purging expired entries: drop arbitrary ones
		// rather than growing without bound.
		for k := range c.entries {
			if len(c.entries) < c.maxEntries {
				break
			}
			delete(c.entries, k)
		}
	}

	c.entries[key] = cacheEntry[T]{value: value, expires: time.Now().Add(ttl)}
}
