package cache

import (
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUWithTTL is a size-bounded, thread-safe LRU whose entries also expire
// after a fixed TTL (zero disables expiry).
type LRUWithTTL[K comparable, V any] struct {
	cache *lru.Cache[K, *ttlEntry[V]]
	ttl   time.Duration
	now   func() time.Time

	hits    atomic.Uint64
	misses  atomic.Uint64
	evicted atomic.Uint64
}

type ttlEntry[V any] struct {
	value     V
	expiresAt time.Time
}

func NewLRUWithTTL[K comparable, V any](size int, ttl time.Duration) (*LRUWithTTL[K, V], error) {
	c := &LRUWithTTL[K, V]{ttl: ttl, now: time.Now}
	inner, err := lru.NewWithEvict[K, *ttlEntry[V]](size, func(K, *ttlEntry[V]) {
		c.evicted.Add(1)
	})
	if err != nil {
		return nil, err
	}
	c.cache = inner
	return c, nil
}

func (c *LRUWithTTL[K, V]) Get(key K) (V, bool) {
	var zero V
	entry, ok := c.cache.Get(key)
	if !ok {
		c.misses.Add(1)
		return zero, false
	}
	if c.ttl > 0 && c.now().After(entry.expiresAt) {
		c.cache.Remove(key)
		c.misses.Add(1)
		return zero, false
	}
	c.hits.Add(1)
	return entry.value, true
}

func (c *LRUWithTTL[K, V]) Set(key K, value V) {
	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.now().Add(c.ttl)
	}
	c.cache.Add(key, &ttlEntry[V]{value: value, expiresAt: expiresAt})
}

func (c *LRUWithTTL[K, V]) Delete(key K) {
	c.cache.Remove(key)
}

func (c *LRUWithTTL[K, V]) Len() int {
	return c.cache.Len()
}

type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Evicted uint64  `json:"evicted"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hit_rate"`
}

func (c *LRUWithTTL[K, V]) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	rate := 0.0
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Hits:    hits,
		Misses:  misses,
		Evicted: c.evicted.Load(),
		Size:    c.cache.Len(),
		HitRate: rate,
	}
}

// CleanupExpired removes expired entries. It is O(n) and meant for a
// background ticker.
func (c *LRUWithTTL[K, V]) CleanupExpired() int {
	if c.ttl == 0 {
		return 0
	}
	now := c.now()
	removed := 0
	for _, key := range c.cache.Keys() {
		if entry, ok := c.cache.Peek(key); ok && now.After(entry.expiresAt) {
			c.cache.Remove(key)
			removed++
		}
	}
	return removed
}
