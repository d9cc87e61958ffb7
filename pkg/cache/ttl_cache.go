package cache

import (
	"hash/fnv"
	"sync"
	"time"
)

const numShards = 16

// TTLCache is a bounded, time-stamped cache sharded by key.
// Entries older than ttl are treated as missing; a full shard evicts its oldest entry.
type TTLCache[V any] struct {
	shards   [numShards]*shard[V]
	ttl      time.Duration
	perShard int
	now      func() time.Time
}

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]entry[V]
}

type entry[V any] struct {
	value     V
	updatedAt time.Time
}

// NewTTL creates a cache holding at most capacity entries (0 = unbounded).
func NewTTL[V any](ttl time.Duration, capacity int) *TTLCache[V] {
	c := &TTLCache[V]{ttl: ttl, now: time.Now}
	if capacity > 0 {
		c.perShard = (capacity + numShards - 1) / numShards
	}
	for i := 0; i < numShards; i++ {
		c.shards[i] = &shard[V]{items: make(map[string]entry[V])}
	}
	return c
}

func (c *TTLCache[V]) getShard(key string) *shard[V] {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%numShards]
}

func (c *TTLCache[V]) expired(e entry[V], now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.updatedAt) >= c.ttl
}

// Set stores a value.
func (c *TTLCache[V]) Set(key string, value V) {
	s := c.getShard(key)
	now := c.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[key]; !exists && c.perShard > 0 && len(s.items) >= c.perShard {
		var (
			oldestKey string
			oldest    time.Time
		)
		for k, e := range s.items {
			if oldestKey == "" || e.updatedAt.Before(oldest) {
				oldestKey, oldest = k, e.updatedAt
			}
		}
		delete(s.items, oldestKey)
	}
	s.items[key] = entry[V]{value: value, updatedAt: now}
}

// Get returns a live value.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	v, _, ok := c.GetWithAge(key)
	return v, ok
}

// GetWithAge returns a live value and its age.
func (c *TTLCache[V]) GetWithAge(key string) (V, time.Duration, bool) {
	s := c.getShard(key)
	now := c.now()
	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()
	if !ok || c.expired(e, now) {
		var zero V
		return zero, 0, false
	}
	return e.value, now.Sub(e.updatedAt), true
}

// Delete removes a key.
func (c *TTLCache[V]) Delete(key string) {
	s := c.getShard(key)
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// Len returns total items across all shards, expired ones included.
func (c *TTLCache[V]) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.RLock()
		total += len(s.items)
		s.mu.RUnlock()
	}
	return total
}

// Cleanup removes expired entries and returns how many were dropped.
func (c *TTLCache[V]) Cleanup() int {
	removed := 0
	now := c.now()
	for _, s := range c.shards {
		s.mu.Lock()
		for k, e := range s.items {
			if c.expired(e, now) {
				delete(s.items, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Stats provides cache statistics.
type Stats struct {
	TotalItems int           `json:"total_items"`
	OldestAge  time.Duration `json:"oldest_age"`
}

// Stats returns cache statistics.
func (c *TTLCache[V]) Stats() Stats {
	var (
		stats  Stats
		oldest time.Time
	)
	for _, s := range c.shards {
		s.mu.RLock()
		stats.TotalItems += len(s.items)
		for _, e := range s.items {
			if oldest.IsZero() || e.updatedAt.Before(oldest) {
				oldest = e.updatedAt
			}
		}
		s.mu.RUnlock()
	}
	if !oldest.IsZero() {
		stats.OldestAge = c.now().Sub(oldest)
	}
	return stats
}
