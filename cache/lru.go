// Package cache provides the bounded LRU+TTL cache that fronts the
// exact-match layer, plus an optional Redis second level.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/agrisense/agriquery/metrics"
)

type entry[V any] struct {
	key        string
	value      V
	insertedAt time.Time
	expires    time.Time
	hits       int
	element    *list.Element
}

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Size      int     `json:"size"`
	MaxSize   int     `json:"max_size"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

// EntryInfo describes one stored entry for debugging.
type EntryInfo struct {
	Key        string    `json:"key"`
	InsertedAt time.Time `json:"inserted_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Hits       int       `json:"hits"`
}

// LRU is a fixed-capacity cache with per-entry TTL. Expired entries are
// treated as absent and removed lazily on access or by PurgeExpired.
// All methods are safe for concurrent use.
type LRU[V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*entry[V]
	order    *list.List
	now      func() time.Time

	hits, misses, evictions int64
}

// NewLRU creates an LRU cache with capacity and default TTL.
func NewLRU[V any](capacity int, ttl time.Duration) *LRU[V] {
	if capacity <= 0 {
		capacity = 1000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &LRU[V]{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*entry[V], capacity),
		order:    list.New(),
		now:      time.Now,
	}
}

func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		if ent.expires.IsZero() || c.now().Before(ent.expires) {
			ent.hits++
			c.hits++
			c.order.MoveToFront(ent.element)
			metrics.IncCache("hit")
			return ent.value, true
		}
		c.removeEntry(ent)
	}
	c.misses++
	metrics.IncCache("miss")
	var zero V
	return zero, false
}

// Set stores value. ttl <= 0 uses the cache default. A new key at
// capacity evicts the least recently used entry first.
func (c *LRU[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if ent, ok := c.items[key]; ok {
		ent.value = value
		ent.insertedAt = now
		ent.expires = c.computeExpiry(now, ttl)
		c.order.MoveToFront(ent.element)
		return
	}

	if len(c.items) >= c.capacity {
		c.evictOldest()
	}

	elem := c.order.PushFront(key)
	c.items[key] = &entry[V]{
		key:        key,
		value:      value,
		insertedAt: now,
		expires:    c.computeExpiry(now, ttl),
		element:    elem,
	}
}

func (c *LRU[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ent, ok := c.items[key]; ok {
		c.removeEntry(ent)
	}
}

// Purge drops every entry and returns how many were dropped.
func (c *LRU[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.items)
	c.items = make(map[string]*entry[V], c.capacity)
	c.order.Init()
	return n
}

// PurgeExpired removes expired entries and returns how many were removed.
func (c *LRU[V]) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for _, ent := range c.items {
		if !ent.expires.IsZero() && !now.Before(ent.expires) {
			c.removeEntry(ent)
			removed++
		}
	}
	return removed
}

func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *LRU[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Size:      len(c.items),
		MaxSize:   c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

func (c *LRU[V]) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits, c.misses, c.evictions = 0, 0, 0
}

// Entries lists entries from most to least recently used.
func (c *LRU[V]) Entries() []EntryInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]EntryInfo, 0, len(c.items))
	for e := c.order.Front(); e != nil; e = e.Next() {
		ent := c.items[e.Value.(string)]
		out = append(out, EntryInfo{Key: ent.key, InsertedAt: ent.insertedAt, ExpiresAt: ent.expires, Hits: ent.hits})
	}
	return out
}

// StartJanitor purges expired entries every interval until ctx is done.
func (c *LRU[V]) StartJanitor(ctx context.Context, interval time.Duration, onPurge func(n int)) {
	if interval <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := c.PurgeExpired(); n > 0 && onPurge != nil {
					onPurge(n)
				}
			}
		}
	}()
}

func (c *LRU[V]) computeExpiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = c.ttl
	}
	return now.Add(ttl)
}

func (c *LRU[V]) evictOldest() {
	elem := c.order.Back()
	if elem == nil {
		return
	}
	if ent, ok := c.items[elem.Value.(string)]; ok {
		c.removeEntry(ent)
		c.evictions++
		metrics.IncCache("eviction")
	}
}

func (c *LRU[V]) removeEntry(ent *entry[V]) {
	if ent.element != nil {
		c.order.Remove(ent.element)
	}
	delete(c.items, ent.key)
}
