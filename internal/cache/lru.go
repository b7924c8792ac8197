// internal/cache/lru.go
//
// Bounded LRU cache with per-entry TTL.
//
// Context
// -------
// Handlers consult a pool before hitting the tenant database.  Each pool is
// a doubly-linked list (front = most recently used) plus a map for O(1)
// lookup.  Expiry is checked lazily on Get, and Cleanup performs a full
// sweep so entries that are never read again do not linger until capacity
// pressure pushes them out.
//
// Notes
// -----
//   - One mutex guards the list and the map.  Get mutates recency and may
//     delete, so there is no reader/writer split.
//   - ttl <= 0 means "never expires".  Capacity 0 disables the pool: every
//     Set is evicted on arrival.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/yanizio/cardeal/internal/metrics"
)

// LRU is a concurrency-safe least-recently-used cache with TTL support.
// Zero value is unusable; construct with New.
type LRU[K comparable, V any] struct {
	name       string
	mu         sync.Mutex
	capacity   int
	defaultTTL time.Duration
	ll         *list.List
	items      map[K]*list.Element
	now        func() time.Time

	hits, misses, evictions uint64
}

type entry[K comparable, V any] struct {
	key       K
	val       V
	expiresAt time.Time // zero => no expiry
}

// Stats is a point-in-time snapshot of one pool.
type Stats struct {
	Name      string `json:"name"`
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// Option tweaks an LRU at construction.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides time.Now.  Tests use it to advance time without
// sleeping.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New returns an LRU named name holding at most capacity entries.  A
// negative capacity is treated as 0.
func New[K comparable, V any](name string, capacity int, defaultTTL time.Duration, opts ...Option) *LRU[K, V] {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	if capacity < 0 {
		capacity = 0
	}
	return &LRU[K, V]{
		name:       name,
		capacity:   capacity,
		defaultTTL: defaultTTL,
		ll:         list.New(),
		items:      make(map[K]*list.Element),
		now:        o.now,
	}
}

// Get returns the value for key and marks it most recently used.  Expired
// entries are removed and reported as a miss.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	ele, ok := c.items[key]
	if !ok {
		c.misses++
		metrics.CacheMisses.WithLabelValues(c.name).Inc()
		return zero, false
	}
	ent := ele.Value.(*entry[K, V])
	if c.expired(ent, c.now()) {
		c.removeElement(ele)
		c.misses++
		metrics.CacheMisses.WithLabelValues(c.name).Inc()
		return zero, false
	}
	c.ll.MoveToFront(ele)
	c.hits++
	metrics.CacheHits.WithLabelValues(c.name).Inc()
	return ent.val, true
}

// Set stores val under key with the pool's default TTL.
func (c *LRU[K, V]) Set(key K, val V) {
	c.SetWithTTL(key, val, c.defaultTTL)
}

// SetWithTTL stores val under key.  Re-setting an existing key resets both
// its expiry and its recency.
func (c *LRU[K, V]) SetWithTTL(key K, val V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ele, ok := c.items[key]; ok {
		c.removeElement(ele)
	}
	for c.ll.Len() > 0 && c.ll.Len() >= c.capacity {
		c.removeElement(c.ll.Back())
		c.evictions++
		metrics.CacheEvictions.WithLabelValues(c.name).Inc()
	}
	if c.capacity == 0 {
		c.evictions++
		metrics.CacheEvictions.WithLabelValues(c.name).Inc()
		return
	}

	ent := &entry[K, V]{key: key, val: val}
	if ttl > 0 {
		ent.expiresAt = c.now().Add(ttl)
	}
	c.items[key] = c.ll.PushFront(ent)
}

// Delete removes key and reports whether it was present.
func (c *LRU[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ele, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(ele)
	return true
}

// Cleanup removes every expired entry and returns how many were dropped.
func (c *LRU[K, V]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for ele := c.ll.Back(); ele != nil; {
		prev := ele.Prev()
		if c.expired(ele.Value.(*entry[K, V]), now) {
			c.removeElement(ele)
			n++
		}
		ele = prev
	}
	return n
}

// Clear empties the pool.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	c.ll.Init()
	c.items = make(map[K]*list.Element)
	c.mu.Unlock()
}

// Len reports the current number of entries, expired or not.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Stats returns size, capacity, and counters.
func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Name:      c.name,
		Size:      c.ll.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// Keys returns up to limit keys ordered from most to least recently used.
func (c *LRU[K, V]) Keys(limit int) []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]K, 0, min(limit, c.ll.Len()))
	for ele := c.ll.Front(); ele != nil && len(out) < limit; ele = ele.Next() {
		out = append(out, ele.Value.(*entry[K, V]).key)
	}
	return out
}

func (c *LRU[K, V]) expired(ent *entry[K, V], now time.Time) bool {
	return !ent.expiresAt.IsZero() && now.After(ent.expiresAt)
}

// removeElement must be called with c.mu held.
func (c *LRU[K, V]) removeElement(ele *list.Element) {
	c.ll.Remove(ele)
	delete(c.items, ele.Value.(*entry[K, V]).key)
}
