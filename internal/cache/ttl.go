// Package cache provides the expiring caches used to stay inside the Census
// daily call quota.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTTL is how long a cached statistic stays fresh.
const DefaultTTL = 24 * time.Hour

// TTL is a concurrent-safe key/value cache with per-entry expiry checked on
// read. An optional entry cap evicts least-recently-used entries.
type TTL[K comparable, V any] struct {
	mu         sync.Mutex
	entries    map[K]*list.Element
	order      *list.List // front = most recently used
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	hits       atomic.Int64
	misses     atomic.Int64
}

type entry[K comparable, V any] struct {
	key      K
	value    V
	storedAt time.Time
}

// Option configures a TTL cache.
type Option func(*options)

type options struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// WithTTL sets the entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithMaxEntries caps the number of entries; 0 means unbounded.
func WithMaxEntries(n int) Option {
	return func(o *options) { o.maxEntries = n }
}

// WithClock substitutes the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewTTL creates a TTL cache.
func NewTTL[K comparable, V any](opts ...Option) *TTL[K, V] {
	o := options{ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ttl <= 0 {
		o.ttl = DefaultTTL
	}
	return &TTL[K, V]{
		entries:    make(map[K]*list.Element),
		order:      list.New(),
		ttl:        o.ttl,
		maxEntries: o.maxEntries,
		now:        o.now,
	}
}

// Get returns the value for key if present and not older than the TTL.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return zero, false
	}

	e := el.Value.(*entry[K, V])
	if c.now().Sub(e.storedAt) > c.ttl {
		c.order.Remove(el)
		delete(c.entries, key)
		c.misses.Add(1)
		return zero, false
	}

	c.order.MoveToFront(el)
	c.hits.Add(1)
	return e.value, true
}

// Put stores value under key. The last writer wins.
func (c *TTL[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry[K, V])
		e.value = value
		e.storedAt = now
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&entry[K, V]{key: key, value: value, storedAt: now})

	if c.maxEntries > 0 {
		for c.order.Len() > c.maxEntries {
			oldest := c.order.Back()
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*entry[K, V]).key)
		}
	}
}

// Len returns the number of stored entries, including expired ones not yet read.
func (c *TTL[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats contains cache performance statistics.
type Stats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// Stats returns a snapshot of hit/miss counters.
func (c *TTL[K, V]) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Entries:    c.Len(),
		MaxEntries: c.maxEntries,
		Hits:       hits,
		Misses:     misses,
		HitRate:    rate,
	}
}
