// Package cache provides the time-bounded read cache of the record store.
//
// Entries are keyed by a list scope plus a query shape. A write to a list
// drops every query shape for that list with one prefix invalidation.
// Entries are never returned once older than their TTL; expired entries
// are evicted on lookup.
package cache

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mesh-intelligence/civicstore/internal/metrics"
	"github.com/mesh-intelligence/civicstore/pkg/types"
)

// Lookup results reported to metrics.
const (
	resultHit     = "hit"
	resultMiss    = "miss"
	resultExpired = "expired"
)

// Entry is one cached value.
type Entry[T any] struct {
	Key       string
	Value     T
	FetchedAt time.Time
	TTL       time.Duration
}

// expired reports whether the entry is stale at now. An entry exactly TTL
// old is still fresh.
func (e *Entry[T]) expired(now time.Time) bool {
	return now.Sub(e.FetchedAt) > e.TTL
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits          int64
	Misses        int64
	Expired       int64
	Invalidations int64
}

// Cache is a TTL key/value cache safe for concurrent use.
type Cache[T any] struct {
	mu         sync.Mutex
	entries    map[string]*Entry[T]
	defaultTTL time.Duration
	now        func() time.Time
	metrics    *metrics.Metrics
	stats      Stats
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
}

// WithTTL sets the TTL applied by Set when it is given a zero TTL.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithMetrics records lookups and invalidations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New creates an empty cache.
func New[T any](opts ...Option) *Cache[T] {
	o := options{ttl: types.DefaultCacheTTL, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[T]{
		entries:    make(map[string]*Entry[T]),
		defaultTTL: o.ttl,
		now:        o.now,
		metrics:    o.metrics,
	}
}

// DefaultTTL returns the TTL used when Set is given zero.
func (c *Cache[T]) DefaultTTL() time.Duration { return c.defaultTTL }

// Get returns the value for key if present and fresh.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	e, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		c.metrics.CacheLookup(resultMiss)
		return zero, false
	}
	if e.expired(c.now()) {
		delete(c.entries, key)
		c.stats.Expired++
		c.stats.Misses++
		c.metrics.CacheLookup(resultExpired)
		c.metrics.CacheSize(len(c.entries))
		return zero, false
	}
	c.stats.Hits++
	c.metrics.CacheLookup(resultHit)
	return e.Value, true
}

// Set stores value under key, replacing any previous entry. A zero ttl
// uses the cache default; a negative ttl stores nothing.
func (c *Cache[T]) Set(key string, value T, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	if ttl < 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &Entry[T]{Key: key, Value: value, FetchedAt: c.now(), TTL: ttl}
	c.metrics.CacheSize(len(c.entries))
}

// Invalidate removes every entry whose key starts with prefix and returns
// how many were removed. An exact key is its own prefix.
func (c *Cache[T]) Invalidate(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	c.stats.Invalidations += int64(n)
	c.metrics.CacheInvalidated("prefix", n)
	c.metrics.CacheSize(len(c.entries))
	return n
}

// InvalidateAll empties the cache.
func (c *Cache[T]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[string]*Entry[T])
	c.stats.Invalidations += int64(n)
	c.metrics.CacheInvalidated("all", n)
	c.metrics.CacheSize(0)
}

// Len returns the number of entries, fresh or not.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the counters.
func (c *Cache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// ScopePrefix returns the key prefix shared by every query shape of list.
// The list name is escaped and terminated so "Projects" never matches
// "Projects Archive".
func ScopePrefix(list string) string {
	return "records/" + url.PathEscape(list) + "/"
}

// Key returns the cache key of a list read.
func Key(list string, q types.Query) string {
	return ScopePrefix(list) + q.Key()
}

// ItemKey returns the cache key of a single-item read. It shares the list's
// scope prefix, so list invalidation drops it too.
func ItemKey(list, itemID string) string {
	return ScopePrefix(list) + "item=" + url.PathEscape(itemID)
}
