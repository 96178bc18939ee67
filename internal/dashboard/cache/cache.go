// Package cache is the per-project, per-category TTL cache in front of the
// status probes.
package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/grovetools/devdash/internal/daemon/metrics"
	"golang.org/x/sync/singleflight"
)

// Category partitions cached values; each category has its own TTL.
type Category string

const (
	Metadata Category = "metadata"
	Git      Category = "git"
)

type key struct {
	name string
	cat  Category
}

type entry struct {
	data      any
	timestamp time.Time
}

// Cache maps (project, category) to a value with a timestamp. Expiry is
// checked lazily on read; nothing runs in the background.
type Cache struct {
	mu      sync.Mutex
	entries map[key]entry
	ttls    map[Category]time.Duration
	// gens counts invalidations per project. A load records the generation
	// it started under and only stores if it is still current.
	gens map[string]uint64

	group   singleflight.Group
	now     func() time.Time
	metrics metrics.Recorder
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMetrics reports hits and misses to r.
func WithMetrics(r metrics.Recorder) Option {
	return func(c *Cache) { c.metrics = r }
}

// New creates a cache with the given TTL per category. Categories without
// a TTL are never served from cache.
func New(ttls map[Category]time.Duration, opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[key]entry),
		ttls:    make(map[Category]time.Duration, len(ttls)),
		gens:    make(map[string]uint64),
		now:     time.Now,
		metrics: metrics.NewNoop(),
	}
	for cat, ttl := range ttls {
		c.ttls[cat] = ttl
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetTTL changes the lifetime of a category. Existing entries are judged
// against the new TTL on their next read.
func (c *Cache) SetTTL(cat Category, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttls[cat] = ttl
}

// Get returns the value for (name, cat) if it is younger than the
// category's TTL.
func (c *Cache) Get(name string, cat Category) (any, bool) {
	c.mu.Lock()
	v, ok := c.getLocked(name, cat)
	c.mu.Unlock()
	c.metrics.CacheLookup(string(cat), ok)
	return v, ok
}

func (c *Cache) getLocked(name string, cat Category) (any, bool) {
	e, ok := c.entries[key{name, cat}]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.timestamp) >= c.ttls[cat] {
		return nil, false
	}
	return e.data, true
}

// Set stores v for (name, cat) with the current time.
func (c *Cache) Set(name string, cat Category, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key{name, cat}] = entry{data: v, timestamp: c.now()}
}

// Invalidate drops every category cached for name. Loads already in flight
// for name will not store their results.
func (c *Cache) Invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.name == name {
			delete(c.entries, k)
		}
	}
	c.gens[name]++
}

// Len returns the number of stored entries, fresh or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetOrLoad returns the cached value for (name, cat) or runs load. Concurrent
// callers for the same key share one load. A caller arriving after
// Invalidate(name) never joins a load that started before it.
func (c *Cache) GetOrLoad(ctx context.Context, name string, cat Category, load func(context.Context) (any, error)) (any, error) {
	c.mu.Lock()
	if v, ok := c.getLocked(name, cat); ok {
		c.mu.Unlock()
		c.metrics.CacheLookup(string(cat), true)
		return v, nil
	}
	gen := c.gens[name]
	c.mu.Unlock()
	c.metrics.CacheLookup(string(cat), false)

	flightKey := string(cat) + "\x00" + name + "\x00" + strconv.FormatUint(gen, 10)
	v, err, _ := c.group.Do(flightKey, func() (any, error) {
		// A load that finished between our miss and Do may have stored already.
		c.mu.Lock()
		if v, ok := c.getLocked(name, cat); ok && c.gens[name] == gen {
			c.mu.Unlock()
			return v, nil
		}
		c.mu.Unlock()

		v, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if c.gens[name] == gen {
			c.entries[key{name, cat}] = entry{data: v, timestamp: c.now()}
		}
		c.mu.Unlock()
		return v, nil
	})
	return v, err
}

// Lookup is a typed Get.
func Lookup[T any](c *Cache, name string, cat Category) (T, bool) {
	var zero T
	v, ok := c.Get(name, cat)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// Load is a typed GetOrLoad.
func Load[T any](ctx context.Context, c *Cache, name string, cat Category, load func(context.Context) (T, error)) (T, error) {
	var zero T
	v, err := c.GetOrLoad(ctx, name, cat, func(ctx context.Context) (any, error) {
		return load(ctx)
	})
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, nil
	}
	return t, nil
}
