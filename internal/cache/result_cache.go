package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Options configures a ResultCache.
type Options struct {
	Enabled bool
	// MaxSize bounds the number of in-memory entries. Zero means unbounded.
	MaxSize int
	TTL     time.Duration
	// Store is an optional shared second level.
	Store Store
	// ComputeTimeout bounds a shared computation in GetOrCompute. Zero means
	// no bound beyond the computation itself.
	ComputeTimeout time.Duration
	// Now replaces time.Now in tests.
	Now func() time.Time
}

type entry[V any] struct {
	value     V
	createdAt time.Time
	ttl       time.Duration
}

func (e entry[V]) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// envelope is the second-level encoding. It carries the creation time so a
// hit from the store never outlives the original ttl.
type envelope[V any] struct {
	Value     V             `json:"value"`
	CreatedAt time.Time     `json:"created_at"`
	TTL       time.Duration `json:"ttl"`
}

// ResultCache is a time-bounded cache keyed by content fingerprint.
// Entries are immutable once inserted and evicted lazily on access or by Sweep.
type ResultCache[V any] struct {
	namespace string
	opts      Options
	logger    *slog.Logger

	mu      sync.RWMutex
	entries map[string]entry[V]
	group   singleflight.Group
}

// New creates a cache for one namespace.
func New[V any](namespace string, opts Options, logger *slog.Logger) *ResultCache[V] {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &ResultCache[V]{
		namespace: namespace,
		opts:      opts,
		logger:    logger.With("component", "cache", "namespace", namespace),
		entries:   make(map[string]entry[V]),
	}
}

// Key fingerprints parts under the cache namespace.
func (c *ResultCache[V]) Key(parts ...[]byte) string {
	return Fingerprint(c.namespace, parts...)
}

// Enabled reports whether the cache stores anything.
func (c *ResultCache[V]) Enabled() bool {
	return c.opts.Enabled
}

// Get returns the value for key if present and younger than its ttl.
func (c *ResultCache[V]) Get(key string) (V, bool) {
	var zero V
	if !c.opts.Enabled {
		return zero, false
	}

	now := c.opts.Now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return zero, false
	}

	if e.expired(now) {
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur.expired(now) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return zero, false
	}

	return e.value, true
}

// Put inserts value under key. A non-positive ttl uses the configured default.
// When the cache is full after sweeping expired entries the value is dropped.
func (c *ResultCache[V]) Put(key string, value V, ttl time.Duration) {
	if !c.opts.Enabled {
		return
	}
	if ttl <= 0 {
		ttl = c.opts.TTL
	}
	c.put(key, entry[V]{value: value, createdAt: c.opts.Now(), ttl: ttl})
}

func (c *ResultCache[V]) put(key string, e entry[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.opts.MaxSize > 0 && len(c.entries) >= c.opts.MaxSize {
		c.sweepLocked(c.opts.Now())
		if len(c.entries) >= c.opts.MaxSize {
			c.logger.Debug("cache full, dropping entry", "max_size", c.opts.MaxSize)
			return
		}
	}
	c.entries[key] = e
}

// Sweep removes every entry with now - createdAt > ttl and returns how many
// were removed.
func (c *ResultCache[V]) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(now)
}

func (c *ResultCache[V]) sweepLocked(now time.Time) int {
	removed := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of in-memory entries, expired ones included.
func (c *ResultCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every in-memory entry.
func (c *ResultCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
}

// GetOrCompute returns the cached value for key or computes it. Concurrent
// callers missing the same key share a single computation, which runs
// detached from the caller that started it: one caller giving up never fails
// the others. Errors are not cached.
func (c *ResultCache[V]) GetOrCompute(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) (V, error)) (V, error) {
	if !c.opts.Enabled {
		return fn(ctx)
	}
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	if ttl <= 0 {
		ttl = c.opts.TTL
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		shared, cancel := c.detach(ctx)
		defer cancel()

		if v, ok := c.Get(key); ok {
			return v, nil
		}
		if v, ok := c.loadShared(shared, key); ok {
			return v, nil
		}

		v, err := fn(shared)
		if err != nil {
			return v, err
		}

		e := entry[V]{value: v, createdAt: c.opts.Now(), ttl: ttl}
		c.put(key, e)
		c.storeShared(shared, key, e)
		return v, nil
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	case res := <-ch:
		v, _ := res.Val.(V)
		return v, res.Err
	}
}

// detach keeps the values of ctx but drops its cancellation, bounding the
// result by ComputeTimeout instead.
func (c *ResultCache[V]) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	shared := context.WithoutCancel(ctx)
	if c.opts.ComputeTimeout > 0 {
		return context.WithTimeout(shared, c.opts.ComputeTimeout)
	}
	return shared, func() {}
}

func (c *ResultCache[V]) loadShared(ctx context.Context, key string) (V, bool) {
	var zero V
	if c.opts.Store == nil {
		return zero, false
	}

	data, err := c.opts.Store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) && !errors.Is(err, ErrCacheExpired) {
			c.logger.Warn("shared cache read failed", "error", err)
		}
		return zero, false
	}

	var env envelope[V]
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("shared cache entry undecodable", "error", err)
		return zero, false
	}

	e := entry[V]{value: env.Value, createdAt: env.CreatedAt, ttl: env.TTL}
	if e.expired(c.opts.Now()) {
		return zero, false
	}
	c.put(key, e)
	return e.value, true
}

func (c *ResultCache[V]) storeShared(ctx context.Context, key string, e entry[V]) {
	if c.opts.Store == nil {
		return
	}

	data, err := json.Marshal(envelope[V]{Value: e.value, CreatedAt: e.createdAt, TTL: e.ttl})
	if err != nil {
		c.logger.Warn("shared cache entry unencodable", "error", err)
		return
	}
	if err := c.opts.Store.Set(ctx, key, data, e.ttl); err != nil {
		c.logger.Warn("shared cache write failed", "error", err)
	}
}
