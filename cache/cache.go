// Package cache provides a capacity-bounded, TTL-aware key/value cache with a
// single-flight fetch operation. It fronts slow lookups such as the SQL user
// provider.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// ErrInvalidCapacity reports a non-positive cache capacity.
var ErrInvalidCapacity = errors.New("cache capacity must be positive")

// Event labels reported to the observer.
const (
	EventHit     = "hit"
	EventMiss    = "miss"
	EventExpired = "expired"
	EventFetched = "fetched"
	EventError   = "fetch_error"
)

// TTL selects the lifetime of a cached entry.
type TTL struct {
	mode byte
	d    time.Duration
}

const (
	ttlNone byte = iota
	ttlDefault
	ttlExplicit
)

// NoTTL keeps the entry until it is evicted by capacity pressure.
func NoTTL() TTL { return TTL{mode: ttlNone} }

// DefaultTTL applies the cache-wide default lifetime.
func DefaultTTL() TTL { return TTL{mode: ttlDefault} }

// TTLOf applies an explicit lifetime.
func TTLOf(d time.Duration) TTL { return TTL{mode: ttlExplicit, d: d} }

type entry[V any] struct {
	value    V
	captured time.Time
	// expires is zero for entries without a TTL.
	expires time.Time
}

// Cache is a bounded LRU cache with per-entry TTLs. Reads past an entry's
// deadline behave as misses. All methods are safe for concurrent use.
type Cache[K comparable, V any] struct {
	lru        *lru.Cache[K, entry[V]]
	group      singleflight.Group
	defaultTTL time.Duration
	now        func() time.Time
	onEvent    func(event string)
}

// Option configures a Cache.
type Option[K comparable, V any] func(*Cache[K, V])

// WithObserver registers a callback invoked with an Event label on every
// cache interaction. Used to feed the metrics collector.
func WithObserver[K comparable, V any](fn func(event string)) Option[K, V] {
	return func(c *Cache[K, V]) { c.onEvent = fn }
}

// WithClock overrides the time source.
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *Cache[K, V]) { c.now = now }
}

// New creates a cache bounded to capacity entries, evicting least-recently
// used entries when full. defaultTTL is applied to entries stored with
// DefaultTTL; zero means such entries never expire.
func New[K comparable, V any](capacity int, defaultTTL time.Duration, opts ...Option[K, V]) (*Cache[K, V], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	inner, err := lru.New[K, entry[V]](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU index: %w", err)
	}
	c := &Cache[K, V]{
		lru:        inner,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Cache[K, V]) emit(event string) {
	if c.onEvent != nil {
		c.onEvent(event)
	}
}

// Get returns the cached value for k. Expired entries are removed and
// reported as absent.
func (c *Cache[K, V]) Get(k K) (V, bool) {
	e, ok := c.lru.Get(k)
	if !ok {
		c.emit(EventMiss)
		var zero V
		return zero, false
	}
	if !e.expires.IsZero() && c.now().After(e.expires) {
		c.lru.Remove(k)
		c.emit(EventExpired)
		var zero V
		return zero, false
	}
	c.emit(EventHit)
	return e.value, true
}

// Put stores v under k with the given TTL, evicting the least-recently used
// entry when the cache is at capacity.
func (c *Cache[K, V]) Put(k K, ttl TTL, v V) {
	now := c.now()
	e := entry[V]{value: v, captured: now}
	switch ttl.mode {
	case ttlDefault:
		if c.defaultTTL > 0 {
			e.expires = now.Add(c.defaultTTL)
		}
	case ttlExplicit:
		e.expires = now.Add(ttl.d)
	}
	c.lru.Add(k, e)
}

// Remove drops the entry for k, if any.
func (c *Cache[K, V]) Remove(k K) {
	c.lru.Remove(k)
}

// Len reports the number of stored entries, including not-yet-collected
// expired ones.
func (c *Cache[K, V]) Len() int { return c.lru.Len() }

// GetOrFetch returns the cached value for k, or runs fetch and caches its
// result. Concurrent callers for the same key share one in-flight fetch and
// receive the same value. Fetch failures are returned to every waiter and
// never cached. A caller whose context is cancelled while waiting gets the
// context error; the shared fetch itself keeps running for the remaining
// waiters.
func (c *Cache[K, V]) GetOrFetch(ctx context.Context, k K, ttl TTL, fetch func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(k); ok {
		return v, nil
	}
	ch := c.group.DoChan(fmt.Sprint(k), func() (any, error) {
		// A racing caller may have populated the entry while we queued.
		if v, ok := c.Get(k); ok {
			return v, nil
		}
		v, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			c.emit(EventError)
			return nil, err
		}
		c.Put(k, ttl, v)
		c.emit(EventFetched)
		return v, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		return res.Val.(V), nil
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}
