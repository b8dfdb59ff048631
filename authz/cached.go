package authz

import (
	"context"
	"strings"

	"authgate/cache"
)

// CachedProvider fronts a permission provider with a bounded TTL cache so
// the authorization middleware does not hit storage on every request.
type CachedProvider[P comparable] struct {
	inner Provider[P]
	cache *cache.Cache[string, Set[P]]
	ttl   cache.TTL
}

// NewCachedProvider wraps inner with c. Only the merged AllPermissions set
// is cached; the split lookups pass through.
func NewCachedProvider[P comparable](inner Provider[P], c *cache.Cache[string, Set[P]]) *CachedProvider[P] {
	return &CachedProvider[P]{inner: inner, cache: c, ttl: cache.DefaultTTL()}
}

// UserPermissions implements Provider.
func (p *CachedProvider[P]) UserPermissions(ctx context.Context, principalID string) (Set[P], error) {
	return p.inner.UserPermissions(ctx, principalID)
}

// GroupPermissions implements Provider.
func (p *CachedProvider[P]) GroupPermissions(ctx context.Context, principalID string) (Set[P], error) {
	return p.inner.GroupPermissions(ctx, principalID)
}

// AllPermissions implements Provider with a single-flight cached lookup.
func (p *CachedProvider[P]) AllPermissions(ctx context.Context, principalID string) (Set[P], error) {
	key := strings.ToLower(principalID)
	return p.cache.GetOrFetch(ctx, key, p.ttl, func(ctx context.Context) (Set[P], error) {
		return p.inner.AllPermissions(ctx, key)
	})
}

// Invalidate drops the cached permission set for a principal, e.g. after a
// grant change.
func (p *CachedProvider[P]) Invalidate(principalID string) {
	p.cache.Remove(strings.ToLower(principalID))
}
