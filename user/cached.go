package user

import (
	"context"
	"errors"
	"strings"

	"authgate/cache"
	"authgate/secure"
)

// errAbsent marks a successful lookup of an unknown principal inside the
// cache fetch; absence is never cached.
var errAbsent = errors.New("principal absent")

// CachedProvider fronts another Provider with a bounded TTL cache. Found
// records are cached; misses and failures are not. Writes through the
// capability stores invalidate the cached entry for the principal.
type CachedProvider struct {
	inner Provider
	cache *cache.Cache[string, User]
	ttl   cache.TTL
}

// NewCachedProvider wraps inner with c. Entries live for the cache's
// default TTL.
func NewCachedProvider(inner Provider, c *cache.Cache[string, User]) *CachedProvider {
	return &CachedProvider{inner: inner, cache: c, ttl: cache.DefaultTTL()}
}

// GetUserByPrincipal implements Provider. Concurrent lookups of the same
// principal share a single fetch against the inner provider.
func (p *CachedProvider) GetUserByPrincipal(ctx context.Context, principalID string) (User, error) {
	key := strings.ToLower(principalID)
	u, err := p.cache.GetOrFetch(ctx, key, p.ttl, func(ctx context.Context) (User, error) {
		inner, err := p.inner.GetUserByPrincipal(ctx, key)
		if err != nil {
			return nil, err
		}
		if inner == nil {
			return nil, errAbsent
		}
		return inner, nil
	})
	if errors.Is(err, errAbsent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// RotatePassword implements PswStore when the inner provider does; the
// cached entry for the principal is dropped so the next read observes the
// new hash.
func (p *CachedProvider) RotatePassword(ctx context.Context, principalID string, newPsw *secure.String) (User, error) {
	store, ok := p.inner.(PswStore)
	if !ok {
		return nil, ErrNotSupported
	}
	u, err := store.RotatePassword(ctx, principalID, newPsw)
	if err != nil {
		return nil, err
	}
	p.cache.Remove(strings.ToLower(principalID))
	return u, nil
}

// UpsertAccessToken implements OAuth2Store when the inner provider does,
// with the same invalidation rule as RotatePassword.
func (p *CachedProvider) UpsertAccessToken(ctx context.Context, principalID string, token *secure.String) (User, error) {
	store, ok := p.inner.(OAuth2Store)
	if !ok {
		return nil, ErrNotSupported
	}
	u, err := store.UpsertAccessToken(ctx, principalID, token)
	if err != nil {
		return nil, err
	}
	p.cache.Remove(strings.ToLower(principalID))
	return u, nil
}
