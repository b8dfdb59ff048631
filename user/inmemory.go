package user

import (
	"context"
	"strings"
	"sync"

	"authgate/authz"
	"authgate/secure"
)

// InMemoryProvider keeps user records in a map keyed by the lower-cased
// principal identity. It doubles as the permission provider for the roles
// attached to its accounts, with optional group role grants.
//
// Lookups return clones; the provider-owned records never escape.
type InMemoryProvider struct {
	mu         sync.RWMutex
	users      map[string]*Account
	groupRoles map[string]authz.BitSet[authz.Role]
}

// NewInMemoryProvider creates a provider holding the given accounts.
func NewInMemoryProvider(accounts ...*Account) *InMemoryProvider {
	p := &InMemoryProvider{
		users:      make(map[string]*Account, len(accounts)),
		groupRoles: map[string]authz.BitSet[authz.Role]{},
	}
	for _, a := range accounts {
		p.users[a.PrincipalID()] = a
	}
	return p
}

// GrantGroupRoles attaches group-inherited roles to a principal.
func (p *InMemoryProvider) GrantGroupRoles(principalID string, rs ...authz.Role) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := strings.ToLower(principalID)
	p.groupRoles[key] = authz.Roles(rs...)
}

// GetUserByPrincipal implements Provider.
func (p *InMemoryProvider) GetUserByPrincipal(_ context.Context, principalID string) (User, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.users[strings.ToLower(principalID)]
	if !ok {
		return nil, nil
	}
	return a.Clone(), nil
}

// RotatePassword implements PswStore.
func (p *InMemoryProvider) RotatePassword(_ context.Context, principalID string, newPsw *secure.String) (User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.users[strings.ToLower(principalID)]
	if !ok {
		return nil, ErrNotFound
	}
	a.SetPassword(newPsw)
	return a.Clone(), nil
}

// UpsertAccessToken implements OAuth2Store.
func (p *InMemoryProvider) UpsertAccessToken(_ context.Context, principalID string, token *secure.String) (User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := strings.ToLower(principalID)
	a, ok := p.users[key]
	if !ok {
		a = NewAccount(key)
		p.users[key] = a
	}
	a.SetAccessToken(token)
	return a.Clone(), nil
}

// UserPermissions implements authz.Provider for Role.
func (p *InMemoryProvider) UserPermissions(_ context.Context, principalID string) (authz.Set[authz.Role], error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.users[strings.ToLower(principalID)]
	if !ok {
		return authz.Roles(), nil
	}
	return a.Roles(), nil
}

// GroupPermissions implements authz.Provider for Role.
func (p *InMemoryProvider) GroupPermissions(_ context.Context, principalID string) (authz.Set[authz.Role], error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if g, ok := p.groupRoles[strings.ToLower(principalID)]; ok {
		return g, nil
	}
	return authz.Roles(), nil
}

// AllPermissions implements authz.Provider for Role.
func (p *InMemoryProvider) AllPermissions(ctx context.Context, principalID string) (authz.Set[authz.Role], error) {
	return authz.MergeAll[authz.Role](ctx, p, principalID)
}
