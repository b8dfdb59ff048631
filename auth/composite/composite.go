// Package composite chains the concrete authentication backends behind one
// auth.Backend: inbound credentials are routed to the matching sub-backend
// and challenge selection is negotiated from the Accept header. The route
// middleware in this package enforces authentication and authorization on
// top of it.
package composite

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"authgate/auth"
	"authgate/authz"
	"authgate/observability/logging"
	"authgate/observability/metrics"
	"authgate/user"
)

var (
	// ErrDifferentUserProviders is returned when a sub-backend is bound to a
	// user provider other than the shared one.
	ErrDifferentUserProviders = errors.New("all backends must share one user provider")

	// ErrDifferentPermissionProviders is returned when a sub-backend is
	// bound to a permission provider other than the shared one.
	ErrDifferentPermissionProviders = errors.New("all backends must share one permission provider")
)

// Backends carries the optional sub-backends, usually the concrete types
// from auth/basic, auth/loginform and auth/oauth2. Any slot may be nil.
type Backends struct {
	Basic     auth.Backend
	LoginForm auth.Backend
	OAuth2    auth.Backend
}

// Backend is the composite over the configured sub-backends plus the shared
// user and permission providers.
type Backend[P comparable] struct {
	backends Backends
	users    user.Provider
	perms    authz.Provider[P]
	metrics  *metrics.Collector
	logger   *logging.Logger
}

// New creates a composite backend. Every configured sub-backend must be
// bound to users (and, through auth.PermissionBound, to perms) so that all
// authentication paths see consistent data.
func New[P comparable](users user.Provider, perms authz.Provider[P], backends Backends, logger *logging.Logger, collector *metrics.Collector) (*Backend[P], error) {
	if users == nil {
		return nil, &auth.ConfigError{Field: "user_provider", Reason: "missing"}
	}
	if perms == nil {
		return nil, &auth.ConfigError{Field: "permission_provider", Reason: "missing"}
	}

	b := &Backend[P]{
		backends: backends,
		users:    users,
		perms:    perms,
		metrics:  collector,
		logger:   logger.WithModule("auth.composite"),
	}
	for _, sub := range b.subBackends() {
		if sub.backend.UserProvider() != users {
			return nil, ErrDifferentUserProviders
		}
		if bound, ok := sub.backend.(auth.PermissionBound); ok {
			if bound.PermissionProviderRef() != any(perms) {
				return nil, ErrDifferentPermissionProviders
			}
		}
	}
	return b, nil
}

type subBackend struct {
	backend auth.Backend
	typ     auth.AuthType
}

func (b *Backend[P]) subBackends() []subBackend {
	var subs []subBackend
	if b.backends.Basic != nil {
		subs = append(subs, subBackend{b.backends.Basic, auth.AuthTypeBasic})
	}
	if b.backends.LoginForm != nil {
		subs = append(subs, subBackend{b.backends.LoginForm, auth.AuthTypeLoginForm})
	}
	if b.backends.OAuth2 != nil {
		subs = append(subs, subBackend{b.backends.OAuth2, auth.AuthTypeOAuth2})
	}
	return subs
}

// Authenticate implements auth.Backend by routing the credential variant to
// its sub-backend. Credentials without a configured backend yield (nil, nil).
func (b *Backend[P]) Authenticate(ctx context.Context, creds auth.Credentials) (user.User, error) {
	var sub subBackend
	switch creds.(type) {
	case auth.BasicCredentials:
		sub = subBackend{b.backends.Basic, auth.AuthTypeBasic}
	case auth.LoginFormCredentials:
		sub = subBackend{b.backends.LoginForm, auth.AuthTypeLoginForm}
	case auth.OAuth2Credentials:
		sub = subBackend{b.backends.OAuth2, auth.AuthTypeOAuth2}
	default:
		return nil, nil
	}
	if sub.backend == nil {
		return nil, nil
	}

	u, err := sub.backend.Authenticate(ctx, creds)
	if err != nil {
		return nil, err
	}
	b.metrics.RecordAuthentication(string(sub.typ), u != nil)
	return u, nil
}

// GetUser implements auth.Backend with a single query to the shared
// provider.
func (b *Backend[P]) GetUser(ctx context.Context, principalID string) (user.User, error) {
	return b.users.GetUserByPrincipal(ctx, strings.ToLower(principalID))
}

// ProposeChallenge implements auth.Backend. When the request's Accept
// prefers text/html the browser-friendly backends go first (login form,
// then OAuth2, then Basic); otherwise Basic leads. The first configured
// backend that volunteers a challenge wins; with none left the response is
// a bare 401.
func (b *Backend[P]) ProposeChallenge(r *http.Request) http.Handler {
	var order []auth.Backend
	if acceptsHTML(r) {
		order = []auth.Backend{b.backends.LoginForm, b.backends.OAuth2, b.backends.Basic}
	} else {
		order = []auth.Backend{b.backends.Basic, b.backends.LoginForm, b.backends.OAuth2}
	}
	for _, sub := range order {
		if sub == nil {
			continue
		}
		if h := sub.ProposeChallenge(r); h != nil {
			return h
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
}

// UserProvider implements auth.Backend.
func (b *Backend[P]) UserProvider() user.Provider {
	return b.users
}

// PermissionProviderRef implements auth.PermissionBound.
func (b *Backend[P]) PermissionProviderRef() any {
	return b.perms
}

// PermissionProvider returns the shared permission provider.
func (b *Backend[P]) PermissionProvider() authz.Provider[P] {
	return b.perms
}

// acceptsHTML reports whether the client asked for an HTML answer. Browsers
// list text/html first; programmatic clients send */* or a concrete media
// type.
func acceptsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
