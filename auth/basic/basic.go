// Package basic implements the HTTP Basic authentication backend.
package basic

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"authgate/auth"
	"authgate/observability/logging"
	"authgate/secure"
	"authgate/user"
)

// DefaultRealm is used when no realm is configured.
const DefaultRealm = "Restricted"

// Config holds Basic backend configuration.
type Config struct {
	// Realm is sent in the WWW-Authenticate challenge. Default "Restricted".
	Realm string

	// Mode controls whether the backend proposes its challenge. In
	// Supported mode Basic credentials are accepted but the backend never
	// volunteers a 401 challenge. Default Proposed.
	Mode auth.ChallengeMode
}

// Backend authenticates Authorization: Basic credentials against a user
// provider through an injected password comparator.
type Backend struct {
	provider   user.Provider
	comparator auth.PasswordComparator
	realm      string
	mode       auth.ChallengeMode
	logger     *logging.Logger
}

// New creates a Basic backend.
func New(provider user.Provider, comparator auth.PasswordComparator, cfg Config, logger *logging.Logger) *Backend {
	if cfg.Realm == "" {
		cfg.Realm = DefaultRealm
	}
	if cfg.Mode == "" {
		cfg.Mode = auth.ChallengeProposed
	}
	return &Backend{
		provider:   provider,
		comparator: comparator,
		realm:      cfg.Realm,
		mode:       cfg.Mode,
		logger:     logger.WithModule("auth.basic"),
	}
}

// Authenticate implements auth.Backend. A wrong password or unknown user
// yields (nil, nil).
func (b *Backend) Authenticate(ctx context.Context, creds auth.Credentials) (user.User, error) {
	basicCreds, ok := creds.(auth.BasicCredentials)
	if !ok {
		return nil, nil
	}

	u, err := b.provider.GetUserByPrincipal(ctx, strings.ToLower(basicCreds.Username))
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if u == nil {
		b.logger.Debug("Unknown principal", "user", basicCreds.Username)
		return nil, nil
	}

	pswUser, ok := u.(user.PswUser)
	if !ok {
		b.logger.Debug("User record has no password capability", "user", u.PrincipalID())
		return nil, nil
	}

	storedPsw := pswUser.Password()
	defer storedPsw.Destroy()

	match, err := b.comparator.Compare(storedPsw, basicCreds.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to compare password: %w", err)
	}
	if !match {
		b.logger.Debug("Password mismatch", "user", u.PrincipalID())
		return nil, nil
	}
	return u, nil
}

// GetUser implements auth.Backend.
func (b *Backend) GetUser(ctx context.Context, principalID string) (user.User, error) {
	return b.provider.GetUserByPrincipal(ctx, strings.ToLower(principalID))
}

// AuthenticateRequest implements auth.RequestAuthenticator. It reads only
// the Authorization header.
func (b *Backend) AuthenticateRequest(r *http.Request) (user.User, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return nil, nil
	}
	psw := secure.NewFromString(password)
	defer psw.Destroy()

	return b.Authenticate(r.Context(), auth.BasicCredentials{
		Username: username,
		Password: psw,
	})
}

// ProposeChallenge implements auth.Backend. In Supported mode it returns
// nil; in Proposed mode it renders 401 with a WWW-Authenticate header.
func (b *Backend) ProposeChallenge(_ *http.Request) http.Handler {
	if b.mode != auth.ChallengeProposed {
		return nil
	}
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", b.realm))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

// UserProvider implements auth.Backend.
func (b *Backend) UserProvider() user.Provider {
	return b.provider
}
