// Package auth defines the shared contract between authentication backends:
// credential variants, the Backend interface, per-request authentication and
// challenge proposal. Concrete backends live in the subpackages basic,
// loginform, oauth2 and composite.
package auth

import (
	"context"
	"fmt"
	"net/http"

	"authgate/secure"
	"authgate/user"
)

// Credentials is the closed set of credential variants. Each variant is
// handled by exactly one backend.
type Credentials interface {
	credentials()
}

// BasicCredentials carries the decoded Authorization: Basic pair.
type BasicCredentials struct {
	Username string
	Password *secure.String
}

func (BasicCredentials) credentials() {}

// LoginFormCredentials carries a posted login form.
type LoginFormCredentials struct {
	Username string
	Password *secure.String

	// Next is the URL to return to after a successful login. Optional.
	Next string
}

func (LoginFormCredentials) credentials() {}

// OAuth2Credentials carries the authorization-code callback parameters.
// ClientState is the CSRF state stored in the session when the challenge was
// issued; ReturnedState is what the provider sent back.
type OAuth2Credentials struct {
	Code          string
	ClientState   string
	ReturnedState string
}

func (OAuth2Credentials) credentials() {}

// Backend is the common authenticate/get-user contract.
//
// Authenticate returns (nil, nil) on a credential mismatch so the middleware
// can fall through to ProposeChallenge; errors are reserved for provider and
// transport failures.
type Backend interface {
	// Authenticate verifies the matching credential variant and returns the
	// authenticated user, or (nil, nil) on mismatch.
	Authenticate(ctx context.Context, creds Credentials) (user.User, error)

	// GetUser looks up a user by principal id through the backend's provider.
	GetUser(ctx context.Context, principalID string) (user.User, error)

	// ProposeChallenge returns the handler that renders this backend's
	// rejection response for an unauthenticated request, or nil when the
	// backend declines to challenge.
	ProposeChallenge(r *http.Request) http.Handler

	// UserProvider exposes the provider the backend is bound to. The
	// composite uses it to enforce that all sub-backends share one provider.
	UserProvider() user.Provider
}

// RequestAuthenticator is implemented by backends that can authenticate
// straight from request metadata (Basic header, OAuth2 callback query).
// Implementations read headers, URL and session only, never the body.
type RequestAuthenticator interface {
	AuthenticateRequest(r *http.Request) (user.User, error)
}

// PermissionBound is implemented by backends bound to a permission provider.
// PermissionProviderRef returns the provider handle for identity comparison;
// the composite rejects sub-backends bound to a different instance.
type PermissionBound interface {
	PermissionProviderRef() any
}

// ChallengeMode controls whether a backend volunteers its challenge.
type ChallengeMode string

const (
	// ChallengeSupported accepts the backend's credentials but never
	// proposes its challenge.
	ChallengeSupported ChallengeMode = "supported"

	// ChallengeProposed proposes the backend's challenge on every
	// unauthenticated request.
	ChallengeProposed ChallengeMode = "proposed"
)

// ConfigError reports a malformed backend configuration. It is fatal at
// construction time.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid auth configuration: %s: %s", e.Field, e.Reason)
}
