// internal/config/types.go
package config

import (
	"time"
)

// Config represents the complete application configuration
type Config struct {
	// Server holds HTTP server configuration
	Server struct {
		// Address is the address to listen on
		Address string
		// ShutdownTimeout is the maximum time to wait for a graceful shutdown
		ShutdownTimeout time.Duration
	}

	// Metrics holds metrics server configuration
	Metrics struct {
		// Address is the address to listen on for the metrics server
		Address string
	}

	// Session holds session cookie configuration
	Session struct {
		// CookieName is the session cookie name
		CookieName string
		// TTL is the inactivity expiry of a session
		TTL time.Duration
		// SameSite is the cookie SameSite mode (strict, lax, none)
		SameSite string
		// CookieSecure marks the session cookie HTTPS-only
		CookieSecure bool
		// SweepInterval is how often expired sessions are purged
		SweepInterval time.Duration
	}

	// Cache holds the user/permission cache configuration
	Cache struct {
		// Capacity is the maximum number of cached entries
		Capacity int
		// DefaultTTL applies to entries cached without an explicit TTL
		DefaultTTL time.Duration
	}

	// Users holds user provider configuration
	Users struct {
		// Backend selects the provider implementation (memory, postgres)
		Backend string
		// PostgresDSN is the database connection string for the postgres backend
		PostgresDSN string
		// QueryTimeout bounds each database query
		QueryTimeout time.Duration
	}

	// Auth holds authentication configuration
	Auth struct {
		// PasswordHasher selects the password comparator (plain, argon2)
		PasswordHasher string

		// Basic holds HTTP Basic configuration
		Basic struct {
			// Enabled indicates whether Basic authentication is enabled
			Enabled bool
			// Mode is either "supported" or "proposed"
			Mode string
			// Realm is sent in the WWW-Authenticate challenge
			Realm string
		}

		// LoginForm holds form login configuration
		LoginForm struct {
			// Enabled indicates whether form login is enabled
			Enabled bool
			// LoginURL is the login page path
			LoginURL string
		}

		// OAuth2 holds authorization-code grant configuration
		OAuth2 struct {
			// Enabled indicates whether OAuth2 authentication is enabled
			Enabled bool
			// Issuer, when set, discovers the endpoint URLs via OIDC discovery
			Issuer string
			// ClientID is the OAuth2 client ID
			ClientID string
			// ClientSecret is the OAuth2 client secret
			ClientSecret string
			// AuthURL is the authorization endpoint
			AuthURL string
			// TokenURL is the token endpoint
			TokenURL string
			// UserinfoURL is the userinfo endpoint
			UserinfoURL string
			// RedirectURL is the callback URL registered with the provider
			RedirectURL string
			// Scopes is the list of scopes to request
			Scopes []string
		}
	}

	// Observability holds observability configuration
	Observability struct {
		// LogLevel is the minimum log level to emit
		LogLevel string
	}

	// SeedUsers are accounts provisioned into the in-memory provider at
	// startup. Ignored for other backends.
	SeedUsers []SeedUser

	// Rules holds route protection rules
	Rules []Rule
}

// SeedUser describes an account provisioned at startup.
type SeedUser struct {
	// Username is the principal identity
	Username string `json:"username" yaml:"username" mapstructure:"username"`

	// Password is the plaintext password; it is hashed according to the
	// configured password hasher before being stored
	Password string `json:"password" yaml:"password" mapstructure:"password"`

	// Roles is the list of role names granted to the account
	Roles []string `json:"roles" yaml:"roles" mapstructure:"roles"`
}

// Rule defines a route protection rule
type Rule struct {
	// Name is a unique identifier for the rule
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// Action determines how matched requests are protected
	// Can be "public", "authn", or "authz"
	Action string `json:"action" yaml:"action" mapstructure:"action"`

	// Paths is a list of URL paths this rule applies to
	Paths []string `json:"paths" yaml:"paths" mapstructure:"paths"`

	// MatchPrefix indicates whether to match the path prefix instead of exact match
	MatchPrefix bool `json:"match_prefix" yaml:"match_prefix" mapstructure:"match_prefix"`

	// Methods is a list of HTTP methods this rule applies to (empty = all methods)
	Methods []string `json:"methods" yaml:"methods" mapstructure:"methods"`

	// Roles is the list of role names required for the "authz" action
	// Ignored for other actions
	Roles []string `json:"roles" yaml:"roles" mapstructure:"roles"`
}
