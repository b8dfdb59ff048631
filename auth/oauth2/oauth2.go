// Package oauth2 implements the authorization-code grant backend (RFC 6749
// §4.1): challenge redirects to the authorization server with a fresh CSRF
// state, the callback exchanges the code, fetches userinfo and upserts the
// user through the provider's OAuth2 store capability.
package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	xoauth2 "golang.org/x/oauth2"

	"authgate/auth"
	"authgate/observability/logging"
	"authgate/secure"
	"authgate/session"
	"authgate/user"
)

// DefaultExchangeTimeout bounds the token and userinfo endpoint calls.
const DefaultExchangeTimeout = 5 * time.Second

const (
	stateSessionKey = "oauth2_state"
	nextSessionKey  = "oauth2_next"

	userAgent = "authgate/1.0"
)

// Config holds OAuth2 backend configuration. All URL fields and the client
// pair are required; construction fails fast on anything missing.
type Config struct {
	ClientID     string
	ClientSecret *secure.String
	AuthURL      string
	TokenURL     string
	UserinfoURL  string
	RedirectURL  string
	Scopes       []string

	// ExchangeTimeout bounds each token/userinfo call. Default 5s.
	ExchangeTimeout time.Duration
}

func (c Config) validate() error {
	for _, f := range []struct{ name, value string }{
		{"oauth2.client_id", c.ClientID},
		{"oauth2.auth_uri", c.AuthURL},
		{"oauth2.token_uri", c.TokenURL},
		{"oauth2.userinfo_uri", c.UserinfoURL},
		{"oauth2.redirect_uri", c.RedirectURL},
	} {
		if f.value == "" {
			return &auth.ConfigError{Field: f.name, Reason: "missing"}
		}
		if f.name != "oauth2.client_id" {
			if _, err := url.ParseRequestURI(f.value); err != nil {
				return &auth.ConfigError{Field: f.name, Reason: "not a valid URL"}
			}
		}
	}
	if c.ClientSecret.Len() == 0 {
		return &auth.ConfigError{Field: "oauth2.client_secret", Reason: "missing"}
	}
	return nil
}

// Backend authenticates OAuth2 callback credentials and maintains users
// through the provider's OAuth2 store capability.
type Backend struct {
	provider user.Provider
	store    user.OAuth2Store
	oauth    xoauth2.Config
	cfg      Config
	client   *http.Client
	logger   *logging.Logger
}

// New creates an OAuth2 backend. The provider must implement
// user.OAuth2Store so the callback can upsert authenticated users.
func New(provider user.Provider, cfg Config, logger *logging.Logger) (*Backend, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	store, ok := provider.(user.OAuth2Store)
	if !ok {
		return nil, &auth.ConfigError{Field: "oauth2.provider", Reason: "user provider cannot store OAuth2 users"}
	}
	if cfg.ExchangeTimeout == 0 {
		cfg.ExchangeTimeout = DefaultExchangeTimeout
	}
	return &Backend{
		provider: provider,
		store:    store,
		cfg:      cfg,
		oauth: xoauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: string(cfg.ClientSecret.Bytes()),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: xoauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		client: &http.Client{Timeout: cfg.ExchangeTimeout},
		logger: logger.WithModule("auth.oauth2"),
	}, nil
}

// NewFromIssuer discovers the endpoint URLs from the issuer's OIDC
// discovery document and fills them into cfg before construction. Explicitly
// configured URLs win over discovered ones.
func NewFromIssuer(ctx context.Context, issuer string, provider user.Provider, cfg Config, logger *logging.Logger) (*Backend, error) {
	discovered, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OAuth2 endpoints from %s: %w", issuer, err)
	}
	var claims struct {
		UserinfoEndpoint string `json:"userinfo_endpoint"`
	}
	if err := discovered.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to read discovery document: %w", err)
	}

	endpoint := discovered.Endpoint()
	if cfg.AuthURL == "" {
		cfg.AuthURL = endpoint.AuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = endpoint.TokenURL
	}
	if cfg.UserinfoURL == "" {
		cfg.UserinfoURL = claims.UserinfoEndpoint
	}
	return New(provider, cfg, logger)
}

// Authenticate implements auth.Backend. A state mismatch yields (nil, nil);
// so does a rejected code exchange. Userinfo and store failures are errors.
func (b *Backend) Authenticate(ctx context.Context, creds auth.Credentials) (user.User, error) {
	cbCreds, ok := creds.(auth.OAuth2Credentials)
	if !ok {
		return nil, nil
	}
	log := logging.FromContextOr(ctx, b.logger)

	if cbCreds.ClientState == "" || cbCreds.ClientState != cbCreds.ReturnedState {
		log.Warn("OAuth2 state mismatch, rejecting callback")
		return nil, nil
	}

	exchangeCtx, cancel := context.WithTimeout(
		context.WithValue(ctx, xoauth2.HTTPClient, b.client), b.cfg.ExchangeTimeout)
	defer cancel()

	token, err := b.oauth.Exchange(exchangeCtx, cbCreds.Code)
	if err != nil {
		log.Warn("OAuth2 code exchange rejected", logging.Err(err))
		return nil, nil
	}

	principal, err := b.fetchPrincipal(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	accessToken := secure.NewFromString(token.AccessToken)
	u, err := b.store.UpsertAccessToken(ctx, principal, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert OAuth2 user: %w", err)
	}

	if sess := session.FromContext(ctx); sess != nil {
		sess.Delete(stateSessionKey)
		if err := sess.Login(ctx, u.PrincipalID(), u.SessionAuthHash()); err != nil {
			return nil, fmt.Errorf("failed to bind session: %w", err)
		}
	}
	log.Info("OAuth2 login", "user", u.PrincipalID())
	return u, nil
}

// GetUser implements auth.Backend.
func (b *Backend) GetUser(ctx context.Context, principalID string) (user.User, error) {
	return b.provider.GetUserByPrincipal(ctx, strings.ToLower(principalID))
}

// AuthenticateRequest implements auth.RequestAuthenticator for the callback
// request. Non-callback requests yield (nil, nil) without side effects.
func (b *Backend) AuthenticateRequest(r *http.Request) (user.User, error) {
	if !b.isCallback(r) {
		return nil, nil
	}
	query := r.URL.Query()
	clientState := ""
	if sess := session.FromContext(r.Context()); sess != nil {
		clientState = sess.Get(stateSessionKey)
	}
	return b.Authenticate(r.Context(), auth.OAuth2Credentials{
		Code:          query.Get("code"),
		ClientState:   clientState,
		ReturnedState: query.Get("state"),
	})
}

// ProposeChallenge implements auth.Backend: generate a fresh CSRF state into
// the session and redirect to the authorization URL. Without a session there
// is nowhere to keep the state, so the backend declines.
func (b *Backend) ProposeChallenge(r *http.Request) http.Handler {
	sess := session.FromContext(r.Context())
	if sess == nil {
		return nil
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		state := session.NewID()
		sess.Set(stateSessionKey, state)
		sess.Set(nextSessionKey, req.URL.RequestURI())
		target := b.oauth.AuthCodeURL(state)
		logging.FromContextOr(req.Context(), b.logger).Debug(
			"Redirecting to authorization endpoint", "url", logging.RedactStringURL(target))
		http.Redirect(w, req, target, http.StatusFound)
	})
}

// UserProvider implements auth.Backend.
func (b *Backend) UserProvider() user.Provider {
	return b.provider
}

// CallbackHandler serves the redirect URL: it authenticates the callback and
// sends the browser back to the page that triggered the challenge.
func (b *Backend) CallbackHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logging.FromContextOr(r.Context(), b.logger)

		u, err := b.AuthenticateRequest(r)
		if err != nil {
			log.Error("OAuth2 callback failed", logging.Err(err))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if u == nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next := "/"
		if sess := session.FromContext(r.Context()); sess != nil {
			if stored := sess.Get(nextSessionKey); strings.HasPrefix(stored, "/") && !strings.HasPrefix(stored, "//") {
				next = stored
			}
			sess.Delete(nextSessionKey)
		}
		http.Redirect(w, r, next, http.StatusFound)
	})
}

func (b *Backend) isCallback(r *http.Request) bool {
	cb, err := url.Parse(b.cfg.RedirectURL)
	if err != nil {
		return false
	}
	return r.URL.Path == cb.Path && r.URL.Query().Get("code") != ""
}

// fetchPrincipal asks the userinfo endpoint who the token belongs to. The
// principal is the login field, falling back to email, then sub.
func (b *Backend) fetchPrincipal(ctx context.Context, accessToken string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.ExchangeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.cfg.UserinfoURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("userinfo endpoint returned %d: %s", resp.StatusCode, body)
	}

	var info struct {
		Login string `json:"login"`
		Email string `json:"email"`
		Sub   string `json:"sub"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("failed to decode userinfo: %w", err)
	}

	for _, candidate := range []string{info.Login, info.Email, info.Sub} {
		if candidate != "" {
			return strings.ToLower(candidate), nil
		}
	}
	return "", fmt.Errorf("userinfo response carries no principal field")
}
