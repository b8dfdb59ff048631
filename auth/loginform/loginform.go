// Package loginform implements session-backed form login: an authentication
// backend that verifies posted credentials and binds them to the session,
// plus ready-made login/logout handlers.
package loginform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"authgate/auth"
	"authgate/observability/logging"
	"authgate/secure"
	"authgate/session"
	"authgate/user"
)

// DefaultLoginURL is used when no login URL is configured.
const DefaultLoginURL = "/login"

// Config holds login-form backend configuration.
type Config struct {
	// LoginURL is where unauthenticated HTML requests are sent. Default
	// "/login".
	LoginURL string
}

// Backend authenticates posted login forms against a user provider and logs
// the user into the request session on success.
type Backend struct {
	provider   user.Provider
	comparator auth.PasswordComparator
	loginURL   string
	logger     *logging.Logger
}

// New creates a login-form backend.
func New(provider user.Provider, comparator auth.PasswordComparator, cfg Config, logger *logging.Logger) *Backend {
	if cfg.LoginURL == "" {
		cfg.LoginURL = DefaultLoginURL
	}
	return &Backend{
		provider:   provider,
		comparator: comparator,
		loginURL:   cfg.LoginURL,
		logger:     logger.WithModule("auth.loginform"),
	}
}

// Authenticate implements auth.Backend. On success the user is logged into
// the session carried by ctx, rotating the session id.
func (b *Backend) Authenticate(ctx context.Context, creds auth.Credentials) (user.User, error) {
	formCreds, ok := creds.(auth.LoginFormCredentials)
	if !ok {
		return nil, nil
	}

	u, err := b.provider.GetUserByPrincipal(ctx, strings.ToLower(formCreds.Username))
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if u == nil {
		b.logger.Debug("Unknown principal", "user", formCreds.Username)
		return nil, nil
	}

	pswUser, ok := u.(user.PswUser)
	if !ok {
		b.logger.Debug("User record has no password capability", "user", u.PrincipalID())
		return nil, nil
	}

	storedPsw := pswUser.Password()
	defer storedPsw.Destroy()

	match, err := b.comparator.Compare(storedPsw, formCreds.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to compare password: %w", err)
	}
	if !match {
		b.logger.Debug("Password mismatch", "user", u.PrincipalID())
		return nil, nil
	}

	if sess := session.FromContext(ctx); sess != nil {
		if err := sess.Login(ctx, u.PrincipalID(), u.SessionAuthHash()); err != nil {
			return nil, fmt.Errorf("failed to bind session: %w", err)
		}
	}
	return u, nil
}

// GetUser implements auth.Backend.
func (b *Backend) GetUser(ctx context.Context, principalID string) (user.User, error) {
	return b.provider.GetUserByPrincipal(ctx, strings.ToLower(principalID))
}

// ProposeChallenge implements auth.Backend. It renders 401 with a Location
// header pointing at the login URL plus a meta-refresh HTML body, so both
// browsers and programmatic clients get a usable response.
func (b *Backend) ProposeChallenge(r *http.Request) http.Handler {
	target := fmt.Sprintf("%s?next=%s", b.loginURL, url.QueryEscape(r.URL.RequestURI()))
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Location", target)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprintf(w, `<html><head><meta http-equiv="refresh" content="0; url=%s"></head>`+
			`<body>Unauthorized. <a href=%q>Log in</a></body></html>`, target, target)
	})
}

// UserProvider implements auth.Backend.
func (b *Backend) UserProvider() user.Provider {
	return b.provider
}

// LoginURL returns the configured login URL.
func (b *Backend) LoginURL() string {
	return b.loginURL
}

// LoginHandler serves the login endpoint: GET renders a minimal form, POST
// authenticates {username, password, next} and redirects to next on success.
func (b *Backend) LoginHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			b.renderForm(w, http.StatusOK, r.URL.Query().Get("next"))
		case http.MethodPost:
			b.handleLogin(w, r)
		default:
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		}
	})
}

// LogoutHandler drops the session and redirects to the site root.
func (b *Backend) LogoutHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logging.FromContextOr(r.Context(), b.logger)
		if sess := session.FromContext(r.Context()); sess != nil {
			if err := sess.Logout(r.Context()); err != nil {
				log.Error("Failed to log out", logging.Err(err))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
		}
		http.Redirect(w, r, "/", http.StatusFound)
	})
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContextOr(r.Context(), b.logger)

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	psw := secure.NewFromString(r.PostFormValue("password"))
	defer psw.Destroy()

	u, err := b.Authenticate(r.Context(), auth.LoginFormCredentials{
		Username: r.PostFormValue("username"),
		Password: psw,
		Next:     r.PostFormValue("next"),
	})
	if err != nil {
		log.Error("Login failed", logging.Err(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if u == nil {
		b.renderForm(w, http.StatusUnauthorized, r.PostFormValue("next"))
		return
	}

	log.Info("User logged in", "user", u.PrincipalID())
	http.Redirect(w, r, sanitizeNext(r.PostFormValue("next")), http.StatusFound)
}

func (b *Backend) renderForm(w http.ResponseWriter, status int, next string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<html><body><form method="post" action=%q>`+
		`<input name="username" placeholder="username">`+
		`<input name="password" type="password" placeholder="password">`+
		`<input name="next" type="hidden" value=%q>`+
		`<button type="submit">Log in</button></form></body></html>`,
		b.loginURL, sanitizeNext(next))
}

// sanitizeNext keeps redirect targets local: only origin-relative paths pass
// through, anything else falls back to the site root.
func sanitizeNext(next string) string {
	if strings.HasPrefix(next, "/") && !strings.HasPrefix(next, "//") && !strings.HasPrefix(next, "/\\") {
		return next
	}
	return "/"
}
