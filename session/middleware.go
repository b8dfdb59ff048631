package session

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"authgate/httputils"
	"authgate/observability/logging"
)

// DefaultCookieName is the session cookie name when none is configured.
const DefaultCookieName = "id"

// DefaultTTL is the default inactivity expiry.
const DefaultTTL = 24 * time.Hour

// Config holds session middleware configuration.
type Config struct {
	// CookieName is the session cookie name. Default "id".
	CookieName string

	// TTL is the inactivity expiry. Default 24h.
	TTL time.Duration

	// SameSite is the cookie SameSite mode. Default Lax, which lets the
	// OAuth2 provider redirect back with the cookie attached.
	SameSite http.SameSite

	// Secure marks the cookie as HTTPS-only.
	Secure bool

	// Path is the cookie path. Default "/".
	Path string
}

func (c Config) withDefaults() Config {
	if c.CookieName == "" {
		c.CookieName = DefaultCookieName
	}
	if c.TTL == 0 {
		c.TTL = DefaultTTL
	}
	if c.SameSite == 0 {
		c.SameSite = http.SameSiteLaxMode
	}
	if c.Path == "" {
		c.Path = "/"
	}
	return c
}

// Middleware restores the AuthSession from the session cookie (creating a
// fresh anonymous one otherwise), attaches it to the request context and
// persists it right before the response headers are flushed. A session that
// stays untouched is never stored, so anonymous traffic does not churn the
// store.
func Middleware(store Store, cfg Config, logger *logging.Logger) func(http.Handler) http.Handler {
	cfg = cfg.withDefaults()
	logger = logger.WithModule("session")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := logging.FromContextOr(ctx, logger)

			cookieID := ""
			data := sessionData{}
			if cookie, err := r.Cookie(cfg.CookieName); err == nil && cookie.Value != "" {
				payload, err := store.Load(ctx, cookie.Value)
				switch {
				case err != nil:
					log.Error("Failed to load session, starting fresh", logging.Err(err))
				case payload != nil:
					if err := json.Unmarshal(payload, &data); err != nil {
						log.Warn("Discarding undecodable session record", logging.Err(err))
						data = sessionData{}
					} else {
						cookieID = cookie.Value
					}
				}
			}

			id := cookieID
			if id == "" {
				id = NewID()
			}
			sess := newAuthSession(store, cfg.TTL, id, data)

			wrapper := httputils.Wrap(w)
			wrapper.BeforeWriteHeader(func() {
				// Detached so a cancelled request still persists a login
				// that already happened.
				saveCtx := context.WithoutCancel(r.Context())
				saved, err := sess.persist(saveCtx)
				if err != nil {
					log.Error("Failed to persist session", logging.Err(err))
					return
				}
				if saved && sess.ID() != cookieID {
					http.SetCookie(wrapper, &http.Cookie{
						Name:     cfg.CookieName,
						Value:    sess.ID(),
						Path:     cfg.Path,
						HttpOnly: true,
						Secure:   cfg.Secure,
						SameSite: cfg.SameSite,
						MaxAge:   int(cfg.TTL.Seconds()),
					})
				}
			})

			next.ServeHTTP(wrapper, r.WithContext(WithSession(ctx, sess)))
			wrapper.RunBeforeWriteHooks()
		})
	}
}
