// internal/server/factory.go
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"authgate/auth"
	"authgate/auth/basic"
	"authgate/auth/composite"
	"authgate/auth/loginform"
	"authgate/auth/oauth2"
	"authgate/authz"
	"authgate/cache"
	"authgate/internal/config"
	"authgate/observability"
	"authgate/observability/logging"
	"authgate/secure"
	"authgate/session"
	"authgate/user"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
)

// NewFromConfig creates a new server from configuration
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	// Initialize observability
	obs, err := observability.NewProvider(cfg.Observability.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}
	logger := obs.Logger

	comparator, err := createComparator(cfg)
	if err != nil {
		return nil, err
	}

	// Initialize the user provider; it doubles as the permission source
	provider, perms, cleanup, err := createProviders(cfg, comparator, logger)
	if err != nil {
		return nil, err
	}

	// Front both providers with bounded TTL caches
	userCache, err := cache.New[string, user.User](cfg.Cache.Capacity, cfg.Cache.DefaultTTL,
		cache.WithObserver[string, user.User](obs.Metrics.RecordCacheEvent))
	if err != nil {
		return nil, fmt.Errorf("failed to create user cache: %w", err)
	}
	permCache, err := cache.New[string, authz.Set[authz.Role]](cfg.Cache.Capacity, cfg.Cache.DefaultTTL,
		cache.WithObserver[string, authz.Set[authz.Role]](obs.Metrics.RecordCacheEvent))
	if err != nil {
		return nil, fmt.Errorf("failed to create permission cache: %w", err)
	}
	cachedUsers := user.NewCachedProvider(provider, userCache)
	cachedPerms := authz.NewCachedProvider[authz.Role](perms, permCache)

	// Initialize the authentication backends
	backends, lfBackend, oaBackend, err := createBackends(ctx, cfg, cachedUsers, comparator, logger)
	if err != nil {
		return nil, err
	}
	authBackend, err := composite.New[authz.Role](cachedUsers, cachedPerms, backends, logger, obs.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize authentication: %w", err)
	}

	// Initialize the session store and its expiry sweeper
	store := session.NewMemoryStore()
	stopSweeping := store.StartSweeping(cfg.Session.SweepInterval, obs.Metrics.SetActiveSessions)

	sameSite, err := parseSameSite(cfg.Session.SameSite)
	if err != nil {
		return nil, err
	}
	sessionMiddleware := session.Middleware(store, session.Config{
		CookieName: cfg.Session.CookieName,
		TTL:        cfg.Session.TTL,
		SameSite:   sameSite,
		Secure:     cfg.Session.CookieSecure,
	}, logger)

	// Initialize the router
	router, err := createRouter(cfg, authBackend, lfBackend, oaBackend, logger)
	if err != nil {
		return nil, err
	}

	serverConfig := Config{
		Address:         cfg.Server.Address,
		MetricsAddress:  cfg.Metrics.Address,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}

	// Create complete middleware chain: observability -> session -> router
	handler := obs.Middleware(sessionMiddleware(router))

	srv := New(serverConfig, handler, obs.MetricsHandler(), logger)
	srv.OnStop(stopSweeping)
	if cleanup != nil {
		srv.OnStop(cleanup)
	}
	return srv, nil
}

// createComparator selects the password comparator
func createComparator(cfg *config.Config) (auth.PasswordComparator, error) {
	switch cfg.Auth.PasswordHasher {
	case "plain":
		return auth.PlainComparator{}, nil
	case "argon2":
		return auth.NewArgon2Comparator(), nil
	}
	return nil, fmt.Errorf("unknown password hasher %q", cfg.Auth.PasswordHasher)
}

// createProviders builds the configured user provider and the permission
// provider backed by the same storage. cleanup, when non-nil, releases the
// provider's resources on shutdown.
func createProviders(cfg *config.Config, comparator auth.PasswordComparator, logger *logging.Logger) (user.Provider, authz.Provider[authz.Role], func(), error) {
	switch cfg.Users.Backend {
	case "memory":
		accounts, err := seedAccounts(cfg, comparator)
		if err != nil {
			return nil, nil, nil, err
		}
		p := user.NewInMemoryProvider(accounts...)
		return p, p, nil, nil

	case "postgres":
		logger.Info("Connecting to user database", "dsn", logging.RedactPostgresDSN(cfg.Users.PostgresDSN))
		db, err := sql.Open("postgres", cfg.Users.PostgresDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open user database: %w", err)
		}
		p := user.NewPostgresProvider(db, logger).WithQueryTimeout(cfg.Users.QueryTimeout)
		return p, p, func() { _ = db.Close() }, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown users backend %q", cfg.Users.Backend)
}

// seedAccounts provisions the configured accounts, hashing each password
// with the active comparator.
func seedAccounts(cfg *config.Config, comparator auth.PasswordComparator) ([]*user.Account, error) {
	accounts := make([]*user.Account, 0, len(cfg.SeedUsers))
	for _, seed := range cfg.SeedUsers {
		psw := secure.NewFromString(seed.Password)
		if hasher, ok := comparator.(*auth.Argon2Comparator); ok {
			encoded, err := hasher.Hash(psw)
			psw.Destroy()
			if err != nil {
				return nil, fmt.Errorf("failed to hash password for %q: %w", seed.Username, err)
			}
			psw = secure.NewFromString(encoded)
		}

		roles := make([]authz.Role, 0, len(seed.Roles))
		for _, name := range seed.Roles {
			role, ok := authz.RoleFromName(name)
			if !ok {
				return nil, fmt.Errorf("user %q: unknown role %q", seed.Username, name)
			}
			roles = append(roles, role)
		}
		accounts = append(accounts, user.NewAccount(seed.Username).WithPassword(psw).WithRoles(roles...))
	}
	return accounts, nil
}

// createBackends builds the enabled authentication backends, all bound to
// the shared provider. The login form and OAuth2 backends are also returned
// concretely so their handlers can be routed.
func createBackends(ctx context.Context, cfg *config.Config, provider user.Provider, comparator auth.PasswordComparator, logger *logging.Logger) (composite.Backends, *loginform.Backend, *oauth2.Backend, error) {
	var backends composite.Backends
	var lfBackend *loginform.Backend
	var oaBackend *oauth2.Backend

	if cfg.Auth.Basic.Enabled {
		b := basic.New(provider, comparator, basic.Config{
			Realm: cfg.Auth.Basic.Realm,
			Mode:  auth.ChallengeMode(cfg.Auth.Basic.Mode),
		}, logger)
		backends.Basic = b
	}

	if cfg.Auth.LoginForm.Enabled {
		lfBackend = loginform.New(provider, comparator, loginform.Config{
			LoginURL: cfg.Auth.LoginForm.LoginURL,
		}, logger)
		backends.LoginForm = lfBackend
	}

	if cfg.Auth.OAuth2.Enabled {
		oaCfg := oauth2.Config{
			ClientID:     cfg.Auth.OAuth2.ClientID,
			ClientSecret: secure.NewFromString(cfg.Auth.OAuth2.ClientSecret),
			AuthURL:      cfg.Auth.OAuth2.AuthURL,
			TokenURL:     cfg.Auth.OAuth2.TokenURL,
			UserinfoURL:  cfg.Auth.OAuth2.UserinfoURL,
			RedirectURL:  cfg.Auth.OAuth2.RedirectURL,
			Scopes:       cfg.Auth.OAuth2.Scopes,
		}

		var err error
		if cfg.Auth.OAuth2.Issuer != "" {
			oaBackend, err = oauth2.NewFromIssuer(ctx, cfg.Auth.OAuth2.Issuer, provider, oaCfg, logger)
		} else {
			oaBackend, err = oauth2.New(provider, oaCfg, logger)
		}
		if err != nil {
			return backends, nil, nil, fmt.Errorf("failed to initialize OAuth2: %w", err)
		}
		backends.OAuth2 = oaBackend
	}

	return backends, lfBackend, oaBackend, nil
}

// createRouter builds the route table: the auth endpoints first, then one
// route per protection rule.
func createRouter(cfg *config.Config, backend *composite.Backend[authz.Role], lfBackend *loginform.Backend, oaBackend *oauth2.Backend, logger *logging.Logger) (*mux.Router, error) {
	log := logger.WithModule("router")
	r := mux.NewRouter()

	if lfBackend != nil {
		r.Path(lfBackend.LoginURL()).Handler(lfBackend.LoginHandler())
		r.Path("/logout").Handler(lfBackend.LogoutHandler())
	}
	if oaBackend != nil {
		callback, err := url.Parse(cfg.Auth.OAuth2.RedirectURL)
		if err != nil || callback.Path == "" {
			return nil, fmt.Errorf("OAuth2 redirect URL %q has no usable path", cfg.Auth.OAuth2.RedirectURL)
		}
		r.Path(callback.Path).Handler(oaBackend.CallbackHandler())
	}

	resource := resourceHandler()
	for _, rule := range cfg.Rules {
		log.Debug("Setting up route",
			"name", rule.Name,
			"action", rule.Action,
			"paths", rule.Paths,
			"methods", rule.Methods,
		)

		handler, err := ruleHandler(rule, backend, resource)
		if err != nil {
			return nil, err
		}

		for _, path := range rule.Paths {
			var route *mux.Route
			if rule.MatchPrefix {
				route = r.PathPrefix(path)
			} else {
				route = r.Path(path)
			}
			if len(rule.Methods) > 0 {
				route = route.Methods(rule.Methods...)
			}
			route.Name(rule.Name).Handler(handler)
		}
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		log.Warn("Request received for undefined route", "path", req.URL.Path)
		http.Error(w, "404 page not found", http.StatusNotFound)
	})

	return r, nil
}

// ruleHandler wraps the resource handler with the middleware the rule's
// action demands.
func ruleHandler(rule config.Rule, backend *composite.Backend[authz.Role], resource http.Handler) (http.Handler, error) {
	switch rule.Action {
	case "public":
		return resource, nil
	case "authn":
		return backend.RequireAuthentication(resource), nil
	case "authz":
		roles := make([]authz.Role, 0, len(rule.Roles))
		for _, name := range rule.Roles {
			role, ok := authz.RoleFromName(name)
			if !ok {
				return nil, fmt.Errorf("rule %q: unknown role %q", rule.Name, name)
			}
			roles = append(roles, role)
		}
		required := authz.Roles(roles...)
		return backend.RequireAuthentication(backend.RequirePermissions(required)(resource)), nil
	}
	return nil, fmt.Errorf("rule %q: unknown action %q", rule.Name, rule.Action)
}

// resourceHandler serves the demo page behind the protection rules. It
// greets the authenticated principal, or anonymously on public routes.
func resourceHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		greeting := "Hello, anonymous"
		if u := auth.UserFromContext(r.Context()); u != nil {
			greeting = "Hello, " + u.PrincipalID()
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "%s\nresource: %s\n", greeting, r.URL.Path)
	})
}

// parseSameSite maps the configured SameSite name to its http constant.
func parseSameSite(name string) (http.SameSite, error) {
	switch strings.ToLower(name) {
	case "strict":
		return http.SameSiteStrictMode, nil
	case "lax":
		return http.SameSiteLaxMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	}
	return 0, fmt.Errorf("unknown SameSite mode %q", name)
}
