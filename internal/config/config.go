// internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/exp/slices"
)

// Load loads the configuration from all sources and returns the merged result
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	Settings.PopulateViperDefaults(v)

	// Set up environment variable handling
	v.SetEnvPrefix("AUTHGATE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	// Load from config file if specified
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// It's okay if the config file doesn't exist, but other errors should be reported
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Create the config object
	config := &Config{}

	// Populate server configuration
	config.Server.Address = v.GetString("SERVER_ADDR")
	shutdownTimeout, err := parseDuration(v, "SHUTDOWN_TIMEOUT")
	if err != nil {
		return nil, err
	}
	config.Server.ShutdownTimeout = shutdownTimeout

	// Populate metrics configuration
	config.Metrics.Address = v.GetString("METRICS_ADDR")

	// Populate session configuration
	config.Session.CookieName = v.GetString("SESSION_COOKIE_NAME")
	config.Session.SameSite = v.GetString("SESSION_COOKIE_SAME_SITE")
	config.Session.CookieSecure = v.GetBool("SESSION_COOKIE_SECURE")
	if config.Session.TTL, err = parseDuration(v, "SESSION_TTL"); err != nil {
		return nil, err
	}
	if config.Session.SweepInterval, err = parseDuration(v, "SESSION_SWEEP_INTERVAL"); err != nil {
		return nil, err
	}

	// Populate cache configuration
	config.Cache.Capacity = v.GetInt("CACHE_CAPACITY")
	if config.Cache.DefaultTTL, err = parseDuration(v, "CACHE_DEFAULT_TTL"); err != nil {
		return nil, err
	}

	// Populate user provider configuration
	config.Users.Backend = v.GetString("USERS_BACKEND")
	config.Users.PostgresDSN = v.GetString("USERS_POSTGRES_DSN")
	if config.Users.QueryTimeout, err = parseDuration(v, "USERS_QUERY_TIMEOUT"); err != nil {
		return nil, err
	}

	// Populate authentication configuration
	config.Auth.PasswordHasher = v.GetString("AUTH_PASSWORD_HASHER")

	// Basic
	config.Auth.Basic.Enabled = v.GetBool("AUTH_BASIC_ENABLED")
	config.Auth.Basic.Mode = v.GetString("AUTH_BASIC_MODE")
	config.Auth.Basic.Realm = v.GetString("AUTH_BASIC_REALM")

	// Login form
	config.Auth.LoginForm.Enabled = v.GetBool("AUTH_LOGINFORM_ENABLED")
	config.Auth.LoginForm.LoginURL = v.GetString("AUTH_LOGINFORM_LOGIN_URL")

	// OAuth2
	config.Auth.OAuth2.Enabled = v.GetBool("AUTH_OAUTH2_ENABLED")
	config.Auth.OAuth2.Issuer = v.GetString("AUTH_OAUTH2_ISSUER")
	config.Auth.OAuth2.ClientID = v.GetString("AUTH_OAUTH2_CLIENT_ID")
	config.Auth.OAuth2.ClientSecret = v.GetString("AUTH_OAUTH2_CLIENT_SECRET")
	config.Auth.OAuth2.AuthURL = v.GetString("AUTH_OAUTH2_AUTH_URL")
	config.Auth.OAuth2.TokenURL = v.GetString("AUTH_OAUTH2_TOKEN_URL")
	config.Auth.OAuth2.UserinfoURL = v.GetString("AUTH_OAUTH2_USERINFO_URL")
	config.Auth.OAuth2.RedirectURL = v.GetString("AUTH_OAUTH2_REDIRECT_URL")
	config.Auth.OAuth2.Scopes = v.GetStringSlice("AUTH_OAUTH2_SCOPES")

	// Populate observability configuration
	config.Observability.LogLevel = v.GetString("LOG_LEVEL")

	// Seed users and rules come from the config file only
	if err := v.UnmarshalKey("seed_users", &config.SeedUsers); err != nil {
		return nil, fmt.Errorf("failed to parse seed users: %w", err)
	}
	if err := v.UnmarshalKey("rules", &config.Rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}

	// Validate the configuration
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", strings.ToLower(key), err)
	}
	return d, nil
}

// validateConfig performs validation on the loaded configuration
func validateConfig(cfg *Config) error {
	if !slices.Contains([]string{"strict", "lax", "none"}, cfg.Session.SameSite) {
		return fmt.Errorf("session cookie SameSite must be strict, lax or none, got %q", cfg.Session.SameSite)
	}
	if cfg.Cache.Capacity <= 0 {
		return fmt.Errorf("cache capacity must be positive, got %d", cfg.Cache.Capacity)
	}

	if !slices.Contains([]string{"memory", "postgres"}, cfg.Users.Backend) {
		return fmt.Errorf("users backend must be memory or postgres, got %q", cfg.Users.Backend)
	}
	if cfg.Users.Backend == "postgres" && cfg.Users.PostgresDSN == "" {
		return fmt.Errorf("postgres DSN is required when the postgres users backend is selected")
	}

	if err := validateAuthConfig(cfg); err != nil {
		return err
	}

	return validateRules(cfg)
}

// validateAuthConfig validates authentication configuration
func validateAuthConfig(cfg *Config) error {
	if !slices.Contains([]string{"plain", "argon2"}, cfg.Auth.PasswordHasher) {
		return fmt.Errorf("password hasher must be plain or argon2, got %q", cfg.Auth.PasswordHasher)
	}

	if cfg.Auth.Basic.Enabled {
		if !slices.Contains([]string{"supported", "proposed"}, cfg.Auth.Basic.Mode) {
			return fmt.Errorf("basic mode must be supported or proposed, got %q", cfg.Auth.Basic.Mode)
		}
	}

	if cfg.Auth.LoginForm.Enabled {
		if !strings.HasPrefix(cfg.Auth.LoginForm.LoginURL, "/") {
			return fmt.Errorf("login URL must be an absolute path, got %q", cfg.Auth.LoginForm.LoginURL)
		}
	}

	if cfg.Auth.OAuth2.Enabled {
		o := cfg.Auth.OAuth2
		if o.ClientID == "" {
			return fmt.Errorf("OAuth2 client ID is required when OAuth2 is enabled")
		}
		if o.ClientSecret == "" {
			return fmt.Errorf("OAuth2 client secret is required when OAuth2 is enabled")
		}
		if o.RedirectURL == "" {
			return fmt.Errorf("OAuth2 redirect URL is required when OAuth2 is enabled")
		}
		if o.Issuer == "" && (o.AuthURL == "" || o.TokenURL == "" || o.UserinfoURL == "") {
			return fmt.Errorf("OAuth2 needs either an issuer for discovery or explicit auth, token and userinfo URLs")
		}
		for name, value := range map[string]string{
			"issuer":       o.Issuer,
			"auth URL":     o.AuthURL,
			"token URL":    o.TokenURL,
			"userinfo URL": o.UserinfoURL,
			"redirect URL": o.RedirectURL,
		} {
			if value == "" {
				continue
			}
			if _, err := url.ParseRequestURI(value); err != nil {
				return fmt.Errorf("OAuth2 %s is not a valid URL: %q", name, value)
			}
		}
	}

	return nil
}

// validateRules validates route protection rules
func validateRules(cfg *Config) error {
	for _, rule := range cfg.Rules {
		if rule.Name == "" {
			return fmt.Errorf("every rule needs a name")
		}
		if !slices.Contains([]string{"public", "authn", "authz"}, rule.Action) {
			return fmt.Errorf("rule %q: action must be public, authn or authz, got %q", rule.Name, rule.Action)
		}
		if len(rule.Paths) == 0 {
			return fmt.Errorf("rule %q: at least one path is required", rule.Name)
		}
		if rule.Action == "authz" && len(rule.Roles) == 0 {
			return fmt.Errorf("rule %q: the authz action requires at least one role", rule.Name)
		}
	}
	return nil
}
