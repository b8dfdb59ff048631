// internal/config/settings.go
package config

import "github.com/spf13/viper"

// SettingType represents the type of a setting
type SettingType string

const (
	// String type for string settings
	String SettingType = "string"
	// Bool type for boolean settings
	Bool SettingType = "bool"
	// Int type for integer settings
	Int SettingType = "int"
	// StringSlice type for string slice settings
	StringSlice SettingType = "stringSlice"
)

// Setting defines a configuration setting
type Setting struct {
	// Name is the name of the setting
	Name string
	// Short is a short description of the setting
	Short string
	// Type is the type of the setting
	Type SettingType
	// Default is the default value of the setting
	Default interface{}
	// Env is the environment variable name for the setting
	Env string
	// Required indicates whether the setting is required
	Required bool
}

// SettingList is a list of settings
type SettingList []Setting

// PopulateViperDefaults sets default values for all settings in Viper
func (sl SettingList) PopulateViperDefaults(v *viper.Viper) {
	for _, s := range sl {
		v.SetDefault(s.Name, s.Default)
	}
}

// Settings defines all application settings
var Settings = SettingList{
	// Server settings
	{
		Name:    "SERVER_ADDR",
		Short:   "Address on which the server listens",
		Type:    String,
		Default: ":8000",
		Env:     "SERVER_ADDR",
	},
	{
		Name:    "METRICS_ADDR",
		Short:   "Address on which the metrics server listens",
		Type:    String,
		Default: ":9090",
		Env:     "METRICS_ADDR",
	},
	{
		Name:    "SHUTDOWN_TIMEOUT",
		Short:   "Maximum time to wait for graceful shutdown",
		Type:    String,
		Default: "30s",
		Env:     "SHUTDOWN_TIMEOUT",
	},

	// Session settings
	{
		Name:    "SESSION_COOKIE_NAME",
		Short:   "Name of the session cookie",
		Type:    String,
		Default: "id",
		Env:     "SESSION_COOKIE_NAME",
	},
	{
		Name:    "SESSION_TTL",
		Short:   "Session inactivity expiry",
		Type:    String,
		Default: "24h",
		Env:     "SESSION_TTL",
	},
	{
		Name:    "SESSION_COOKIE_SAME_SITE",
		Short:   "Session cookie SameSite mode (strict, lax, none)",
		Type:    String,
		Default: "lax",
		Env:     "SESSION_COOKIE_SAME_SITE",
	},
	{
		Name:    "SESSION_COOKIE_SECURE",
		Short:   "Mark the session cookie HTTPS-only",
		Type:    Bool,
		Default: false,
		Env:     "SESSION_COOKIE_SECURE",
	},
	{
		Name:    "SESSION_SWEEP_INTERVAL",
		Short:   "How often expired sessions are purged",
		Type:    String,
		Default: "10m",
		Env:     "SESSION_SWEEP_INTERVAL",
	},

	// Cache settings
	{
		Name:    "CACHE_CAPACITY",
		Short:   "Maximum number of cached user/permission entries",
		Type:    Int,
		Default: 1024,
		Env:     "CACHE_CAPACITY",
	},
	{
		Name:    "CACHE_DEFAULT_TTL",
		Short:   "Default TTL for cached entries",
		Type:    String,
		Default: "60s",
		Env:     "CACHE_DEFAULT_TTL",
	},

	// User provider settings
	{
		Name:    "USERS_BACKEND",
		Short:   "User provider backend (memory, postgres)",
		Type:    String,
		Default: "memory",
		Env:     "USERS_BACKEND",
	},
	{
		Name:    "USERS_POSTGRES_DSN",
		Short:   "Postgres connection string for the postgres backend",
		Type:    String,
		Default: "",
		Env:     "USERS_POSTGRES_DSN",
	},
	{
		Name:    "USERS_QUERY_TIMEOUT",
		Short:   "Per-query timeout for the postgres backend",
		Type:    String,
		Default: "2s",
		Env:     "USERS_QUERY_TIMEOUT",
	},

	// Authentication: shared
	{
		Name:    "AUTH_PASSWORD_HASHER",
		Short:   "Password comparator (plain, argon2)",
		Type:    String,
		Default: "argon2",
		Env:     "AUTH_PASSWORD_HASHER",
	},

	// Authentication: Basic
	{
		Name:    "AUTH_BASIC_ENABLED",
		Short:   "Enable HTTP Basic authentication",
		Type:    Bool,
		Default: true,
		Env:     "AUTH_BASIC_ENABLED",
	},
	{
		Name:    "AUTH_BASIC_MODE",
		Short:   "Basic challenge mode (supported, proposed)",
		Type:    String,
		Default: "proposed",
		Env:     "AUTH_BASIC_MODE",
	},
	{
		Name:    "AUTH_BASIC_REALM",
		Short:   "Realm sent in the Basic challenge",
		Type:    String,
		Default: "authgate",
		Env:     "AUTH_BASIC_REALM",
	},

	// Authentication: login form
	{
		Name:    "AUTH_LOGINFORM_ENABLED",
		Short:   "Enable form login",
		Type:    Bool,
		Default: true,
		Env:     "AUTH_LOGINFORM_ENABLED",
	},
	{
		Name:    "AUTH_LOGINFORM_LOGIN_URL",
		Short:   "Login page path",
		Type:    String,
		Default: "/login",
		Env:     "AUTH_LOGINFORM_LOGIN_URL",
	},

	// Authentication: OAuth2
	{
		Name:    "AUTH_OAUTH2_ENABLED",
		Short:   "Enable OAuth2 authorization-code authentication",
		Type:    Bool,
		Default: false,
		Env:     "AUTH_OAUTH2_ENABLED",
	},
	{
		Name:    "AUTH_OAUTH2_ISSUER",
		Short:   "Issuer URL for OIDC endpoint discovery",
		Type:    String,
		Default: "",
		Env:     "AUTH_OAUTH2_ISSUER",
	},
	{
		Name:    "AUTH_OAUTH2_CLIENT_ID",
		Short:   "OAuth2 client ID",
		Type:    String,
		Default: "",
		Env:     "AUTH_OAUTH2_CLIENT_ID",
	},
	{
		Name:    "AUTH_OAUTH2_CLIENT_SECRET",
		Short:   "OAuth2 client secret",
		Type:    String,
		Default: "",
		Env:     "AUTH_OAUTH2_CLIENT_SECRET",
	},
	{
		Name:    "AUTH_OAUTH2_AUTH_URL",
		Short:   "OAuth2 authorization endpoint",
		Type:    String,
		Default: "",
		Env:     "AUTH_OAUTH2_AUTH_URL",
	},
	{
		Name:    "AUTH_OAUTH2_TOKEN_URL",
		Short:   "OAuth2 token endpoint",
		Type:    String,
		Default: "",
		Env:     "AUTH_OAUTH2_TOKEN_URL",
	},
	{
		Name:    "AUTH_OAUTH2_USERINFO_URL",
		Short:   "OAuth2 userinfo endpoint",
		Type:    String,
		Default: "",
		Env:     "AUTH_OAUTH2_USERINFO_URL",
	},
	{
		Name:    "AUTH_OAUTH2_REDIRECT_URL",
		Short:   "OAuth2 callback URL",
		Type:    String,
		Default: "",
		Env:     "AUTH_OAUTH2_REDIRECT_URL",
	},
	{
		Name:    "AUTH_OAUTH2_SCOPES",
		Short:   "OAuth2 scopes",
		Type:    StringSlice,
		Default: []string{"openid", "email", "profile"},
		Env:     "AUTH_OAUTH2_SCOPES",
	},

	// Observability
	{
		Name:    "LOG_LEVEL",
		Short:   "Logging level",
		Type:    String,
		Default: "info",
		Env:     "LOG_LEVEL",
	},
}
