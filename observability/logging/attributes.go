package logging

import (
	"log/slog"
	"net/url"
	"regexp"
)

// RedactedURL wraps a url.URL for logging without exposing credentials.
type RedactedURL struct {
	url *url.URL
}

// LogValue implements slog.LogValuer to avoid revealing passwords.
func (u RedactedURL) LogValue() slog.Value {
	return slog.StringValue(u.url.Redacted())
}

// RedactURL returns a safely loggable URL value.
func RedactURL(url *url.URL) RedactedURL {
	return RedactedURL{url: url}
}

// RedactedStringURL is a string containing a URL for safe logging.
type RedactedStringURL string

// LogValue implements slog.LogValuer to avoid revealing passwords.
func (s RedactedStringURL) LogValue() slog.Value {
	u, err := url.Parse(string(s))
	if err != nil {
		return slog.StringValue(string(s))
	}
	return slog.StringValue(u.Redacted())
}

// RedactStringURL returns a safely loggable URL string.
func RedactStringURL(s string) slog.LogValuer {
	return RedactedStringURL(s)
}

var dsnPasswordRe = regexp.MustCompile(`(password=)\S+`)

// RedactedPostgresDSN is a keyword/value Postgres DSN for safe logging.
type RedactedPostgresDSN string

// LogValue implements slog.LogValuer to avoid revealing the password in
// either DSN form (postgres:// URL or keyword=value pairs).
func (s RedactedPostgresDSN) LogValue() slog.Value {
	if u, err := url.Parse(string(s)); err == nil && u.Scheme != "" {
		return slog.StringValue(u.Redacted())
	}
	return slog.StringValue(dsnPasswordRe.ReplaceAllString(string(s), "${1}xxxxx"))
}

// RedactPostgresDSN returns a safely loggable Postgres DSN.
func RedactPostgresDSN(s string) slog.LogValuer {
	return RedactedPostgresDSN(s)
}
