// Package logging wraps log/slog with the conventions used across authgate:
// a tinted handler, per-module loggers, dynamic level control and context
// carriage. Attributes carrying credentials are filtered out at the handler.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
)

// Attribute keys used across the module.
const (
	TraceIDKey = "trace_id"
	ModuleKey  = "module"
)

// programLevel allows dynamic adjustment of the logging level.
var programLevel = new(slog.LevelVar)

// Logger wraps slog.Logger with module tagging and context helpers.
type Logger struct {
	*slog.Logger
}

// secretAttrKeys are dropped entirely; credential material never reaches the
// log output even when a caller passes it by mistake.
var secretAttrKeys = map[string]struct{}{
	"password":      {},
	"password_hash": {},
	"secret":        {},
	"client_secret": {},
	"token":         {},
	"access_token":  {},
	"refresh_token": {},
	"cookie":        {},
	"authorization": {},
}

func filterAttr(groups []string, a slog.Attr) slog.Attr {
	if _, secret := secretAttrKeys[a.Key]; secret {
		return slog.Attr{}
	}
	return a
}

// NewLogger creates a logger writing tinted output to stdout at the given
// level and installs it as the slog default.
func NewLogger(level string) (*Logger, error) {
	handler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:       programLevel,
		TimeFormat:  time.RFC3339,
		ReplaceAttr: filterAttr,
	})

	if err := SetLogLevel(level); err != nil {
		return nil, err
	}

	logger := &Logger{Logger: slog.New(handler)}
	slog.SetDefault(logger.Logger)
	return logger, nil
}

// NewTestLogger creates a discard logger for tests.
func NewTestLogger() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// SetLogLevel sets the logging level by name.
func SetLogLevel(level string) error {
	switch strings.ToLower(level) {
	case "debug":
		programLevel.Set(slog.LevelDebug)
	case "info", "":
		programLevel.Set(slog.LevelInfo)
	case "warn":
		programLevel.Set(slog.LevelWarn)
	case "error":
		programLevel.Set(slog.LevelError)
	default:
		return fmt.Errorf("invalid log level: '%s'", level)
	}
	return nil
}

// IsDebugEnabled reports whether debug logging is enabled.
func IsDebugEnabled() bool {
	return programLevel.Level() <= slog.LevelDebug
}

// With creates a new logger with the provided attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithModule creates a new logger tagged with the module attribute.
func (l *Logger) WithModule(module string) *Logger {
	return l.With(ModuleKey, module)
}

// NewTraceID generates a new trace id.
func NewTraceID() string {
	return uuid.NewString()
}

type contextKey string

const (
	ctxLoggerKey  contextKey = "logger"
	ctxTraceIDKey contextKey = "traceID"
)

// ContextWithLogger adds a logger to a context.
func ContextWithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, ctxLoggerKey, logger)
}

// LoggerFromContext extracts a logger from a context, or nil.
func LoggerFromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(ctxLoggerKey).(*Logger); ok {
		return logger
	}
	return nil
}

// FromContextOr extracts the request logger, falling back to fallback.
func FromContextOr(ctx context.Context, fallback *Logger) *Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return fallback
}

// ContextWithTraceID adds a trace id to a context.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxTraceIDKey, traceID)
}

// TraceIDFromContext retrieves the trace id from a context, or "".
func TraceIDFromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(ctxTraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// Err returns a formatted error attribute for logging.
func Err(err error) slog.Attr {
	return tint.Err(err)
}
