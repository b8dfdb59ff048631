// Package observability bundles the logging and metrics layers and provides
// the request observation middleware.
package observability

import (
	"net/http"
	"time"

	"authgate/httputils"
	"authgate/observability/logging"
	"authgate/observability/metrics"
)

// Provider provides observability capabilities
type Provider struct {
	Logger  *logging.Logger
	Metrics *metrics.Collector
}

// NewProvider creates a new observability provider
func NewProvider(logLevel string) (*Provider, error) {
	logger, err := logging.NewLogger(logLevel)
	if err != nil {
		return nil, err
	}
	return &Provider{
		Logger:  logger,
		Metrics: metrics.NewCollector(),
	}, nil
}

// NewTestProvider returns a provider that discards log output.
func NewTestProvider() *Provider {
	return &Provider{
		Logger:  logging.NewTestLogger(),
		Metrics: metrics.NewCollector(),
	}
}

// Middleware creates an HTTP middleware for request observation: it assigns
// a trace id, attaches a request-scoped logger to the context, and records
// request metrics and access log lines.
func (p *Provider) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ctx := r.Context()
		traceID := logging.TraceIDFromContext(ctx)
		if traceID == "" {
			traceID = logging.NewTraceID()
			ctx = logging.ContextWithTraceID(ctx, traceID)
		}

		logger := p.Logger.With("trace_id", traceID)
		ctx = logging.ContextWithLogger(ctx, logger)

		wrapper := httputils.Wrap(w)
		wrapper.Header().Set("X-Trace-ID", traceID)

		logger.Debug("Request started",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)

		next.ServeHTTP(wrapper, r.WithContext(ctx))

		duration := time.Since(startTime)
		p.Metrics.RecordRequest(r.Method, r.URL.Path, wrapper.StatusCode, duration)

		logger.Info("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapper.StatusCode,
			"duration_ms", duration.Milliseconds(),
			"bytes_written", wrapper.BytesWritten,
		)
	})
}

// MetricsHandler returns an HTTP handler for exposing metrics
func (p *Provider) MetricsHandler() http.Handler {
	return metrics.Handler()
}
