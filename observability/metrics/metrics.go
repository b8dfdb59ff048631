package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Common label names for consistent metrics
const (
	LabelStatus  = "status"
	LabelMethod  = "method"
	LabelPath    = "path"
	LabelBackend = "backend"
	LabelSuccess = "success"
	LabelOutcome = "outcome"
	LabelResult  = "result"
)

var (
	// RequestsTotal counts all HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{LabelMethod, LabelPath, LabelStatus},
	)

	// RequestDuration tracks the duration of HTTP requests
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authgate_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{LabelMethod, LabelPath},
	)

	// AuthenticationTotal counts authentication attempts by backend and outcome
	AuthenticationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_authentication_total",
			Help: "Total number of authentication attempts",
		},
		[]string{LabelBackend, LabelSuccess},
	)

	// AuthorizationTotal counts authorization checks by outcome
	AuthorizationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_authorization_total",
			Help: "Total number of authorization checks",
		},
		[]string{LabelOutcome},
	)

	// CacheRequestsTotal counts cache lookups by result (hit, miss, expired,
	// fetched, fetch_error)
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_cache_requests_total",
			Help: "Total number of cache lookups",
		},
		[]string{LabelResult},
	)

	// SessionsActive tracks the number of live session records
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "authgate_sessions_active",
			Help: "Number of live session records",
		},
	)
)

// Collector provides methods for recording metrics
type Collector struct{}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{}
}

// RecordRequest records metrics for an HTTP request
func (c *Collector) RecordRequest(method, path string, status int, duration time.Duration) {
	RequestsTotal.WithLabelValues(method, path, http.StatusText(status)).Inc()
	RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordAuthentication records an authentication attempt
func (c *Collector) RecordAuthentication(backend string, success bool) {
	AuthenticationTotal.WithLabelValues(backend, boolToString(success)).Inc()
}

// RecordAuthorization records an authorization check
func (c *Collector) RecordAuthorization(outcome string) {
	AuthorizationTotal.WithLabelValues(outcome).Inc()
}

// RecordCacheEvent records a cache lookup result. Wire it as the cache
// observer callback.
func (c *Collector) RecordCacheEvent(result string) {
	CacheRequestsTotal.WithLabelValues(result).Inc()
}

// SetActiveSessions records the current session count
func (c *Collector) SetActiveSessions(n int) {
	SessionsActive.Set(float64(n))
}

// Handler returns an HTTP handler for exposing metrics
func Handler() http.Handler {
	return promhttp.Handler()
}

// boolToString converts a boolean to a string representation
func boolToString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
