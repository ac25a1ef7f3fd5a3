// Package metrics provides Prometheus metrics for panelfs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Panel API metrics
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panelfs_api_requests_total",
			Help: "Total panel API requests by operation and HTTP status",
		},
		[]string{"operation", "status"},
	)

	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "panelfs_api_request_duration_seconds",
			Help:    "Panel API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	readAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "panelfs_read_attempts_total",
			Help: "Content fetch attempts, including retries",
		},
	)

	authFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "panelfs_auth_failures_total",
			Help: "Responses rejected with HTTP 401",
		},
	)

	// Metadata cache metrics
	statCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panelfs_stat_cache_total",
			Help: "Stat cache lookups by result",
		},
		[]string{"result"},
	)

	// Status poller metrics
	statusRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panelfs_status_refreshes_total",
			Help: "Status refreshes by rendered state",
		},
		[]string{"state"},
	)

	// Front-end metrics
	frontendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panelfs_frontend_requests_total",
			Help: "Requests served by the WebDAV front end",
		},
		[]string{"method", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAPIRequest records one panel API call. status is 0 for transport failures.
func RecordAPIRequest(operation string, status int, duration time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	apiRequestsTotal.WithLabelValues(operation, label).Inc()
	apiRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordReadAttempt counts one content fetch attempt.
func RecordReadAttempt() {
	readAttemptsTotal.Inc()
}

// RecordAuthFailure counts one 401.
func RecordAuthFailure() {
	authFailuresTotal.Inc()
}

// RecordStatCache records a stat cache hit or miss.
func RecordStatCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	statCacheTotal.WithLabelValues(result).Inc()
}

// RecordStatusRefresh records the state rendered by one status refresh.
func RecordStatusRefresh(state string) {
	statusRefreshesTotal.WithLabelValues(state).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records front-end request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		frontendRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rw.statusCode)).Inc()
	})
}
