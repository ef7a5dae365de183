package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	requestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Business metrics, exported for use by the orchestrator, applier and recovery loop
	DeploymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deploy_orchestrator_deployments_total",
			Help: "Deployments by final outcome",
		},
		[]string{"outcome"},
	)

	DeploymentsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deploy_orchestrator_deployments_in_flight",
			Help: "Background deployment tasks currently running on this instance",
		},
	)

	ApplyResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deploy_orchestrator_apply_results_total",
			Help: "Resource apply attempts by resource type and result",
		},
		[]string{"resource", "result"},
	)

	ReadinessWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deploy_orchestrator_readiness_wait_seconds",
			Help:    "Time spent waiting for workloads to become ready",
			Buckets: []float64{5, 10, 20, 30, 60, 120, 180, 240, 300, 600},
		},
		[]string{"result"},
	)

	StopsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deploy_orchestrator_stops_total",
			Help: "Stop requests by whether the namespace was force-deleted",
		},
		[]string{"force"},
	)

	LeaderStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deploy_orchestrator_leader_status",
			Help: "Whether this instance is the leader (1) or not (0)",
		},
	)

	PanicsRecoveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deploy_orchestrator_panics_recovered_total",
			Help: "Total number of recovered panics",
		},
	)

	OrphansRecoveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deploy_orchestrator_orphans_recovered_total",
			Help: "Deployments marked failed because their task disappeared",
		},
	)
)

// Metrics returns a middleware that collects Prometheus metrics
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		status := strconv.Itoa(wrapped.statusCode)

		// Use Chi route pattern to avoid cardinality explosion from dynamic path segments
		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}
		// Normalize trailing slashes
		endpoint = strings.TrimRight(endpoint, "/")
		if endpoint == "" {
			endpoint = "/"
		}

		// Record metrics
		requestDuration.WithLabelValues(r.Method, endpoint, status).Observe(duration.Seconds())
		requestCount.WithLabelValues(r.Method, endpoint, status).Inc()
	})
}

// metricsResponseWriter wraps http.ResponseWriter to capture status code
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
