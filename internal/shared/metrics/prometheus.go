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
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Synchronization metrics
	eventsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_events_dispatched_total",
			Help: "Total number of events dispatched, by kind and outcome status",
		},
		[]string{"kind", "status"},
	)

	eventsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_events_in_flight",
			Help: "Number of events currently being dispatched",
		},
	)

	targetFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_target_failures_total",
			Help: "Total number of per-store write failures",
		},
		[]string{"target"},
	)

	alertMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_alert_mutations_total",
			Help: "Total number of alert cache mutations applied",
		},
		[]string{"action"},
	)

	deadLetteredEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_dead_lettered_events_total",
			Help: "Total number of events appended to the dead-letter stream",
		},
		[]string{"kind"},
	)

	reconcilerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_reconciler_runs_total",
			Help: "Total number of directory reconciliation runs",
		},
		[]string{"result"},
	)

	// Store adapter metrics
	adapterCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_adapter_call_duration_seconds",
			Help:    "Store adapter call duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"target", "operation"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath normalizes URL paths for metrics to avoid cardinality explosion
func normalizePath(path string) string {
	if len(path) > 100 {
		return "/api/..."
	}
	return path
}

// --- Synchronization metric helpers ---

// RecordEventDispatched records one completed event dispatch
func RecordEventDispatched(kind, status string) {
	eventsDispatched.WithLabelValues(kind, status).Inc()
}

// EventInFlightInc marks one event entering dispatch
func EventInFlightInc() {
	eventsInFlight.Inc()
}

// EventInFlightDec marks one event leaving dispatch
func EventInFlightDec() {
	eventsInFlight.Dec()
}

// RecordTargetFailure records a per-store write failure
func RecordTargetFailure(target string) {
	targetFailures.WithLabelValues(target).Inc()
}

// RecordAlertMutation records an applied alert cache mutation
func RecordAlertMutation(action string) {
	alertMutations.WithLabelValues(action).Inc()
}

// RecordDeadLetter records an event appended to the dead-letter stream
func RecordDeadLetter(kind string) {
	deadLetteredEvents.WithLabelValues(kind).Inc()
}

// RecordReconcilerRun records a finished reconciliation run
func RecordReconcilerRun(clean bool) {
	result := "clean"
	if !clean {
		result = "with_failures"
	}
	reconcilerRuns.WithLabelValues(result).Inc()
}

// ObserveAdapterCall records one store adapter call duration
func ObserveAdapterCall(target, operation string, duration time.Duration) {
	adapterCallDuration.WithLabelValues(target, operation).Observe(duration.Seconds())
}
