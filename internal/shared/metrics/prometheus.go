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

	// Business metrics
	casesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cases_created_total",
			Help: "Total number of cases created",
		},
		[]string{"area", "reused"},
	)

	caseTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "case_transitions_total",
			Help: "Total number of case state transitions",
		},
		[]string{"from", "to"},
	)

	caseTransitionConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "case_transition_conflicts_total",
			Help: "Transitions rejected because a concurrent transition won",
		},
	)

	historyEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "case_history_entries_total",
			Help: "Total number of case history entries appended",
		},
	)

	loginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logins_total",
			Help: "Total number of login attempts",
		},
		[]string{"outcome"},
	)

	reportExportsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "report_exports_total",
			Help: "Total number of Excel report exports",
		},
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

// normalizePath keeps label cardinality bounded
func normalizePath(path string) string {
	if len(path) > 100 {
		return "/api/..."
	}
	return path
}

// --- Business metric helpers ---

// RecordCaseCreated records a case creation; reused marks the idempotent
// reuse of an existing open draft.
func RecordCaseCreated(area string, reused bool) {
	casesCreated.WithLabelValues(area, strconv.FormatBool(reused)).Inc()
}

// RecordCaseTransition records a successful state transition.
func RecordCaseTransition(from, to string) {
	caseTransitions.WithLabelValues(from, to).Inc()
}

// RecordTransitionConflict records a transition lost to a concurrent one.
func RecordTransitionConflict() {
	caseTransitionConflicts.Inc()
}

// RecordHistoryEntry records an appended history entry.
func RecordHistoryEntry() {
	historyEntriesTotal.Inc()
}

// RecordLogin records a login attempt outcome: ok, failed, mfa_required.
func RecordLogin(outcome string) {
	loginsTotal.WithLabelValues(outcome).Inc()
}

// RecordReportExport records one Excel export.
func RecordReportExport() {
	reportExportsTotal.Inc()
}
