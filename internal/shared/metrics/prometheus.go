package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
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
	assessmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_assessments_total",
			Help: "Total number of risk assessments by level",
		},
		[]string{"level"},
	)

	callsTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calls_triggered_total",
			Help: "Total number of call sessions created",
		},
		[]string{"trigger_type", "level"},
	)

	callTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "call_transitions_total",
			Help: "Total number of call state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	callTransitionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "call_transitions_rejected_total",
			Help: "Total number of rejected call transitions",
		},
		[]string{"action", "reason"},
	)

	callsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "calls_active",
			Help: "Number of call sessions not yet finalized",
		},
	)

	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "call_deliveries_total",
			Help: "Total number of audio delivery attempts",
		},
		[]string{"backend", "outcome"},
	)

	deliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "call_delivery_duration_seconds",
			Help:    "Audio delivery duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"backend"},
	)

	referralsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referrals_resolved_total",
			Help: "Total number of referrals by source",
		},
		[]string{"source"},
	)

	callLogEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "call_log_entries_total",
			Help: "Total number of call log entries recorded",
		},
		[]string{"final_state", "response"},
	)

	symptomReports = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "symptom_reports_total",
			Help: "Total number of symptom reports saved",
		},
	)

	signalUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_signal_updates_total",
			Help: "Total number of risk signal updates consumed",
		},
		[]string{"status"},
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
		path := routePattern(r)

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

// routePattern prefers the chi route template so session IDs do not become label values.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return strings.TrimSuffix(p, "/*")
		}
	}
	if len(r.URL.Path) > 100 {
		return "/api/..."
	}
	return r.URL.Path
}

// --- Business metric helpers ---

// RecordAssessment records a risk assessment
func RecordAssessment(level string) {
	assessmentsTotal.WithLabelValues(level).Inc()
}

// RecordCallTriggered records a new call session
func RecordCallTriggered(triggerType, level string) {
	callsTriggered.WithLabelValues(triggerType, level).Inc()
	callsActive.Inc()
}

// RecordCallTransition records a call state change
func RecordCallTransition(fromState, toState string) {
	callTransitions.WithLabelValues(fromState, toState).Inc()
}

// RecordCallFinalized marks a session as no longer active
func RecordCallFinalized() {
	callsActive.Dec()
}

// RecordTransitionRejected records a refused transition
func RecordTransitionRejected(action, reason string) {
	callTransitionsRejected.WithLabelValues(action, reason).Inc()
}

// RecordDelivery records an audio delivery attempt
func RecordDelivery(backend string, ok bool, duration time.Duration) {
	outcome := "failed"
	if ok {
		outcome = "delivered"
	}
	deliveriesTotal.WithLabelValues(backend, outcome).Inc()
	deliveryDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordReferral records where a referral came from (directory or fallback)
func RecordReferral(source string) {
	referralsTotal.WithLabelValues(source).Inc()
}

// RecordCallLogEntry records a call log append
func RecordCallLogEntry(finalState, response string) {
	callLogEntries.WithLabelValues(finalState, response).Inc()
}

// RecordSymptomReport records a symptom report
func RecordSymptomReport() {
	symptomReports.Inc()
}

// RecordSignalUpdate records a consumed signal update
func RecordSignalUpdate(status string) {
	signalUpdates.WithLabelValues(status).Inc()
}
