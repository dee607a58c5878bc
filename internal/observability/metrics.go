// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Session metrics
	SessionsStarted   *prometheus.CounterVec
	SessionsFinished  *prometheus.CounterVec
	SessionDuration   *prometheus.HistogramVec
	PollAttempts      prometheus.Histogram
	ActiveSessions    prometheus.Gauge

	// Cluster boundary metrics
	Submissions        *prometheus.CounterVec
	GatewayCallLatency *prometheus.HistogramVec

	// Verification metrics
	VerificationFailures *prometheus.CounterVec
	ReceiptsVerified     prometheus.Counter
	ReceiptReplays       prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulSession prometheus.Gauge
	UptimeSeconds         prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "evalys_gmpc"
	}

	return &Metrics{
		// Session metrics
		SessionsStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "started_total",
			Help:      "Total number of derivation sessions started by circuit",
		}, []string{"circuit"}),
		SessionsFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "finished_total",
			Help:      "Total number of derivation sessions finished by circuit and outcome",
		}, []string{"circuit", "outcome"}),
		SessionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "duration_seconds",
			Help:      "End-to-end session duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"circuit"}),
		PollAttempts: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "poll_attempts",
			Help:      "Number of status polls per session",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34},
		}),
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of sessions currently in flight",
		}),

		// Cluster boundary metrics
		Submissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "submissions_total",
			Help:      "Total number of computation submissions by circuit and result",
		}, []string{"circuit", "result"}),
		GatewayCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "gateway_call_latency_seconds",
			Help:      "Gateway RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Verification metrics
		VerificationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "failures_total",
			Help:      "Total number of receipt verification failures by check",
		}, []string{"check"}),
		ReceiptsVerified: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "receipts_verified_total",
			Help:      "Total number of receipts that passed all checks",
		}),
		ReceiptReplays: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "receipt_replays_total",
			Help:      "Total number of receipts rejected as replays of a stored receipt_id",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulSession: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_session_timestamp",
			Help:      "Unix timestamp of the last RESULT_READY session",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordSessionStarted increments the started counter and active gauge.
func RecordSessionStarted(circuit string) {
	DefaultMetrics.SessionsStarted.WithLabelValues(circuit).Inc()
	DefaultMetrics.ActiveSessions.Inc()
}

// RecordSessionFinished records a terminal session outcome.
func RecordSessionFinished(circuit, outcome string, durationSeconds float64, polls int) {
	DefaultMetrics.SessionsFinished.WithLabelValues(circuit, outcome).Inc()
	DefaultMetrics.SessionDuration.WithLabelValues(circuit).Observe(durationSeconds)
	DefaultMetrics.PollAttempts.Observe(float64(polls))
	DefaultMetrics.ActiveSessions.Dec()
}

// RecordSubmission records one submission attempt outcome.
func RecordSubmission(circuit, result string) {
	DefaultMetrics.Submissions.WithLabelValues(circuit, result).Inc()
}

// RecordGatewayLatency records gateway RPC call latency.
func RecordGatewayLatency(method string, seconds float64) {
	DefaultMetrics.GatewayCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordVerificationFailure records a failed receipt check by name.
func RecordVerificationFailure(check string) {
	DefaultMetrics.VerificationFailures.WithLabelValues(check).Inc()
}

// RecordReceiptVerified increments the verified receipts counter.
func RecordReceiptVerified() {
	DefaultMetrics.ReceiptsVerified.Inc()
}

// RecordReceiptReplay increments the replayed receipts counter.
func RecordReceiptReplay() {
	DefaultMetrics.ReceiptReplays.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
