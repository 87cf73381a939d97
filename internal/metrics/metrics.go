// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HttpRequestsTotal counts HTTP requests handled by the station API.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of http requests handled by the service.",
		},
		[]string{"path", "method", "code"},
	)

	// TestExecutionsTotal counts finished test executions by terminal status.
	TestExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eol_test_executions_total",
			Help: "Total number of EOL test executions by terminal status.",
		},
		[]string{"status"},
	)

	// PhaseDurationSeconds observes how long each hardware phase takes.
	PhaseDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eol_test_phase_duration_seconds",
			Help:    "Duration of each hardware execution phase.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"phase"},
	)

	// TestRunning marks whether a test is currently executing on this station.
	TestRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eol_test_running",
			Help: "1 while a test execution is in progress, 0 otherwise.",
		},
	)

	// HardwareHealthy reports per-subsystem connectivity from the health check.
	HardwareHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eol_hardware_healthy",
			Help: "Per-subsystem hardware connectivity. 1 healthy, 0 otherwise.",
		},
		[]string{"component"},
	)

	// MeasurementsEvaluatedTotal counts evaluated measurement points by outcome.
	MeasurementsEvaluatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eol_measurements_evaluated_total",
			Help: "Total measurement points evaluated, by outcome (pass/fail/incomplete).",
		},
		[]string{"outcome"},
	)
)

// Register is the explicit registration point called from main. promauto has
// already registered everything with the default registry.
func Register() {}
