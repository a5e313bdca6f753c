package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for fwmatrix.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	// Resolution metrics
	configsResolved *prometheus.CounterVec
	configsExcluded *prometheus.CounterVec

	// Check metrics
	checksExecuted *prometheus.CounterVec
	checkDuration  *prometheus.HistogramVec

	// Finding metrics
	findings *prometheus.CounterVec

	// Policy metrics
	policyViolations *prometheus.CounterVec

	// Reporting metrics
	reportingErrors *prometheus.CounterVec

	// System metrics
	activeChecks  prometheus.Gauge
	queuedConfigs prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	// Create a new registry
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		// Run metrics
		runsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of matrix runs started",
			},
			[]string{"matrix"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of matrix runs completed",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of matrix run execution in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		// Resolution metrics
		configsResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "configs_resolved_total",
				Help:      "Total number of valid configurations resolved",
			},
			[]string{"mcu"},
		),
		configsExcluded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "configs_excluded_total",
				Help:      "Total number of candidate configurations excluded",
			},
			[]string{"source"},
		),

		// Check metrics
		checksExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checks_executed_total",
				Help:      "Total number of toolchain checks executed",
			},
			[]string{"status"},
		),
		checkDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "check_duration_seconds",
				Help:      "Duration of toolchain checks in seconds",
				Buckets:   buckets,
			},
			[]string{"mcu", "toolchain"},
		),

		// Finding metrics
		findings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "findings_total",
				Help:      "Total number of diagnostics reported by checks",
			},
			[]string{"level"},
		),

		// Policy metrics
		policyViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_violations_total",
				Help:      "Total number of policy violations detected",
			},
			[]string{"policy", "severity"},
		),

		// Reporting metrics
		reportingErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reporting_errors_total",
				Help:      "Total number of errors while publishing findings",
			},
			[]string{"stage"},
		),

		// System metrics
		activeChecks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_checks",
				Help:      "Current number of checks in flight",
			},
		),
		queuedConfigs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queued_configs",
				Help:      "Current number of configurations waiting for a worker",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.configsResolved,
		m.configsExcluded,
		m.checksExecuted,
		m.checkDuration,
		m.findings,
		m.policyViolations,
		m.reportingErrors,
		m.activeChecks,
		m.queuedConfigs,
	)

	return m, nil
}

// Run Metrics

// RecordRunStarted increments the counter for started runs.
func (m *Metrics) RecordRunStarted(matrix string) {
	if m.runsStarted == nil {
		return
	}
	m.runsStarted.WithLabelValues(matrix).Inc()
}

// RecordRunCompleted records a completed run with its status and duration.
func (m *Metrics) RecordRunCompleted(status string, duration time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// Resolution Metrics

// RecordConfigResolved counts a configuration that survived all filters.
func (m *Metrics) RecordConfigResolved(mcu string) {
	if m.configsResolved == nil {
		return
	}
	m.configsResolved.WithLabelValues(mcu).Inc()
}

// RecordConfigExcluded counts candidates removed by a filter. Source is
// "table" for declared exclusions and "policy" for rego denials.
func (m *Metrics) RecordConfigExcluded(source string, count int) {
	if m.configsExcluded == nil || count <= 0 {
		return
	}
	m.configsExcluded.WithLabelValues(source).Add(float64(count))
}

// Check Metrics

// RecordCheckExecuted records a finished toolchain check.
func (m *Metrics) RecordCheckExecuted(status, mcu, toolchain string, duration time.Duration) {
	if m.checksExecuted == nil {
		return
	}
	m.checksExecuted.WithLabelValues(status).Inc()
	m.checkDuration.WithLabelValues(mcu, toolchain).Observe(duration.Seconds())
}

// RecordFindings counts diagnostics by level.
func (m *Metrics) RecordFindings(level string, count int) {
	if m.findings == nil || count <= 0 {
		return
	}
	m.findings.WithLabelValues(level).Add(float64(count))
}

// Policy Metrics

// RecordPolicyViolation records a policy violation.
func (m *Metrics) RecordPolicyViolation(policy, severity string) {
	if m.policyViolations == nil {
		return
	}
	m.policyViolations.WithLabelValues(policy, severity).Inc()
}

// Reporting Metrics

// RecordReportingError records a failure while publishing findings.
func (m *Metrics) RecordReportingError(stage string) {
	if m.reportingErrors == nil {
		return
	}
	m.reportingErrors.WithLabelValues(stage).Inc()
}

// System Metrics

// CheckStarted marks a check as in flight.
func (m *Metrics) CheckStarted() {
	if m.activeChecks == nil {
		return
	}
	m.activeChecks.Inc()
	m.queuedConfigs.Dec()
}

// CheckFinished marks an in-flight check as done.
func (m *Metrics) CheckFinished() {
	if m.activeChecks == nil {
		return
	}
	m.activeChecks.Dec()
}

// SetQueuedConfigs sets the current number of queued configurations.
func (m *Metrics) SetQueuedConfigs(count float64) {
	if m.queuedConfigs == nil {
		return
	}
	m.queuedConfigs.Set(count)
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
