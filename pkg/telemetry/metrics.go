package telemetry

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for configuration loading.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	config MetricsConfig

	// Load metrics
	loadsTotal   *prometheus.CounterVec
	loadDuration *prometheus.HistogramVec

	// Error metrics
	errorsByKind *prometheus.CounterVec

	// Template metrics
	templateFiles         *prometheus.CounterVec
	definitionsRegistered prometheus.Counter
	definitionsActive     prometheus.Gauge

	// Expression metrics
	expressionEvals *prometheus.CounterVec

	// Policy and reload metrics
	policyViolations *prometheus.CounterVec
	reloads          *prometheus.CounterVec

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

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		loadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loads_total",
				Help:      "Total number of configuration loads",
			},
			[]string{"mode", "status"},
		),
		loadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "load_duration_seconds",
				Help:      "Duration of configuration loads in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),
		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of load errors by kind",
			},
			[]string{"kind"},
		),
		templateFiles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "template_files_loaded_total",
				Help:      "Total number of template files parsed",
			},
			[]string{"source"},
		),
		definitionsRegistered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "definitions_registered_total",
				Help:      "Total number of type definitions registered",
			},
		),
		definitionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "definitions",
				Help:      "Current number of type definitions in the registry",
			},
		),
		expressionEvals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "expression_evaluations_total",
				Help:      "Total number of validator and converter evaluations",
			},
			[]string{"role", "status"},
		),
		policyViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_violations_total",
				Help:      "Total number of policy violations found",
			},
			[]string{"policy", "severity"},
		),
		reloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reloads_total",
				Help:      "Total number of watch-triggered reloads",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		m.loadsTotal,
		m.loadDuration,
		m.errorsByKind,
		m.templateFiles,
		m.definitionsRegistered,
		m.definitionsActive,
		m.expressionEvals,
		m.policyViolations,
		m.reloads,
	)

	return m, nil
}

// Load Metrics

// RecordLoad records a finished load with its mode, outcome and duration.
func (m *Metrics) RecordLoad(strict bool, err error, duration time.Duration) {
	if m == nil || m.loadsTotal == nil {
		return
	}
	mode := "lenient"
	if strict {
		mode = "strict"
	}
	status := statusOf(err)
	m.loadsTotal.WithLabelValues(mode, status).Inc()
	m.loadDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordError records an error by kind.
func (m *Metrics) RecordError(kind string) {
	if m == nil || m.errorsByKind == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// Template Metrics

// RecordTemplateFile records a parsed template file and how many definitions
// it registered. source is "file", "bundled" or "string".
func (m *Metrics) RecordTemplateFile(source string, definitions int) {
	if m == nil || m.templateFiles == nil {
		return
	}
	m.templateFiles.WithLabelValues(source).Inc()
	m.definitionsRegistered.Add(float64(definitions))
}

// SetDefinitionCount sets the current registry size.
func (m *Metrics) SetDefinitionCount(count int) {
	if m == nil || m.definitionsActive == nil {
		return
	}
	m.definitionsActive.Set(float64(count))
}

// RecordExpression records a validator or converter evaluation.
func (m *Metrics) RecordExpression(role string, err error) {
	if m == nil || m.expressionEvals == nil {
		return
	}
	m.expressionEvals.WithLabelValues(role, statusOf(err)).Inc()
}

// Policy and Reload Metrics

// RecordPolicyViolation records a policy violation.
func (m *Metrics) RecordPolicyViolation(policy, severity string) {
	if m == nil || m.policyViolations == nil {
		return
	}
	m.policyViolations.WithLabelValues(policy, severity).Inc()
}

// RecordReload records a watch-triggered reload.
func (m *Metrics) RecordReload(err error) {
	if m == nil || m.reloads == nil {
		return
	}
	m.reloads.WithLabelValues(statusOf(err)).Inc()
}

func statusOf(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// Registry returns the underlying Prometheus registry, or nil when metrics
// are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics. It returns the
// server so callers can shut it down.
func (m *Metrics) StartMetricsServer() (*http.Server, error) {
	if m == nil || !m.config.Enabled || m.config.ListenAddress == "" {
		return nil, nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
		}
	}()

	return server, nil
}
