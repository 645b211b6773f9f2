// Package metrics exposes the Prometheus metrics of the router.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	promNamespace        = "bluegreen"
	promRoutingSubsystem = "routing"
	promConfigSubsystem  = "config"
	promForwardSubsystem = "forward"
)

// Decision labels used for the routing decisions counter.
const (
	DecisionBypass  = "bypass"
	DecisionLocal   = "local"
	DecisionForward = "forward"
	DecisionReentry = "reentry"
	DecisionError   = "error"
)

// Outcome labels used for the configuration load counter.
const (
	ConfigOK      = "ok"
	ConfigAbsent  = "absent"
	ConfigInvalid = "invalid"
)

// Options for initializing the metrics.
type Options struct {
	// Prefix overrides the default "bluegreen" metrics namespace.
	Prefix string

	// HistogramBuckets for the forward duration histogram, defaults
	// to prometheus.DefBuckets.
	HistogramBuckets []float64

	// EnableRuntimeMetrics registers the Go runtime and process
	// collectors.
	EnableRuntimeMetrics bool
}

// Metrics is the Prometheus metrics backend of the router.
type Metrics struct {
	decisionsM     *prometheus.CounterVec
	configLoadM    *prometheus.CounterVec
	forwardM       *prometheus.HistogramVec
	forwardErrorsM *prometheus.CounterVec

	registry *prometheus.Registry
	handler  http.Handler
}

// New returns initialized and registered metrics.
func New(opts Options) *Metrics {
	namespace := promNamespace
	if opts.Prefix != "" {
		namespace = strings.TrimSuffix(opts.Prefix, ".")
	}

	if len(opts.HistogramBuckets) == 0 {
		opts.HistogramBuckets = prometheus.DefBuckets
	}

	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: promRoutingSubsystem,
		Name:      "decisions_total",
		Help:      "The total of routing decisions by decision type and variant.",
	}, []string{"decision", "variant"})

	configLoad := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: promConfigSubsystem,
		Name:      "load_total",
		Help:      "The total of configuration loads by outcome.",
	}, []string{"outcome"})

	forward := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: promForwardSubsystem,
		Name:      "duration_seconds",
		Help:      "Duration in seconds of the cross-deployment forward.",
		Buckets:   opts.HistogramBuckets,
	}, []string{"host"})

	forwardErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: promForwardSubsystem,
		Name:      "error_total",
		Help:      "The total of failed cross-deployment forwards.",
	}, []string{"host"})

	m := &Metrics{
		decisionsM:     decisions,
		configLoadM:    configLoad,
		forwardM:       forward,
		forwardErrorsM: forwardErrors,
		registry:       prometheus.NewRegistry(),
	}

	m.registry.MustRegister(m.decisionsM, m.configLoadM, m.forwardM, m.forwardErrorsM)

	if opts.EnableRuntimeMetrics {
		m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m.registry.MustRegister(collectors.NewGoCollector())
	}

	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return m
}

// IncDecision counts a routing decision. The variant may be empty for
// decisions made before or without a variant selection.
func (m *Metrics) IncDecision(decision, variant string) {
	if variant == "" {
		variant = "none"
	}

	m.decisionsM.WithLabelValues(decision, variant).Inc()
}

// IncConfigLoad counts a configuration load by outcome.
func (m *Metrics) IncConfigLoad(outcome string) {
	m.configLoadM.WithLabelValues(outcome).Inc()
}

// MeasureForward observes the duration of a completed forward since
// start.
func (m *Metrics) MeasureForward(host string, start time.Time) {
	m.forwardM.WithLabelValues(host).Observe(time.Since(start).Seconds())
}

// IncForwardError counts a failed forward.
func (m *Metrics) IncForwardError(host string) {
	m.forwardErrorsM.WithLabelValues(host).Inc()
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return m.handler
}
