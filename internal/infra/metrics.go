package infra

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the orchestrator's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	dispatches      *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
}

// NewMetrics registers the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vidgen_provider_attempts_total",
				Help: "Provider submission attempts by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		attemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vidgen_provider_attempt_seconds",
				Help:    "Latency of provider submission attempts",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
			[]string{"provider"},
		),
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vidgen_dispatches_total",
				Help: "Dispatch requests by final result",
			},
			[]string{"result"},
		),
		reconciliations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vidgen_reconciliations_total",
				Help: "Reconciliation events by ingress path and outcome",
			},
			[]string{"path", "outcome"},
		),
	}
	m.registry.MustRegister(
		m.attempts,
		m.attemptDuration,
		m.dispatches,
		m.reconciliations,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ProviderAttempt(provider, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(provider, outcome).Inc()
	m.attemptDuration.WithLabelValues(provider).Observe(took.Seconds())
}

func (m *Metrics) Dispatch(result string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(result).Inc()
}

func (m *Metrics) Reconciliation(path, outcome string) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(path, outcome).Inc()
}
