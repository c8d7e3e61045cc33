// Package metrics exposes Prometheus counters for questions and upstream attempts.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcomes recorded by RequestsTotal.
const (
	OutcomeAnswered     = "answered"
	OutcomeClientError  = "client_error"
	OutcomeUnconfigured = "unconfigured"
	OutcomeUnavailable  = "unavailable"
	OutcomeInternal     = "internal_error"
	OutcomePreflight    = "preflight"
)

// Metrics holds the collectors of one process. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal          *prometheus.CounterVec
	UpstreamAttemptsTotal  *prometheus.CounterVec
	UpstreamAttemptSeconds *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leemai_requests_total",
				Help: "Total number of ask requests by outcome",
			},
			[]string{"outcome"},
		),
		UpstreamAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leemai_upstream_attempts_total",
				Help: "Total number of upstream model attempts by candidate and result",
			},
			[]string{"candidate", "result"},
		),
		UpstreamAttemptSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leemai_upstream_attempt_duration_seconds",
				Help:    "Duration of upstream model attempts in seconds",
				Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
			},
			[]string{"candidate"},
		),
	}
}

// ObserveRequest counts one handled request.
func (m *Metrics) ObserveRequest(outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveAttempt counts one upstream attempt. result is "success" or an error kind.
func (m *Metrics) ObserveAttempt(candidate, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamAttemptsTotal.WithLabelValues(candidate, result).Inc()
	m.UpstreamAttemptSeconds.WithLabelValues(candidate).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
