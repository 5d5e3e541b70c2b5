// Package metrics exposes Prometheus instruments for engine invocations and
// settlements. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "daoledger"

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry    *prometheus.Registry
	operations  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	settlements *prometheus.CounterVec
	proposals   prometheus.Gauge
}

// New registers every instrument plus the Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Engine invocations by operation and outcome.",
		}, []string{"op", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time spent inside the engine lock per invocation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Resolved transfer-and-call settlements by result.",
		}, []string{"result"}),
		proposals: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "proposals",
			Help:      "Number of proposals ever created.",
		}),
	}
	m.registry.MustRegister(
		m.operations,
		m.latency,
		m.settlements,
		m.proposals,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveOperation records one invocation. code is empty on success.
func (m *Metrics) ObserveOperation(op, code string, took time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if code != "" {
		outcome = code
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(took.Seconds())
}

// ObserveSettlement counts a settlement result: used, refunded or error.
func (m *Metrics) ObserveSettlement(result string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(result).Inc()
}

// SetProposals publishes the proposal count.
func (m *Metrics) SetProposals(n int) {
	if m == nil {
		return
	}
	m.proposals.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
