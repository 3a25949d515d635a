package rpc

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks the RPC surface: one counter per method and outcome, one
// duration histogram per method.
type Metrics struct {
	registry *prometheus.Registry
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "poold",
		Name:      "ops_total",
		Help:      "RPC operations by method and outcome.",
	}, []string{"method", "outcome"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "poold",
		Name:      "op_duration_seconds",
		Help:      "RPC operation duration by method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	registry.MustRegister(ops, duration)
	return &Metrics{registry: registry, ops: ops, duration: duration}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observe(method, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(method, outcome).Inc()
	m.duration.WithLabelValues(method).Observe(elapsed.Seconds())
}
