package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromCollector exports samples as Prometheus metrics so a running load
// test can be scraped next to the system under test.
type PromCollector struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveVUs       prometheus.Gauge
	Iterations      prometheus.Counter
}

// NewPromCollector creates the collectors on a private registry.
func NewPromCollector() *PromCollector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &PromCollector{
		registry: reg,

		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "socialload_requests_total",
			Help: "Requests sent to the social network, by operation and status class.",
		}, []string{"operation", "status_class"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "socialload_request_duration_seconds",
			Help:    "Request latency by operation.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"operation"}),

		ActiveVUs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "socialload_active_vus",
			Help: "Virtual users currently running iterations.",
		}),

		Iterations: factory.NewCounter(prometheus.CounterOpts{
			Name: "socialload_iterations_total",
			Help: "Completed workload iterations.",
		}),
	}
}

// Record implements Sink.
func (p *PromCollector) Record(s Sample) {
	p.RequestsTotal.WithLabelValues(s.Operation, string(s.Class())).Inc()
	p.RequestDuration.WithLabelValues(s.Operation).Observe(s.Duration.Seconds())
}

// SetActiveVUs mirrors the VU gauge.
func (p *PromCollector) SetActiveVUs(n int) {
	p.ActiveVUs.Set(float64(n))
}

// AddIteration counts one completed iteration.
func (p *PromCollector) AddIteration() {
	p.Iterations.Inc()
}

// Handler serves the private registry.
func (p *PromCollector) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (mainly for tests).
func (p *PromCollector) Registry() *prometheus.Registry {
	return p.registry
}

var _ Sink = (*PromCollector)(nil)
