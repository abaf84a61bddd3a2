// Package metric exposes Prometheus metrics for the query gateway and its
// transports.
package metric

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mcp_graph"

// Metrics contains all gateway metrics. It implements gateway.Recorder.
type Metrics struct {
	QueriesTotal     *prometheus.CounterVec
	QueryDuration    *prometheus.HistogramVec
	RowsReturned     prometheus.Histogram
	AcquireWait      prometheus.Histogram
	SessionsInUse    prometheus.Gauge
	RequestsTotal    *prometheus.CounterVec
	RequestsRejected *prometheus.CounterVec
}

// NewMetrics creates the gateway metrics without registering them.
func NewMetrics() *Metrics {
	return &Metrics{
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "queries_total",
				Help:      "Total number of executed queries by outcome",
			},
			[]string{"outcome"},
		),

		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "query_duration_seconds",
				Help:      "Query execution duration in seconds, including session acquisition",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),

		RowsReturned: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "rows_returned",
				Help:      "Rows returned by successful queries",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
			},
		),

		AcquireWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "acquire_wait_seconds",
				Help:      "Time spent waiting for a pooled session",
				Buckets:   prometheus.DefBuckets,
			},
		),

		SessionsInUse: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "sessions_in_use",
				Help:      "Sessions currently leased from the pool",
			},
		),

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "transport",
				Name:      "requests_total",
				Help:      "Total number of transport requests",
			},
			[]string{"transport", "status"},
		),

		RequestsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "transport",
				Name:      "requests_rejected_total",
				Help:      "Requests rejected before reaching the gateway",
			},
			[]string{"transport", "reason"},
		),
	}
}

// ObserveAcquire records how long a caller waited for a session.
func (m *Metrics) ObserveAcquire(wait time.Duration) {
	m.AcquireWait.Observe(wait.Seconds())
}

// ObserveExecution records the outcome of one gateway execution.
func (m *Metrics) ObserveExecution(outcome string, duration time.Duration, rows int) {
	m.QueriesTotal.WithLabelValues(outcome).Inc()
	m.QueryDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	if rows > 0 {
		m.RowsReturned.Observe(float64(rows))
	}
}

// SetSessionsInUse updates the pool gauge.
func (m *Metrics) SetSessionsInUse(n int) {
	m.SessionsInUse.Set(float64(n))
}

// RecordRequest counts a transport request by status.
func (m *Metrics) RecordRequest(transport string, status int) {
	m.RequestsTotal.WithLabelValues(transport, strconv.Itoa(status)).Inc()
}

// RecordRejected counts a request refused by a transport, e.g. rate limited.
func (m *Metrics) RecordRejected(transport, reason string) {
	m.RequestsRejected.WithLabelValues(transport, reason).Inc()
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.QueriesTotal,
		m.QueryDuration,
		m.RowsReturned,
		m.AcquireWait,
		m.SessionsInUse,
		m.RequestsTotal,
		m.RequestsRejected,
	}
}

// Registry owns a private Prometheus registry holding the gateway metrics plus
// Go runtime and process collectors.
type Registry struct {
	registry *prometheus.Registry
	Metrics  *Metrics
}

// NewRegistry creates and registers all metrics.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	m := NewMetrics()
	reg.MustRegister(m.collectors()...)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Registry{registry: reg, Metrics: m}
}

// PrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
