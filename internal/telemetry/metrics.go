package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RemoteErrors    *prometheus.CounterVec
	CacheHits       *prometheus.CounterVec
	CacheMisses     *prometheus.CounterVec
}

// NewMetrics creates and registers Prometheus metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shippo_requests_total",
				Help: "Total number of requests by operation and status",
			},
			[]string{"operation", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shippo_request_duration_seconds",
				Help:    "Request duration in seconds by operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		RemoteErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shippo_remote_errors_total",
				Help: "Total Shippo API errors by operation",
			},
			[]string{"operation"},
		),
		CacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shippo_cache_hits_total",
				Help: "Total response cache hits by component",
			},
			[]string{"component"},
		),
		CacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shippo_cache_misses_total",
				Help: "Total response cache misses by component",
			},
			[]string{"component"},
		),
	}
}

// RecordRequest records a request metric.
func (m *Metrics) RecordRequest(operation, status string, duration float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(operation, status).Inc()
	m.RequestDuration.WithLabelValues(operation).Observe(duration)
}

// RecordRemoteError records a Shippo API error metric.
func (m *Metrics) RecordRemoteError(operation string) {
	if m == nil {
		return
	}
	m.RemoteErrors.WithLabelValues(operation).Inc()
}

// RecordCacheHit records a response cache hit for a component.
func (m *Metrics) RecordCacheHit(component string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(component).Inc()
}

// RecordCacheMiss records a response cache miss for a component.
func (m *Metrics) RecordCacheMiss(component string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(component).Inc()
}
