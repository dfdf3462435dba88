// Package metrics exposes Prometheus instrumentation for the retrieval
// engine. A nil *Metrics is valid and drops every observation, so wiring
// stays optional in tests and library use.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	requestCount     *prometheus.CounterVec
	errorCount       *prometheus.CounterVec
	requestLatency   *prometheus.HistogramVec
	averageChunkSize prometheus.Gauge
	embeddingTime    prometheus.Histogram
	indexLatency     *prometheus.HistogramVec
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quarry_request_count",
			Help: "Number of requests by endpoint and status.",
		}, []string{"endpoint", "status"}),
		errorCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quarry_error_count",
			Help: "Number of errors by endpoint.",
		}, []string{"endpoint"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quarry_request_latency_seconds",
			Help:    "Request latency by endpoint.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		averageChunkSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quarry_average_chunk_size",
			Help: "Average chunk size of the last ingested document, in characters.",
		}),
		embeddingTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quarry_embedding_time_seconds",
			Help:    "Time spent generating embeddings per batch.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		indexLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quarry_index_latency_seconds",
			Help:    "Vector index call latency by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	registry.MustRegister(
		m.requestCount,
		m.errorCount,
		m.requestLatency,
		m.averageChunkSize,
		m.embeddingTime,
		m.indexLatency,
	)
	return m
}

// ObserveRequest records one request with its status and latency.
func (m *Metrics) ObserveRequest(endpoint, status string, seconds float64) {
	if m == nil {
		return
	}
	m.requestCount.WithLabelValues(endpoint, status).Inc()
	m.requestLatency.WithLabelValues(endpoint).Observe(seconds)
}

// ObserveError records one error for the endpoint.
func (m *Metrics) ObserveError(endpoint string) {
	if m == nil {
		return
	}
	m.errorCount.WithLabelValues(endpoint).Inc()
}

// SetAverageChunkSize records the mean chunk size of the last ingest.
func (m *Metrics) SetAverageChunkSize(chars float64) {
	if m == nil {
		return
	}
	m.averageChunkSize.Set(chars)
}

// ObserveEmbeddingTime records time spent in one embedding batch.
func (m *Metrics) ObserveEmbeddingTime(seconds float64) {
	if m == nil {
		return
	}
	m.embeddingTime.Observe(seconds)
}

// ObserveIndexLatency records one vector index call.
func (m *Metrics) ObserveIndexLatency(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.indexLatency.WithLabelValues(operation).Observe(seconds)
}

// Handler returns an HTTP handler serving the registry in Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
