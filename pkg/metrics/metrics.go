// Package metrics defines the Prometheus metric collectors used by the
// reranker and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	RerankRequestsTotal  *prometheus.CounterVec
	RerankLatency        prometheus.Histogram
	DocsScoredTotal      prometheus.Counter
	DocsPerRequest       prometheus.Histogram
	BenchRunsTotal       *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		RerankRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rerank_requests_total",
				Help: "Total rerank requests by outcome (ok, shape_error, config_error, compute_fault, invalid_input, timeout, error).",
			},
			[]string{"outcome"},
		),
		RerankLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rerank_request_duration_seconds",
				Help:    "End-to-end rerank request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),
		DocsScoredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rerank_docs_scored_total",
				Help: "Total documents scored across all requests.",
			},
		),
		DocsPerRequest: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rerank_docs_per_request",
				Help:    "Number of candidate documents per rerank request.",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
		),
		BenchRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bench_runs_total",
				Help: "Total bench runs by outcome.",
			},
			[]string{"outcome"},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.RerankRequestsTotal,
		m.RerankLatency,
		m.DocsScoredTotal,
		m.DocsPerRequest,
		m.BenchRunsTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
