// Package metrics defines the Prometheus metric collectors used across the
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Lookup results recorded in ArticleLookupsTotal.
const (
	ResultFound    = "found"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	RateLimitedTotal     prometheus.Counter
	ArticleLookupsTotal  *prometheus.CounterVec
	StageDuration        *prometheus.HistogramVec
	DecodedBlockBytes    prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	IndexBuildRows       *prometheus.CounterVec
	IndexBuildDuration   prometheus.Histogram
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all metrics and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all metrics and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
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
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "http_rate_limited_total",
				Help: "Requests rejected by the rate limiter.",
			},
		),
		ArticleLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "article_lookups_total",
				Help: "Article lookups by result (found, not_found, error).",
			},
			[]string{"result"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "article_lookup_stage_seconds",
				Help:    "Latency of each lookup stage (index, decode, extract).",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"stage"},
		),
		DecodedBlockBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "decoded_block_bytes",
				Help:    "Size of decoded corpus blocks.",
				Buckets: prometheus.ExponentialBuckets(16*1024, 2, 10),
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "article_cache_hits_total",
				Help: "Total number of article cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "article_cache_misses_total",
				Help: "Total number of article cache misses.",
			},
		),
		IndexBuildRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_build_rows_total",
				Help: "Raw index lines processed by builds, by outcome (inserted, skipped).",
			},
			[]string{"outcome"},
		),
		IndexBuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_build_duration_seconds",
				Help:    "Duration of complete index builds.",
				Buckets: []float64{1, 10, 30, 60, 120, 300, 600, 1200},
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.RateLimitedTotal,
		m.ArticleLookupsTotal,
		m.StageDuration,
		m.DecodedBlockBytes,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.IndexBuildRows,
		m.IndexBuildDuration,
		m.CircuitBreakerState,
	)

	return m
}

// HandlerFor returns the scrape handler for g. Collection errors are
// logged and the metrics that did gather are still served.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	})
}
