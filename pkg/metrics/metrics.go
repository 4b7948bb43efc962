// Package metrics defines the Prometheus collectors of the lookup service and
// exposes an HTTP handler for scraping.
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
	LookupsTotal         *prometheus.CounterVec
	LookupLatency        *prometheus.HistogramVec
	CandidatesReturned   *prometheus.HistogramVec
	CacheHitsTotal       *prometheus.CounterVec
	SearchFailuresTotal  *prometheus.CounterVec
	RecordsDroppedTotal  *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on reg. A nil reg uses the
// default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
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
		LookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gazetteer_lookups_total",
				Help: "Gazetteer lookups by source and outcome (hit, miss, empty, failed).",
			},
			[]string{"source", "outcome"},
		),
		LookupLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gazetteer_lookup_latency_seconds",
				Help:    "Gazetteer lookup latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"source", "cache_status"},
		),
		CandidatesReturned: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gazetteer_candidates_returned",
				Help:    "Candidates returned per lookup after pruning.",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
			[]string{"source"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gazetteer_cache_requests_total",
				Help: "Result cache lookups by source and result (hit, miss).",
			},
			[]string{"source", "result"},
		),
		SearchFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gazetteer_search_failures_total",
				Help: "Index searches that failed and degraded to an empty result.",
			},
			[]string{"source"},
		),
		RecordsDroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gazetteer_records_dropped_total",
				Help: "Raw records dropped during mapping, by reason.",
			},
			[]string{"source", "reason"},
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
		m.LookupsTotal,
		m.LookupLatency,
		m.CandidatesReturned,
		m.CacheHitsTotal,
		m.SearchFailuresTotal,
		m.RecordsDroppedTotal,
		m.CircuitBreakerState,
	)
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}

	return m
}

// Handler returns the scrape handler for the registry the metrics live on.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
