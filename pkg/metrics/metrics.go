// Package metrics defines the Prometheus metric collectors used by the chat
// service and exposes an HTTP handler for scraping.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	ChatTurnsTotal       *prometheus.CounterVec
	ChatLatency          *prometheus.HistogramVec
	RetrievalLatency     prometheus.Histogram
	RetrievedChunks      prometheus.Histogram
	ModelCallDuration    *prometheus.HistogramVec
	CorpusChunks         prometheus.Gauge
	ActiveSessions       prometheus.Gauge
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. A nil reg means
// the process-wide default registerer.
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
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		ChatTurnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_turns_total",
				Help: "Chat turns by prompt policy (grounded, no_match, generic) and outcome (success, error).",
			},
			[]string{"policy", "outcome"},
		),
		ChatLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chat_latency_seconds",
				Help:    "End-to-end chat turn latency in seconds.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 45},
			},
			[]string{"policy"},
		),
		RetrievalLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "retrieval_latency_seconds",
				Help:    "Time spent scoring and ranking corpus chunks.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
		),
		RetrievedChunks: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "retrieved_chunks",
				Help:    "Number of chunks selected per retrieval.",
				Buckets: []float64{0, 1, 2, 3, 5, 10},
			},
		),
		ModelCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "model_call_duration_seconds",
				Help:    "Chat completion call latency by outcome.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 45},
			},
			[]string{"outcome"},
		),
		CorpusChunks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "corpus_chunks",
				Help: "Number of chunks in the loaded corpus (0 while unavailable).",
			},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "chat_sessions",
				Help: "Number of sessions with stored conversation history.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "retrieval_cache_hits_total",
				Help: "Total number of retrieval cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "retrieval_cache_misses_total",
				Help: "Total number of retrieval cache misses.",
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
		m.ChatTurnsTotal,
		m.ChatLatency,
		m.RetrievalLatency,
		m.RetrievedChunks,
		m.ModelCallDuration,
		m.CorpusChunks,
		m.ActiveSessions,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CircuitBreakerState,
	)

	return m
}
