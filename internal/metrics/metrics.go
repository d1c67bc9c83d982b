package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pricescout"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "path"})

	AdapterRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "adapter_requests_total",
		Help:      "Total calls into source adapters by adapter name and result status.",
	}, []string{"adapter", "status"})

	AdapterRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "adapter_request_duration_seconds",
		Help:      "Source adapter call duration in seconds.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 6, 10, 15},
	}, []string{"adapter"})

	AdapterAvailable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "adapter_available",
		Help:      "Whether an adapter is available (1) or blocked by circuit breaker (0).",
	}, []string{"adapter"})

	PipelineOffers = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pipeline_offers",
		Help:      "Number of offers leaving each pipeline stage.",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
	}, []string{"stage"})

	PipelineDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pipeline_duration_seconds",
		Help:      "Duration of one aggregation run in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 8, 12, 20, 30},
	})

	FallbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fallback_total",
		Help:      "Aggregation runs that fell back past the primary adapters, by outcome.",
	}, []string{"outcome"})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_hits_total",
		Help:      "Total number of search cache hits.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_misses_total",
		Help:      "Total number of search cache misses.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AdapterRequestsTotal,
		AdapterRequestDuration,
		AdapterAvailable,
		PipelineOffers,
		PipelineDuration,
		FallbackTotal,
		CacheHitsTotal,
		CacheMissesTotal,
	)
}
