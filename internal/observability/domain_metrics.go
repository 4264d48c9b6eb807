package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "semql_cache_hits_total",
			Help: "Total number of semantic cache hits.",
		},
	)
	cacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "semql_cache_misses_total",
			Help: "Total number of semantic cache misses.",
		},
	)
	cacheStoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semql_cache_store_errors_total",
			Help: "Total number of cache store failures by operation.",
		},
		[]string{"op"},
	)
	cacheHitSimilarity = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "semql_cache_hit_similarity",
			Help:    "Cosine similarity score of cache hits.",
			Buckets: []float64{0.80, 0.85, 0.90, 0.925, 0.95, 0.975, 0.99, 1.0},
		},
	)
	cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "semql_cache_entries",
			Help: "Current number of semantic cache records.",
		},
	)
	generationRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "semql_generation_requests_total",
			Help: "Total number of LLM SQL generation calls.",
		},
	)
	generationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "semql_generation_failures_total",
			Help: "Total number of failed LLM SQL generation calls.",
		},
	)
	generationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "semql_generation_duration_seconds",
			Help:    "Latency of LLM SQL generation calls.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
	)
	validationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "semql_validation_failures_total",
			Help: "Total number of generated statements rejected by validation.",
		},
	)
	correctionAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "semql_correction_attempts_total",
			Help: "Total number of LLM correction attempts after a validation failure.",
		},
	)
	singleflightSharedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "semql_singleflight_shared_total",
			Help: "Total number of requests that shared another caller's generation.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		cacheHitsTotal,
		cacheMissesTotal,
		cacheStoreErrorsTotal,
		cacheHitSimilarity,
		cacheEntries,
		generationRequestsTotal,
		generationFailuresTotal,
		generationDurationSeconds,
		validationFailuresTotal,
		correctionAttemptsTotal,
		singleflightSharedTotal,
	)
}

func ObserveCacheHit(score float64) {
	cacheHitsTotal.Inc()
	cacheHitSimilarity.Observe(score)
}

func ObserveCacheMiss() {
	cacheMissesTotal.Inc()
}

func ObserveCacheStoreError(op string) {
	cacheStoreErrorsTotal.WithLabelValues(op).Inc()
}

func SetCacheEntries(total int64) {
	if total < 0 {
		total = 0
	}
	cacheEntries.Set(float64(total))
}

func ObserveGeneration(elapsed time.Duration, err error) {
	generationRequestsTotal.Inc()
	generationDurationSeconds.Observe(elapsed.Seconds())
	if err != nil {
		generationFailuresTotal.Inc()
	}
}

func IncrementValidationFailure() {
	validationFailuresTotal.Inc()
}

func IncrementCorrectionAttempt() {
	correctionAttemptsTotal.Inc()
}

func IncrementSingleflightShared() {
	singleflightSharedTotal.Inc()
}
