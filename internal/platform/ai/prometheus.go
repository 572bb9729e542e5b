package ai

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PromMetrics exports orchestrator activity to Prometheus. All methods are
// nil-safe so instrumentation stays optional in tests and tools.
type PromMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	breakerState    *prometheus.GaugeVec
	rateLimited     prometheus.Counter
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	cacheEntries    prometheus.Gauge
	fallbacksTotal  *prometheus.CounterVec
}

// NewPromMetrics creates a PromMetrics on the default registerer.
func NewPromMetrics() *PromMetrics {
	return NewPromMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromMetricsWithRegistry creates a PromMetrics using the supplied
// registerer.
func NewPromMetricsWithRegistry(registry prometheus.Registerer) *PromMetrics {
	return &PromMetrics{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "carescribe_ai_requests_total",
				Help: "Total number of provider attempts by outcome",
			},
			[]string{"provider", "task_type", "outcome"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "carescribe_ai_request_duration_seconds",
				Help:    "Duration of provider attempts in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "task_type"},
		),
		breakerState: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "carescribe_ai_circuit_breaker_state",
				Help: "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"provider"},
		),
		rateLimited: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "carescribe_ai_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
		),
		cacheHits: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "carescribe_ai_cache_hits_total",
				Help: "Total number of response cache hits",
			},
		),
		cacheMisses: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "carescribe_ai_cache_misses_total",
				Help: "Total number of response cache misses",
			},
		),
		cacheEntries: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "carescribe_ai_cache_entries",
				Help: "Current number of entries in the response cache",
			},
		),
		fallbacksTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "carescribe_ai_fallbacks_total",
				Help: "Total number of fallback attempts after a primary failure",
			},
			[]string{"from", "to"},
		),
	}
}

// ObserveAttempt records one completed provider attempt.
func (pm *PromMetrics) ObserveAttempt(provider string, taskType TaskType, success bool, duration time.Duration) {
	if pm == nil {
		return
	}

	outcome := "failure"
	if success {
		outcome = "success"
	}
	pm.requestsTotal.WithLabelValues(provider, string(taskType), outcome).Inc()
	pm.requestDuration.WithLabelValues(provider, string(taskType)).Observe(duration.Seconds())
}

// ObserveBreakerState sets the breaker state gauge for a provider.
func (pm *PromMetrics) ObserveBreakerState(provider string, state BreakerState) {
	if pm == nil {
		return
	}

	var v float64
	switch state {
	case BreakerOpen:
		v = 1
	case BreakerHalfOpen:
		v = 2
	}
	pm.breakerState.WithLabelValues(provider).Set(v)
}

// ObserveRateLimited counts a request rejected by the rate limiter.
func (pm *PromMetrics) ObserveRateLimited() {
	if pm == nil {
		return
	}
	pm.rateLimited.Inc()
}

// ObserveCacheHit counts a response cache hit.
func (pm *PromMetrics) ObserveCacheHit() {
	if pm == nil {
		return
	}
	pm.cacheHits.Inc()
}

// ObserveCacheMiss counts a response cache miss.
func (pm *PromMetrics) ObserveCacheMiss() {
	if pm == nil {
		return
	}
	pm.cacheMisses.Inc()
}

// ObserveCacheEntries sets the cache size gauge.
func (pm *PromMetrics) ObserveCacheEntries(n int) {
	if pm == nil {
		return
	}
	pm.cacheEntries.Set(float64(n))
}

// ObserveFallback counts a fallback attempt from one provider to another.
func (pm *PromMetrics) ObserveFallback(from, to string) {
	if pm == nil {
		return
	}
	pm.fallbacksTotal.WithLabelValues(from, to).Inc()
}
