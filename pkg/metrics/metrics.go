// Package metrics exposes the orchestration core's Prometheus instruments.
// No teacher analogue exists (operative carries no metrics); grounded on
// getaxonflow-axonflow/platform/agent/run.go's package-level
// prometheus.NewCounterVec/NewHistogramVec + init()-time MustRegister
// pattern.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// BreakerState reports the current state of each circuit breaker as a
	// gauge: 0=CLOSED, 1=OPEN, 2=HALF_OPEN.
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentcore_breaker_state",
			Help: "Current circuit breaker state per (scope, name): 0=closed 1=open 2=half_open",
		},
		[]string{"scope", "name"},
	)

	// CacheHits counts response cache lookups by outcome.
	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentcore_cache_lookups_total",
			Help: "Total response cache lookups by outcome",
		},
		[]string{"outcome"}, // hit, miss
	)

	// RateLimitRejections counts rate-bucket admission rejections per
	// provider.
	RateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentcore_rate_limit_rejections_total",
			Help: "Total rate-limiter rejections per provider",
		},
		[]string{"provider"},
	)

	// OrchestrationDuration records wall-clock time for one orchestration
	// run, labeled by strategy and outcome.
	OrchestrationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentcore_orchestration_duration_seconds",
			Help:    "Orchestration run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy", "outcome"},
	)

	// ModelFallbacks counts model-fallback chain invocations.
	ModelFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentcore_model_fallbacks_total",
			Help: "Total times the model-fallback chain was invoked",
		},
		[]string{"from_model", "to_model"},
	)
)

func init() {
	prometheus.MustRegister(BreakerState)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(RateLimitRejections)
	prometheus.MustRegister(OrchestrationDuration)
	prometheus.MustRegister(ModelFallbacks)
}

// BreakerStateValue maps a breaker.State string (as produced by
// breaker.Breaker.Status, e.g. "OPEN"/"HALF_OPEN"/"CLOSED") to the gauge
// value BreakerState expects.
func BreakerStateValue(state string) float64 {
	switch state {
	case "OPEN":
		return 1
	case "HALF_OPEN":
		return 2
	default:
		return 0
	}
}
