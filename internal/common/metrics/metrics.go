// internal/common/metrics/metrics.go
//
// Process-lifetime sourcing counters, reset only on restart. Read by
// external monitoring via the /metrics endpoint, never by scoring logic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcing_api_calls_total",
			Help: "Total upstream API calls by endpoint and status class",
		},
		[]string{"endpoint", "status"},
	)

	CacheEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcing_cache_events_total",
			Help: "Cache hits and misses by tier",
		},
		[]string{"tier", "result"},
	)

	FallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcing_fallback_total",
			Help: "Candidates processed by method (primary or fallback)",
		},
		[]string{"method"},
	)

	DiscoveryRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcing_discovery_runs_total",
			Help: "Completed discovery runs by outcome",
		},
		[]string{"outcome"},
	)

	DiscoveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sourcing_discovery_duration_seconds",
			Help:    "Duration of discovery runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"outcome"},
	)

	SkillConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sourcing_skill_confidence",
			Help:    "Distribution of per-skill confidence scores",
			Buckets: prometheus.LinearBuckets(0.0, 0.1, 11),
		},
	)

	RateLimitPausesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sourcing_rate_limit_pauses_total",
			Help: "Times the governor paused for a quota reset",
		},
	)
)
