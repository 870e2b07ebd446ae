package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_requests_total",
			Help: "Total number of requests processed, by tier and outcome",
		},
		[]string{"tier", "outcome"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_request_duration_seconds",
			Help:    "Wall-clock request duration from acceptance to delivery",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"tier"},
	)

	UpstreamCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_upstream_calls_total",
			Help: "Total upstream calls, by dependency and outcome",
		},
		[]string{"dependency", "outcome"},
	)

	BreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_breaker_transitions_total",
			Help: "Circuit breaker state transitions, by dependency and target state",
		},
		[]string{"dependency", "state"},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orchestrator_breaker_state",
			Help: "Current breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"dependency"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_cache_lookups_total",
			Help: "Cache lookups, by strategy (direct/semantic/pattern) and result",
		},
		[]string{"strategy", "result"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_cache_evictions_total",
			Help: "Cache entries evicted under tier size pressure",
		},
		[]string{"tier"},
	)

	QualityScore = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_quality_score",
			Help:    "Overall quality score of validated responses",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"tier"},
	)

	FallbacksServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_fallbacks_total",
			Help: "Fallback suggestions synthesized, by reason",
		},
		[]string{"reason"},
	)

	AlertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_alerts_total",
			Help: "Performance alerts raised, by severity",
		},
		[]string{"severity", "tier"},
	)

	RemediationSignals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_remediation_signals_total",
			Help: "Auto-remediation signals emitted, by kind",
		},
		[]string{"kind"},
	)

	ActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orchestrator_active_requests",
			Help: "Number of requests currently in flight",
		},
	)
)
