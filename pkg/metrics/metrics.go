package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Workflow metrics
	RunsStarted   *prometheus.CounterVec
	RunsCompleted *prometheus.CounterVec
	RunsSuspended prometheus.Counter
	RunsResumed   prometheus.Counter

	// Safety engine metrics
	FlagsEmitted  *prometheus.CounterVec
	VerdictsTotal *prometheus.CounterVec

	// External lookup metrics
	LookupLatency *prometheus.HistogramVec
	LookupErrors  *prometheus.CounterVec
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace, subsystem string) *Metrics {
	return &Metrics{
		RunsStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "runs_started_total",
			Help:      "Workflow runs started, by classified intent",
		}, []string{"intent"}),
		RunsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "runs_completed_total",
			Help:      "Workflow runs that reached a terminal state, by intent",
		}, []string{"intent"}),
		RunsSuspended: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "runs_suspended_total",
			Help:      "Runs suspended at the verification interrupt",
		}),
		RunsResumed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "runs_resumed_total",
			Help:      "Suspended runs resumed by the caller",
		}),
		FlagsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "safety_flags_total",
			Help:      "Safety flags emitted, by severity",
		}, []string{"severity"}),
		VerdictsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "verdicts_total",
			Help:      "Verdicts produced, by status",
		}, []string{"status"}),
		LookupLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "external_lookup_duration_seconds",
			Help:      "Latency of external reference lookups",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"source"}),
		LookupErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "external_lookup_errors_total",
			Help:      "Failed external reference lookups",
		}, []string{"source"}),
		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "lookup_cache_hits_total",
			Help:      "Memoized lookup hits",
		}, []string{"source"}),
		CacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "lookup_cache_misses_total",
			Help:      "Memoized lookup misses",
		}, []string{"source"}),
	}
}
