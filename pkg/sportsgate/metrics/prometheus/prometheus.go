package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements sportsgate.Metrics using Prometheus.
type Metrics struct {
	cacheHitsTotal             *prometheus.CounterVec
	cacheMissesTotal           *prometheus.CounterVec
	cacheEvictionsTotal        prometheus.Counter
	upstreamCallDuration       *prometheus.HistogramVec
	upstreamCallErrors         *prometheus.CounterVec
	budgetCallsUsed            *prometheus.GaugeVec
	budgetCeiling              *prometheus.GaugeVec
	budgetRefusalsTotal        *prometheus.CounterVec
	fetchFailuresTotal         *prometheus.CounterVec
	contextQualityTotal        *prometheus.CounterVec
	circuitBreakerStateChanges *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		cacheHitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of context fetches served from cache.",
		}, []string{"category"}),

		cacheMissesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of context fetches that went upstream.",
		}, []string{"category"}),

		cacheEvictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Total number of cache entries evicted to make room.",
		}),

		upstreamCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_call_duration_seconds",
			Help:      "Latency of upstream sports-data calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"category"}),

		upstreamCallErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_call_errors_total",
			Help:      "Total number of failed upstream sports-data calls.",
		}, []string{"category"}),

		budgetCallsUsed: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "budget_calls_used",
			Help:      "Upstream calls charged to the current day.",
		}, []string{"tier"}),

		budgetCeiling: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "budget_daily_ceiling",
			Help:      "Daily upstream call ceiling of the active tier.",
		}, []string{"tier"}),

		budgetRefusalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_refusals_total",
			Help:      "Total number of upstream calls refused by the daily budget.",
		}, []string{"category"}),

		fetchFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_fetch_failures_total",
			Help:      "Total number of category fetches missing from a prediction context.",
		}, []string{"category", "reason"}),

		contextQualityTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_quality_total",
			Help:      "Total number of prediction contexts by data quality grade.",
		}, []string{"quality"}),

		circuitBreakerStateChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state_changes_total",
			Help:      "Total number of circuit breaker state changes.",
		}, []string{"state"}),
	}
}

func (m *Metrics) RecordCacheHit(category string) {
	m.cacheHitsTotal.WithLabelValues(category).Inc()
}

func (m *Metrics) RecordCacheMiss(category string) {
	m.cacheMissesTotal.WithLabelValues(category).Inc()
}

func (m *Metrics) RecordCacheEviction(count int) {
	m.cacheEvictionsTotal.Add(float64(count))
}

func (m *Metrics) RecordUpstreamCall(category string, duration time.Duration, err error) {
	m.upstreamCallDuration.WithLabelValues(category).Observe(duration.Seconds())
	if err != nil {
		m.upstreamCallErrors.WithLabelValues(category).Inc()
	}
}

func (m *Metrics) RecordBudgetUsage(tier string, used, ceiling int) {
	m.budgetCallsUsed.WithLabelValues(tier).Set(float64(used))
	m.budgetCeiling.WithLabelValues(tier).Set(float64(ceiling))
}

func (m *Metrics) RecordBudgetRefusal(category string) {
	m.budgetRefusalsTotal.WithLabelValues(category).Inc()
}

func (m *Metrics) RecordFetchFailure(category, reason string) {
	m.fetchFailuresTotal.WithLabelValues(category, reason).Inc()
}

func (m *Metrics) RecordDataQuality(quality string) {
	m.contextQualityTotal.WithLabelValues(quality).Inc()
}

func (m *Metrics) RecordCircuitBreakerStateChange(state string) {
	m.circuitBreakerStateChanges.WithLabelValues(state).Inc()
}
