package sportsgate

import "time"

// Metrics defines the interface for tracking cache, budget and upstream activity.
type Metrics interface {
	// RecordCacheHit records a context fetch served from cache for a category.
	RecordCacheHit(category string)

	// RecordCacheMiss records a context fetch that had to go upstream.
	RecordCacheMiss(category string)

	// RecordCacheEviction records entries removed to make room in the cache.
	RecordCacheEviction(count int)

	// RecordUpstreamCall records the duration and outcome of an upstream fetch.
	RecordUpstreamCall(category string, duration time.Duration, err error)

	// RecordBudgetUsage records the current daily call count against the ceiling.
	RecordBudgetUsage(tier string, used, ceiling int)

	// RecordBudgetRefusal records a gate check that refused an upstream call.
	RecordBudgetRefusal(category string)

	// RecordFetchFailure records a category fetch that degraded the context.
	RecordFetchFailure(category, reason string)

	// RecordDataQuality records the grade of a produced prediction context.
	RecordDataQuality(quality string)

	// RecordCircuitBreakerStateChange records an upstream circuit breaker state change.
	RecordCircuitBreakerStateChange(state string)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordCacheHit(category string)                                        {}
func (n *NoopMetrics) RecordCacheMiss(category string)                                       {}
func (n *NoopMetrics) RecordCacheEviction(count int)                                         {}
func (n *NoopMetrics) RecordUpstreamCall(category string, duration time.Duration, err error) {}
func (n *NoopMetrics) RecordBudgetUsage(tier string, used, ceiling int)                      {}
func (n *NoopMetrics) RecordBudgetRefusal(category string)                                   {}
func (n *NoopMetrics) RecordFetchFailure(category, reason string)                            {}
func (n *NoopMetrics) RecordDataQuality(quality string)                                      {}
func (n *NoopMetrics) RecordCircuitBreakerStateChange(state string)                          {}
