package prommetrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/smartsports/sportsgate/pkg/sportsgate"
)

var _ sportsgate.Metrics = (*Metrics)(nil)

func gather(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func TestPrometheusMetrics_NewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	if metrics == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestPrometheusMetrics_CacheCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordCacheHit("standings")
	metrics.RecordCacheHit("standings")
	metrics.RecordCacheMiss("form")
	metrics.RecordCacheEviction(100)

	hits := gather(t, reg, "test_cache_hits_total")
	if got := hits.GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Errorf("Expected 2 cache hits, got %v", got)
	}
	if got := labelValue(hits.GetMetric()[0], "category"); got != "standings" {
		t.Errorf("Expected category label standings, got %q", got)
	}

	evictions := gather(t, reg, "test_cache_evictions_total")
	if got := evictions.GetMetric()[0].GetCounter().GetValue(); got != 100 {
		t.Errorf("Expected 100 evictions, got %v", got)
	}
}

func TestPrometheusMetrics_RecordUpstreamCall(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordUpstreamCall("h2h", 120*time.Millisecond, nil)
	metrics.RecordUpstreamCall("h2h", 2*time.Second, errors.New("timeout"))

	duration := gather(t, reg, "test_upstream_call_duration_seconds")
	if got := duration.GetMetric()[0].GetHistogram().GetSampleCount(); got != 2 {
		t.Errorf("Expected 2 samples, got %d", got)
	}

	errs := gather(t, reg, "test_upstream_call_errors_total")
	if got := errs.GetMetric()[0].GetCounter().GetValue(); got != 1 {
		t.Errorf("Expected 1 upstream error, got %v", got)
	}
}

func TestPrometheusMetrics_BudgetGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordBudgetUsage("paid", 10, 500)
	metrics.RecordBudgetUsage("paid", 11, 500)
	metrics.RecordBudgetRefusal("form")

	used := gather(t, reg, "test_budget_calls_used")
	if got := used.GetMetric()[0].GetGauge().GetValue(); got != 11 {
		t.Errorf("Expected 11 calls used, got %v", got)
	}
	ceiling := gather(t, reg, "test_budget_daily_ceiling")
	if got := ceiling.GetMetric()[0].GetGauge().GetValue(); got != 500 {
		t.Errorf("Expected ceiling 500, got %v", got)
	}
	refusals := gather(t, reg, "test_budget_refusals_total")
	if got := refusals.GetMetric()[0].GetCounter().GetValue(); got != 1 {
		t.Errorf("Expected 1 refusal, got %v", got)
	}
}

func TestPrometheusMetrics_ContextOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordFetchFailure("standings", "timeout")
	metrics.RecordDataQuality("basic")
	metrics.RecordCircuitBreakerStateChange("open")

	failures := gather(t, reg, "test_context_fetch_failures_total")
	m := failures.GetMetric()[0]
	if labelValue(m, "category") != "standings" || labelValue(m, "reason") != "timeout" {
		t.Errorf("Unexpected labels: %v", m.GetLabel())
	}

	quality := gather(t, reg, "test_context_quality_total")
	if got := labelValue(quality.GetMetric()[0], "quality"); got != "basic" {
		t.Errorf("Expected quality basic, got %q", got)
	}

	cb := gather(t, reg, "test_circuit_breaker_state_changes_total")
	if got := cb.GetMetric()[0].GetCounter().GetValue(); got != 1 {
		t.Errorf("Expected 1 state change, got %v", got)
	}
}
