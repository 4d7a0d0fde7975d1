package sportsgate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Tier is the daily upstream quota class of the sports-data subscription
type Tier string

const (
	// TierFree is the provider's free plan (100 calls/day)
	TierFree Tier = "free"
	// TierPaid is the provider's paid plan (500 calls/day)
	TierPaid Tier = "paid"
	// TierUnlimited is an enterprise plan with no practical ceiling
	TierUnlimited Tier = "unlimited"
)

// TierLimits is the fixed ceiling and cost estimate for a tier
type TierLimits struct {
	DailyCeiling int
	CostPerCall  float64
}

// Limits returns the fixed limits for the tier
func (t Tier) Limits() (TierLimits, error) {
	switch t {
	case TierFree:
		return TierLimits{DailyCeiling: 100, CostPerCall: 0}, nil
	case TierPaid:
		return TierLimits{DailyCeiling: 500, CostPerCall: 0.001}, nil
	case TierUnlimited:
		return TierLimits{DailyCeiling: 999999, CostPerCall: 0.0005}, nil
	default:
		return TierLimits{}, fmt.Errorf("%w: %q", ErrInvalidTier, string(t))
	}
}

// ParseTier converts a case-insensitive tier name into a Tier
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if _, err := t.Limits(); err != nil {
		return "", err
	}
	return t, nil
}

// RequestTier is the per-prediction data tier (how much context a single request may buy)
type RequestTier string

const (
	// RequestTierFree allows standings and form only
	RequestTierFree RequestTier = "free"
	// RequestTierPremium allows every category
	RequestTierPremium RequestTier = "premium"
)

// CallCeiling returns the per-request upstream call budget
func (t RequestTier) CallCeiling() (int, error) {
	switch t {
	case RequestTierFree:
		return 3, nil
	case RequestTierPremium:
		return 7, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidRequestTier, string(t))
	}
}

// ParseRequestTier converts a case-insensitive request tier name into a RequestTier
func ParseRequestTier(s string) (RequestTier, error) {
	t := RequestTier(strings.ToLower(strings.TrimSpace(s)))
	if _, err := t.CallCeiling(); err != nil {
		return "", err
	}
	return t, nil
}

// Category is a class of upstream data used for budget attribution and priority
type Category string

const (
	CategoryStandings      Category = "standings"
	CategoryTeamStatistics Category = "team_statistics"
	CategoryForm           Category = "form"
	CategoryH2H            Category = "h2h"
	// CategoryTeams covers team name to ID lookups
	CategoryTeams Category = "teams"
)

// Side identifies the home or away half of a paired category
type Side string

const (
	SideNone Side = ""
	SideHome Side = "home"
	SideAway Side = "away"
)

// HealthLevel is the graduated budget state
type HealthLevel string

const (
	HealthHealthy  HealthLevel = "healthy"
	HealthWarning  HealthLevel = "warning"
	HealthCritical HealthLevel = "critical"
)

const (
	warningThreshold  = 0.8
	criticalThreshold = 0.9
	historyDays       = 30
)

// DailyUsage is the upstream call ledger for one calendar day
type DailyUsage struct {
	Date            string         `json:"date"` // YYYY-MM-DD in the tracker's location
	TotalCalls      int            `json:"total_calls"`
	CallsByCategory map[string]int `json:"calls_by_category"`
	Tier            Tier           `json:"tier"`
}

func (u DailyUsage) clone() DailyUsage {
	byCat := make(map[string]int, len(u.CallsByCategory))
	for k, v := range u.CallsByCategory {
		byCat[k] = v
	}
	u.CallsByCategory = byCat
	return u
}

// BudgetWarnings flags the threshold states of a status snapshot
type BudgetWarnings struct {
	ApproachingLimit bool `json:"approaching_limit"`
	Critical         bool `json:"critical"`
	Exceeded         bool `json:"exceeded"`
}

// BudgetStatus is a point-in-time snapshot of the daily budget
type BudgetStatus struct {
	Tier               Tier           `json:"tier"`
	Date               string         `json:"date"`
	ResetsAt           time.Time      `json:"resets_at"`
	CallsUsed          int            `json:"calls_used"`
	CallsRemaining     int            `json:"calls_remaining"`
	Ceiling            int            `json:"ceiling"`
	UsagePercent       float64        `json:"usage_percent"`
	HealthLabel        HealthLevel    `json:"health_label"`
	CallsByCategory    map[string]int `json:"calls_by_category"`
	EstimatedCostToday float64        `json:"estimated_cost_today_usd"`
	EstimatedCostMonth float64        `json:"estimated_cost_month_usd"`
	Warnings           BudgetWarnings `json:"warnings"`
}

// BudgetStats extends BudgetStatus with archived history
type BudgetStats struct {
	BudgetStatus
	DaysTracked       int          `json:"days_tracked"`
	AvgDailyCallsWeek float64      `json:"avg_daily_calls_7d"`
	RecentDays        []DailyUsage `json:"recent_days"`
}

// WarningHandler is notified when the daily budget crosses a threshold.
// It is called at most once per level per day.
type WarningHandler interface {
	OnBudgetWarning(ctx context.Context, status BudgetStatus, level HealthLevel)
}

// TimeSource defines an interface for getting the current time.
// Shared backends (e.g. Redis TIME) keep every instance on the same calendar day.
type TimeSource interface {
	Now(ctx context.Context) (time.Time, error)
}

// SystemTimeSource reads the local clock
type SystemTimeSource struct{}

// Now implements TimeSource
func (SystemTimeSource) Now(_ context.Context) (time.Time, error) {
	return time.Now(), nil
}

// CacheConfig holds cache store configuration
type CacheConfig struct {
	// MaxEntries bounds the number of cached entries (default: 1000)
	MaxEntries int

	// EvictionBatch is how many least-recently-accessed entries are dropped
	// when the store is full (default: 100, capped at MaxEntries)
	EvictionBatch int

	// CleanupInterval sweeps expired entries every N gets (default: 100)
	CleanupInterval int

	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger

	// Metrics records evictions (default: NoopMetrics)
	Metrics Metrics

	// Now overrides the clock, for tests (default: time.Now)
	Now func() time.Time
}

// BudgetConfig holds budget tracker configuration
type BudgetConfig struct {
	// Tier is the initial daily tier name (default: "free")
	Tier string

	// Location defines calendar-day boundaries (default: time.Local)
	Location *time.Location

	// TimeSource supplies the clock (default: SystemTimeSource)
	TimeSource TimeSource

	// Store optionally persists the ledger across restarts
	Store LedgerStore

	// WarningHandler is called when a threshold is crossed (optional)
	WarningHandler WarningHandler

	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger

	// Metrics is used for budget gauges (default: NoopMetrics)
	Metrics Metrics
}

// CategoryTTLs holds cache lifetimes per category
type CategoryTTLs struct {
	Standings      time.Duration
	TeamStatistics time.Duration
	Form           time.Duration
	H2H            time.Duration
	TeamIDs        time.Duration
}

// Common cache lifetimes for upstream data
const (
	TTLLiveMatch    = 30 * time.Second
	TTLMatchDetails = 30 * time.Minute
	TTLLastMatches  = 3 * time.Hour
	TTLStandings    = 6 * time.Hour
	TTLH2H          = 24 * time.Hour
	TTLStatic       = 7 * 24 * time.Hour
)

// DefaultCategoryTTLs returns the standard lifetimes
func DefaultCategoryTTLs() CategoryTTLs {
	return CategoryTTLs{
		Standings:      TTLStandings,
		TeamStatistics: TTLLastMatches,
		Form:           TTLLastMatches,
		H2H:            TTLH2H,
		TeamIDs:        TTLStatic,
	}
}

// FetcherConfig holds context fetcher configuration
type FetcherConfig struct {
	// TTLs are the per-category cache lifetimes (default: DefaultCategoryTTLs)
	TTLs CategoryTTLs

	// FormMatches is how many recent matches make up "form" (default: 5)
	FormMatches int

	// CallCeilings overrides the per-request call ceiling of a request tier
	// (default: RequestTier.CallCeiling)
	CallCeilings map[RequestTier]int

	// FetchTimeout bounds each upstream call (default: 10 seconds)
	FetchTimeout time.Duration

	// RequestTimeout bounds a whole context fetch (default: 30 seconds)
	RequestTimeout time.Duration

	// Resolver maps team names to upstream IDs (optional)
	Resolver TeamResolver

	// CircuitBreaker guards the upstream provider (optional)
	CircuitBreaker CircuitBreaker

	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger

	// Metrics is used for fetch metrics (default: NoopMetrics)
	Metrics Metrics

	// Tracer creates spans for context fetches (default: otel global tracer)
	Tracer trace.Tracer
}
