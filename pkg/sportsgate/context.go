package sportsgate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// DataQuality is a coarse grade of how much context was gathered
type DataQuality string

const (
	QualityUltra    DataQuality = "ultra"
	QualityPremium  DataQuality = "premium"
	QualityStandard DataQuality = "standard"
	QualityBasic    DataQuality = "basic"
)

// DataCompleteness tells whether any category fetch failed
type DataCompleteness string

const (
	CompletenessFull    DataCompleteness = "full"
	CompletenessPartial DataCompleteness = "partial"
)

// Reasons recorded in ContextMetadata.FailedFetches and SkippedFetches
const (
	ReasonUpstreamError   = "upstream_error"
	ReasonEmptyPayload    = "empty_payload"
	ReasonTimeout         = "timeout"
	ReasonCanceled        = "canceled"
	ReasonCircuitOpen     = "circuit_open"
	ReasonBudgetExhausted = "budget_exhausted"
	ReasonTeamUnresolved  = "team_unresolved"
	ReasonMissingLeague   = "missing_league"
)

// MatchRequest identifies the match a prediction context is gathered for.
// Team IDs win over names; names are resolved through the TeamResolver.
type MatchRequest struct {
	HomeTeam   string
	AwayTeam   string
	HomeTeamID int
	AwayTeamID int
	LeagueID   int
	// Season defaults to the season containing MatchDate (or today)
	Season    int
	MatchDate *time.Time
	// Tier is the per-request tier name; unknown names are treated as free
	Tier string
}

// PairedData holds the home and away halves of a paired category
type PairedData struct {
	Home json.RawMessage `json:"home"`
	Away json.RawMessage `json:"away"`
}

// FetchFailure records one category fetch that left its field empty
type FetchFailure struct {
	Category Category `json:"category"`
	Side     Side     `json:"side,omitempty"`
	Reason   string   `json:"reason"`
}

// ContextMetadata describes how a PredictionContext was assembled
type ContextMetadata struct {
	CallsUsed        int              `json:"calls_used"`
	CallsBudget      int              `json:"calls_budget"`
	CacheHits        int              `json:"cache_hits"`
	CacheMisses      int              `json:"cache_misses"`
	RequestedTier    RequestTier      `json:"requested_tier"`
	Tier             RequestTier      `json:"tier"`
	Downgraded       bool             `json:"downgraded"`
	DataQuality      DataQuality      `json:"data_quality"`
	DataCompleteness DataCompleteness `json:"data_completeness"`
	CacheEfficiency  string           `json:"cache_efficiency"`
	FailedFetches    []FetchFailure   `json:"failed_fetches"`
	// SkippedFetches were never attempted because the daily budget refused them
	SkippedFetches []FetchFailure `json:"skipped_fetches"`
}

// PredictionContext is the upstream data handed to the prediction engine.
// A nil field means the category was not fetched.
type PredictionContext struct {
	RequestID      string          `json:"request_id"`
	HomeTeam       string          `json:"home_team"`
	AwayTeam       string          `json:"away_team"`
	LeagueID       int             `json:"league_id"`
	Season         int             `json:"season"`
	Standings      json.RawMessage `json:"standings"`
	TeamStatistics PairedData      `json:"team_statistics"`
	Form           PairedData      `json:"form"`
	H2H            json.RawMessage `json:"h2h"`
	MatchDate      *time.Time      `json:"match_date"`
	Metadata       ContextMetadata `json:"metadata"`
}

// FailedCategories returns the distinct categories that failed, in failure order
func (c *PredictionContext) FailedCategories() []Category {
	seen := make(map[Category]bool, len(c.Metadata.FailedFetches))
	out := make([]Category, 0, len(c.Metadata.FailedFetches))
	for _, f := range c.Metadata.FailedFetches {
		if !seen[f.Category] {
			seen[f.Category] = true
			out = append(out, f.Category)
		}
	}
	return out
}

// NeedsFallback reports that the engine must use its statistical fallback
func (c *PredictionContext) NeedsFallback() bool {
	return c.Standings == nil
}

// gradeQuality derives the quality grade from the populated fields only
func gradeQuality(c *PredictionContext) DataQuality {
	hasStandings := c.Standings != nil
	bothForm := c.Form.Home != nil && c.Form.Away != nil
	bothStats := c.TeamStatistics.Home != nil && c.TeamStatistics.Away != nil
	hasH2H := c.H2H != nil

	switch {
	case hasStandings && bothStats && bothForm && hasH2H:
		return QualityUltra
	case hasStandings && bothForm && hasH2H:
		return QualityPremium
	case hasStandings && (c.Form.Home != nil || c.Form.Away != nil):
		return QualityStandard
	default:
		return QualityBasic
	}
}

func cacheEfficiency(hits, misses int) string {
	total := hits + misses
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.0f%%", float64(hits)/float64(total)*100)
}

type requestTierKey struct{}

// WithRequestTier stores a per-request tier decision in ctx
func WithRequestTier(ctx context.Context, d RequestTierDecision) context.Context {
	return context.WithValue(ctx, requestTierKey{}, d)
}

// RequestTierFromContext returns the decision stored by WithRequestTier
func RequestTierFromContext(ctx context.Context) (RequestTierDecision, bool) {
	d, ok := ctx.Value(requestTierKey{}).(RequestTierDecision)
	return d, ok
}
