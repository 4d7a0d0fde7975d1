package sportsgate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const (
	defaultFormMatches    = 5
	defaultFetchTimeout   = 10 * time.Second
	defaultRequestTimeout = 30 * time.Second

	tracerName = "github.com/smartsports/sportsgate"
)

var errMissingLeague = errors.New("league id is required")

// Fetcher assembles prediction contexts from the upstream provider under the
// daily budget and a per-request call ceiling. It holds no per-request state.
type Fetcher struct {
	provider Provider
	cache    Cache
	budget   *BudgetTracker
	resolver TeamResolver
	breaker  CircuitBreaker

	ttls           CategoryTTLs
	formMatches    int
	callCeilings   map[RequestTier]int
	fetchTimeout   time.Duration
	requestTimeout time.Duration

	logger  Logger
	metrics Metrics
	tracer  trace.Tracer

	sf singleflight.Group
}

// NewFetcher creates a context fetcher. A nil cache disables caching.
func NewFetcher(provider Provider, cache Cache, budget *BudgetTracker, config *FetcherConfig) (*Fetcher, error) {
	if provider == nil {
		return nil, ErrProviderRequired
	}
	if budget == nil {
		return nil, ErrBudgetRequired
	}
	if cache == nil {
		cache = NewNoopCache()
	}
	if config == nil {
		config = &FetcherConfig{}
	}

	f := &Fetcher{
		provider:       provider,
		cache:          cache,
		budget:         budget,
		resolver:       config.Resolver,
		breaker:        config.CircuitBreaker,
		ttls:           withDefaultTTLs(config.TTLs),
		formMatches:    config.FormMatches,
		callCeilings:   make(map[RequestTier]int, 2),
		fetchTimeout:   config.FetchTimeout,
		requestTimeout: config.RequestTimeout,
		logger:         config.Logger,
		metrics:        config.Metrics,
		tracer:         config.Tracer,
	}
	if f.formMatches <= 0 {
		f.formMatches = defaultFormMatches
	}
	if f.fetchTimeout <= 0 {
		f.fetchTimeout = defaultFetchTimeout
	}
	if f.requestTimeout <= 0 {
		f.requestTimeout = defaultRequestTimeout
	}
	if f.logger == nil {
		f.logger = &NoopLogger{}
	}
	if f.metrics == nil {
		f.metrics = &NoopMetrics{}
	}
	if f.tracer == nil {
		f.tracer = otel.Tracer(tracerName)
	}
	for _, tier := range []RequestTier{RequestTierFree, RequestTierPremium} {
		ceiling, _ := tier.CallCeiling()
		if override, ok := config.CallCeilings[tier]; ok && override >= 0 {
			ceiling = override
		}
		f.callCeilings[tier] = ceiling
	}
	return f, nil
}

func withDefaultTTLs(ttls CategoryTTLs) CategoryTTLs {
	def := DefaultCategoryTTLs()
	if ttls.Standings <= 0 {
		ttls.Standings = def.Standings
	}
	if ttls.TeamStatistics <= 0 {
		ttls.TeamStatistics = def.TeamStatistics
	}
	if ttls.Form <= 0 {
		ttls.Form = def.Form
	}
	if ttls.H2H <= 0 {
		ttls.H2H = def.H2H
	}
	if ttls.TeamIDs <= 0 {
		ttls.TeamIDs = def.TeamIDs
	}
	return ttls
}

// fetchRun is the local bookkeeping of one FetchPredictionContext call
type fetchRun struct {
	req     MatchRequest
	season  int
	tier    RequestTier
	ceiling int
	pc      *PredictionContext

	teamIDs    map[Side]int
	resolveErr map[Side]error
}

func (r *fetchRun) hasCallBudget() bool {
	return r.pc.Metadata.CallsUsed < r.ceiling
}

func (r *fetchRun) teamName(side Side) string {
	if side == SideAway {
		return r.req.AwayTeam
	}
	return r.req.HomeTeam
}

type fetchSpec struct {
	category Category
	side     Side
	key      string
	ttl      time.Duration
	call     func(ctx context.Context) (json.RawMessage, error)
}

// FetchPredictionContext gathers standings, team statistics, form and head-to-head
// data in priority order. It never fails: missing data is reported in the metadata.
func (f *Fetcher) FetchPredictionContext(ctx context.Context, req MatchRequest) *PredictionContext {
	ctx, cancel := context.WithTimeout(ctx, f.requestTimeout)
	defer cancel()

	decision := f.budget.DecideRequestTier(ctx, req.Tier)
	if !decision.Recognized {
		f.logger.Warn("unknown request tier, using free", Field{"tier", req.Tier})
	}
	requested, tier, downgraded := decision.Requested, decision.Effective, decision.Downgraded
	if downgraded {
		f.logger.Warn("api budget critical, downgrading request to free tier",
			Field{"home_team", req.HomeTeam}, Field{"away_team", req.AwayTeam})
	}
	ceiling := f.callCeilings[tier]

	season := req.Season
	if season <= 0 {
		ref := time.Now()
		if req.MatchDate != nil {
			ref = *req.MatchDate
		}
		season = SeasonFor(ref)
	}

	pc := &PredictionContext{
		RequestID: uuid.NewString(),
		HomeTeam:  req.HomeTeam,
		AwayTeam:  req.AwayTeam,
		LeagueID:  req.LeagueID,
		Season:    season,
		MatchDate: req.MatchDate,
		Metadata: ContextMetadata{
			CallsBudget:    ceiling,
			RequestedTier:  requested,
			Tier:           tier,
			Downgraded:     downgraded,
			FailedFetches:  []FetchFailure{},
			SkippedFetches: []FetchFailure{},
		},
	}

	ctx, span := f.tracer.Start(ctx, "Fetcher.FetchPredictionContext", trace.WithAttributes(
		attribute.String("request_id", pc.RequestID),
		attribute.String("tier", string(tier)),
		attribute.Int("league_id", req.LeagueID),
	))
	defer span.End()

	run := &fetchRun{
		req:        req,
		season:     season,
		tier:       tier,
		ceiling:    ceiling,
		pc:         pc,
		teamIDs:    make(map[Side]int, 2),
		resolveErr: make(map[Side]error, 2),
	}
	if req.HomeTeamID > 0 {
		run.teamIDs[SideHome] = req.HomeTeamID
	}
	if req.AwayTeamID > 0 {
		run.teamIDs[SideAway] = req.AwayTeamID
	}

	pc.Standings = f.fetchStandings(ctx, run)
	if tier == RequestTierPremium {
		pc.TeamStatistics.Home = f.fetchTeamStatistics(ctx, run, SideHome)
		pc.TeamStatistics.Away = f.fetchTeamStatistics(ctx, run, SideAway)
	}
	pc.Form.Home = f.fetchForm(ctx, run, SideHome)
	pc.Form.Away = f.fetchForm(ctx, run, SideAway)
	if tier == RequestTierPremium {
		pc.H2H = f.fetchHeadToHead(ctx, run)
	}

	meta := &pc.Metadata
	meta.DataQuality = gradeQuality(pc)
	meta.DataCompleteness = CompletenessFull
	if len(meta.FailedFetches) > 0 {
		meta.DataCompleteness = CompletenessPartial
	}
	meta.CacheEfficiency = cacheEfficiency(meta.CacheHits, meta.CacheMisses)

	f.metrics.RecordDataQuality(string(meta.DataQuality))
	span.SetAttributes(
		attribute.String("data_quality", string(meta.DataQuality)),
		attribute.Int("calls_used", meta.CallsUsed),
		attribute.Int("cache_hits", meta.CacheHits),
		attribute.Int("cache_misses", meta.CacheMisses),
	)
	f.logger.Info("prediction context assembled",
		Field{"request_id", pc.RequestID},
		Field{"tier", string(tier)},
		Field{"data_quality", string(meta.DataQuality)},
		Field{"calls_used", meta.CallsUsed},
		Field{"calls_budget", meta.CallsBudget},
		Field{"cache_efficiency", meta.CacheEfficiency},
		Field{"failed_fetches", len(meta.FailedFetches)},
	)
	return pc
}

func (f *Fetcher) fetchStandings(ctx context.Context, run *fetchRun) json.RawMessage {
	if !run.hasCallBudget() {
		return nil
	}
	league := run.req.LeagueID
	if league <= 0 {
		f.fail(ctx, run, CategoryStandings, SideNone, errMissingLeague)
		return nil
	}
	return f.fetch(ctx, run, fetchSpec{
		category: CategoryStandings,
		key:      fmt.Sprintf("standings:%d:%d", league, run.season),
		ttl:      f.ttls.Standings,
		call: func(ctx context.Context) (json.RawMessage, error) {
			return f.provider.FetchStandings(ctx, league, run.season)
		},
	})
}

func (f *Fetcher) fetchTeamStatistics(ctx context.Context, run *fetchRun, side Side) json.RawMessage {
	if !run.hasCallBudget() {
		return nil
	}
	league := run.req.LeagueID
	if league <= 0 {
		f.fail(ctx, run, CategoryTeamStatistics, side, errMissingLeague)
		return nil
	}
	teamID, err := f.teamID(ctx, run, side)
	if err != nil {
		f.fail(ctx, run, CategoryTeamStatistics, side, err)
		return nil
	}
	return f.fetch(ctx, run, fetchSpec{
		category: CategoryTeamStatistics,
		side:     side,
		key:      fmt.Sprintf("team_stats:%d:%d:%d", teamID, league, run.season),
		ttl:      f.ttls.TeamStatistics,
		call: func(ctx context.Context) (json.RawMessage, error) {
			return f.provider.FetchTeamStatistics(ctx, teamID, league, run.season)
		},
	})
}

func (f *Fetcher) fetchForm(ctx context.Context, run *fetchRun, side Side) json.RawMessage {
	if !run.hasCallBudget() {
		return nil
	}
	teamID, err := f.teamID(ctx, run, side)
	if err != nil {
		f.fail(ctx, run, CategoryForm, side, err)
		return nil
	}
	limit := f.formMatches
	return f.fetch(ctx, run, fetchSpec{
		category: CategoryForm,
		side:     side,
		key:      fmt.Sprintf("form:%d:%d", teamID, limit),
		ttl:      f.ttls.Form,
		call: func(ctx context.Context) (json.RawMessage, error) {
			return f.provider.FetchTeamLastMatches(ctx, teamID, limit)
		},
	})
}

func (f *Fetcher) fetchHeadToHead(ctx context.Context, run *fetchRun) json.RawMessage {
	if !run.hasCallBudget() {
		return nil
	}
	homeID, err := f.teamID(ctx, run, SideHome)
	if err != nil {
		f.fail(ctx, run, CategoryH2H, SideNone, err)
		return nil
	}
	awayID, err := f.teamID(ctx, run, SideAway)
	if err != nil {
		f.fail(ctx, run, CategoryH2H, SideNone, err)
		return nil
	}
	// Keyed by home then away: the payload is summarised from the home side
	return f.fetch(ctx, run, fetchSpec{
		category: CategoryH2H,
		key:      fmt.Sprintf("h2h:%d-%d", homeID, awayID),
		ttl:      f.ttls.H2H,
		call: func(ctx context.Context) (json.RawMessage, error) {
			return f.provider.FetchHeadToHead(ctx, homeID, awayID)
		},
	})
}

// fetch runs the budget gate, then the cache, then the upstream for one category.
func (f *Fetcher) fetch(ctx context.Context, run *fetchRun, s fetchSpec) json.RawMessage {
	ctx, span := f.tracer.Start(ctx, "Fetcher.fetch", trace.WithAttributes(
		attribute.String("category", string(s.category)),
		attribute.String("side", string(s.side)),
		attribute.String("key", s.key),
	))
	defer span.End()

	if err := ctx.Err(); err != nil {
		f.fail(ctx, run, s.category, s.side, err)
		return nil
	}
	commit, ok := f.budget.ReserveCall(ctx, s.category)
	if !ok {
		f.fail(ctx, run, s.category, s.side, ErrBudgetExhausted)
		return nil
	}
	// no-op once the executing caller has charged the call
	defer commit(false)

	meta := &run.pc.Metadata
	if v, ok := f.cache.GetExpecting(s.key, s.ttl); ok {
		if raw, ok := v.(json.RawMessage); ok {
			meta.CacheHits++
			f.metrics.RecordCacheHit(string(s.category))
			f.budget.RecordCall(ctx, s.category, true)
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return raw
		}
	}

	executed := false
	v, err, _ := f.sf.Do(s.key, func() (interface{}, error) {
		executed = true
		raw, err := f.callUpstream(ctx, s)
		if err != nil {
			return nil, err
		}
		f.cache.Set(s.key, raw, s.ttl)
		commit(true)
		return raw, nil
	})
	if err != nil {
		f.fail(ctx, run, s.category, s.side, err)
		return nil
	}

	if executed {
		meta.CacheMisses++
		meta.CallsUsed++
		f.metrics.RecordCacheMiss(string(s.category))
	} else {
		// served by a concurrent request's upstream call
		meta.CacheHits++
		f.metrics.RecordCacheHit(string(s.category))
	}
	span.SetAttributes(attribute.Bool("cache_hit", !executed))
	return v.(json.RawMessage)
}

// callUpstream performs one provider call under the fetch timeout and the breaker
func (f *Fetcher) callUpstream(ctx context.Context, s fetchSpec) (json.RawMessage, error) {
	var raw json.RawMessage
	start := time.Now()
	err := f.guard(ctx, func(ctx context.Context) error {
		r, err := s.call(ctx)
		if err != nil {
			return err
		}
		if isEmptyPayload(r) {
			return ErrEmptyPayload
		}
		raw = r
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		f.metrics.RecordUpstreamCall(string(s.category), time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}
	f.logger.Info("upstream call completed",
		Field{"category", string(s.category)}, Field{"side", string(s.side)},
		Field{"duration", time.Since(start).String()})
	return raw, nil
}

func (f *Fetcher) guard(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, f.fetchTimeout)
	defer cancel()
	if f.breaker == nil {
		return fn(ctx)
	}
	return f.breaker.Execute(ctx, fn)
}

// teamID returns the upstream ID for a side, resolving the name at most once per run
func (f *Fetcher) teamID(ctx context.Context, run *fetchRun, side Side) (int, error) {
	if id, ok := run.teamIDs[side]; ok {
		return id, nil
	}
	if err, ok := run.resolveErr[side]; ok {
		return 0, err
	}
	id, err := f.resolveTeam(ctx, run.teamName(side))
	if err != nil {
		run.resolveErr[side] = err
		return 0, err
	}
	run.teamIDs[side] = id
	return id, nil
}

// resolveTeam maps a name to an ID. Lookups are cached and charged to the daily
// budget under CategoryTeams, never to the per-request ceiling.
func (f *Fetcher) resolveTeam(ctx context.Context, name string) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" || f.resolver == nil {
		return 0, fmt.Errorf("%w: %q", ErrTeamUnresolved, name)
	}
	key := "team_id:" + strings.ToLower(name)
	if v, ok := f.cache.GetExpecting(key, f.ttls.TeamIDs); ok {
		if id, ok := v.(int); ok {
			return id, nil
		}
	}
	commit, ok := f.budget.ReserveCall(ctx, CategoryTeams)
	if !ok {
		return 0, fmt.Errorf("%w: %w", ErrTeamUnresolved, ErrBudgetExhausted)
	}
	defer commit(false)

	v, err, _ := f.sf.Do(key, func() (interface{}, error) {
		var id int
		err := f.guard(ctx, func(ctx context.Context) error {
			var err error
			id, err = f.resolver.ResolveTeamID(ctx, name)
			return err
		})
		if err != nil {
			return nil, err
		}
		f.cache.Set(key, id, f.ttls.TeamIDs)
		commit(true)
		f.logger.Info("team id resolved", Field{"team", name}, Field{"team_id", id})
		return id, nil
	})
	if err != nil {
		if errors.Is(err, ErrTeamUnresolved) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %w", ErrTeamUnresolved, err)
	}
	return v.(int), nil
}

func (f *Fetcher) fail(ctx context.Context, run *fetchRun, category Category, side Side, err error) {
	if errors.Is(err, ErrBudgetExhausted) {
		run.pc.Metadata.SkippedFetches = append(run.pc.Metadata.SkippedFetches,
			FetchFailure{Category: category, Side: side, Reason: ReasonBudgetExhausted})
		f.logger.Info("daily api budget exhausted, skipping fetch",
			Field{"category", string(category)}, Field{"side", string(side)})
		return
	}
	reason := failureReason(err)
	run.pc.Metadata.FailedFetches = append(run.pc.Metadata.FailedFetches,
		FetchFailure{Category: category, Side: side, Reason: reason})
	f.metrics.RecordFetchFailure(string(category), reason)

	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)

	f.logger.Warn("context fetch failed, continuing without it",
		Field{"category", string(category)}, Field{"side", string(side)},
		Field{"reason", reason}, Field{"error", err})
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrTeamUnresolved):
		return ReasonTeamUnresolved
	case errors.Is(err, ErrCircuitOpen):
		return ReasonCircuitOpen
	case errors.Is(err, ErrEmptyPayload):
		return ReasonEmptyPayload
	case errors.Is(err, errMissingLeague):
		return ReasonMissingLeague
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, context.Canceled):
		return ReasonCanceled
	default:
		return ReasonUpstreamError
	}
}
