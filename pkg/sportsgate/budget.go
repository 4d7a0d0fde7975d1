package sportsgate

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

const persistTimeout = 5 * time.Second

// BudgetTracker enforces the daily upstream call ceiling of the active tier.
// Every upstream call must pass CanMakeCall first and be reported with RecordCall.
// Concurrent callers use ReserveCall instead, which holds the slot while the call is in flight.
type BudgetTracker struct {
	mu         sync.Mutex
	tier       Tier
	limits     TierLimits
	current    DailyUsage
	history    []DailyUsage
	warnedAt80 bool
	warnedAt90 bool
	version    int64
	// reserved counts in-flight calls holding a reservation
	reserved int

	loc            *time.Location
	timeSource     TimeSource
	store          LedgerStore
	warningHandler WarningHandler
	logger         Logger
	metrics        Metrics

	persistMu        sync.Mutex
	persistedVersion int64
}

// NewBudgetTracker creates a budget tracker. An unknown tier fails fast with ErrInvalidTier.
func NewBudgetTracker(config *BudgetConfig) (*BudgetTracker, error) {
	if config == nil {
		config = &BudgetConfig{}
	}
	tierName := config.Tier
	if tierName == "" {
		tierName = string(TierFree)
	}
	tier, err := ParseTier(tierName)
	if err != nil {
		return nil, err
	}
	limits, _ := tier.Limits()

	t := &BudgetTracker{
		tier:           tier,
		limits:         limits,
		loc:            config.Location,
		timeSource:     config.TimeSource,
		store:          config.Store,
		warningHandler: config.WarningHandler,
		logger:         config.Logger,
		metrics:        config.Metrics,
	}
	if t.loc == nil {
		t.loc = time.Local
	}
	if t.timeSource == nil {
		t.timeSource = SystemTimeSource{}
	}
	if t.logger == nil {
		t.logger = &NoopLogger{}
	}
	if t.metrics == nil {
		t.metrics = &NoopMetrics{}
	}

	now := t.now(context.Background())
	t.current = newDailyUsage(dayKey(now, t.loc), tier)

	t.logger.Info("budget tracker initialized",
		Field{"tier", string(tier)}, Field{"daily_ceiling", limits.DailyCeiling})
	return t, nil
}

func newDailyUsage(date string, tier Tier) DailyUsage {
	return DailyUsage{Date: date, CallsByCategory: make(map[string]int), Tier: tier}
}

// Restore loads the persisted ledger, if a store is configured.
// A ledger from an earlier day is archived into history.
func (t *BudgetTracker) Restore(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	snap, err := t.store.LoadLedger(ctx)
	if err != nil {
		return fmt.Errorf("load budget ledger: %w", err)
	}
	if snap == nil {
		return nil
	}
	now := t.now(ctx)

	t.mu.Lock()
	snap = snap.Clone()
	t.current = snap.Current
	if t.current.CallsByCategory == nil {
		t.current.CallsByCategory = make(map[string]int)
	}
	t.history = snap.History
	t.warnedAt80 = snap.WarnedAt80
	t.warnedAt90 = snap.WarnedAt90
	t.version = snap.Version
	t.rolloverLocked(now)
	used := t.current.TotalCalls
	t.mu.Unlock()

	t.persistMu.Lock()
	if snap.Version > t.persistedVersion {
		t.persistedVersion = snap.Version
	}
	t.persistMu.Unlock()

	t.logger.Info("budget ledger restored", Field{"date", snap.Current.Date}, Field{"calls_used", used})
	return nil
}

// CanMakeCall reports whether an upstream call is allowed right now.
// In-flight reservations count against the ceiling.
// Crossing 80% and 90% of the ceiling is logged once per day each.
func (t *BudgetTracker) CanMakeCall(ctx context.Context, category Category) bool {
	return t.gate(ctx, category, false)
}

// ReserveCall atomically checks the ceiling and holds one call slot for an
// upstream request about to be made. commit(true) charges the call to the day's
// ledger, commit(false) gives the slot back. Only the first commit counts.
func (t *BudgetTracker) ReserveCall(ctx context.Context, category Category) (commit func(charged bool), ok bool) {
	if !t.gate(ctx, category, true) {
		return func(bool) {}, false
	}
	var once sync.Once
	return func(charged bool) {
		once.Do(func() {
			if charged {
				t.charge(ctx, category, true)
				return
			}
			t.mu.Lock()
			t.reserved--
			t.mu.Unlock()
		})
	}, true
}

func (t *BudgetTracker) gate(ctx context.Context, category Category, reserve bool) bool {
	now := t.now(ctx)

	t.mu.Lock()
	changed := t.rolloverLocked(now)

	used := t.current.TotalCalls
	pct := float64(used) / float64(t.limits.DailyCeiling)

	var fired []HealthLevel
	if pct >= warningThreshold && !t.warnedAt80 {
		t.warnedAt80 = true
		fired = append(fired, HealthWarning)
		t.logger.Warn("api budget at 80%",
			Field{"calls_used", used}, Field{"daily_ceiling", t.limits.DailyCeiling})
	}
	if pct >= criticalThreshold && !t.warnedAt90 {
		t.warnedAt90 = true
		fired = append(fired, HealthCritical)
		t.logger.Error("api budget at 90%, switching to conservative mode",
			Field{"calls_used", used}, Field{"daily_ceiling", t.limits.DailyCeiling})
	}

	allowed := used+t.reserved < t.limits.DailyCeiling
	if !allowed {
		t.logger.Warn("api budget exceeded",
			Field{"category", string(category)}, Field{"calls_used", used},
			Field{"calls_in_flight", t.reserved}, Field{"daily_ceiling", t.limits.DailyCeiling})
	} else if reserve {
		t.reserved++
	}

	var snap *LedgerSnapshot
	if changed || len(fired) > 0 {
		t.version++
		snap = t.snapshotLocked()
	}
	var status BudgetStatus
	if len(fired) > 0 {
		status = t.statusLocked(now)
	}
	t.mu.Unlock()

	if !allowed {
		t.metrics.RecordBudgetRefusal(string(category))
	}
	if t.warningHandler != nil {
		for _, level := range fired {
			t.warningHandler.OnBudgetWarning(ctx, status, level)
		}
	}
	t.persist(ctx, snap)
	return allowed
}

// RecordCall charges one upstream call to the day's ledger.
// Cache hits never consume budget.
func (t *BudgetTracker) RecordCall(ctx context.Context, category Category, fromCache bool) {
	if fromCache {
		t.logger.Debug("cache hit, not charged to budget", Field{"category", string(category)})
		return
	}
	t.charge(ctx, category, false)
}

// charge counts one call; release also frees the reservation the call held
// in the same critical section.
func (t *BudgetTracker) charge(ctx context.Context, category Category, release bool) {
	now := t.now(ctx)

	t.mu.Lock()
	if release {
		t.reserved--
	}
	t.rolloverLocked(now)
	t.current.TotalCalls++
	t.current.CallsByCategory[string(category)]++
	t.version++
	used := t.current.TotalCalls
	snap := t.snapshotLocked()
	tier, ceiling := t.tier, t.limits.DailyCeiling
	t.mu.Unlock()

	t.metrics.RecordBudgetUsage(string(tier), used, ceiling)
	t.logger.Info("api call recorded",
		Field{"category", string(category)}, Field{"calls_used", used}, Field{"daily_ceiling", ceiling})
	t.persist(ctx, snap)
}

// Status returns the current budget snapshot
func (t *BudgetTracker) Status(ctx context.Context) BudgetStatus {
	now := t.now(ctx)

	t.mu.Lock()
	changed := t.rolloverLocked(now)
	status := t.statusLocked(now)
	snap := t.snapshotIfChangedLocked(changed)
	t.mu.Unlock()

	t.persist(ctx, snap)
	return status
}

// Stats returns the status plus a summary of the archived history
func (t *BudgetTracker) Stats(ctx context.Context) BudgetStats {
	now := t.now(ctx)

	t.mu.Lock()
	changed := t.rolloverLocked(now)
	status := t.statusLocked(now)
	recent := t.history
	if len(recent) > 7 {
		recent = recent[len(recent)-7:]
	}
	days := make([]DailyUsage, len(recent))
	total := 0
	for i, d := range recent {
		days[i] = d.clone()
		total += d.TotalCalls
	}
	tracked := len(t.history)
	snap := t.snapshotIfChangedLocked(changed)
	t.mu.Unlock()

	t.persist(ctx, snap)

	var avg float64
	if len(days) > 0 {
		avg = math.Round(float64(total)/float64(len(days))*10) / 10
	}
	return BudgetStats{
		BudgetStatus:      status,
		DaysTracked:       tracked,
		AvgDailyCallsWeek: avg,
		RecentDays:        days,
	}
}

// History returns a copy of the archived daily ledgers, oldest first
func (t *BudgetTracker) History(ctx context.Context) []DailyUsage {
	now := t.now(ctx)

	t.mu.Lock()
	changed := t.rolloverLocked(now)
	out := make([]DailyUsage, len(t.history))
	for i, d := range t.history {
		out[i] = d.clone()
	}
	snap := t.snapshotIfChangedLocked(changed)
	t.mu.Unlock()

	t.persist(ctx, snap)
	return out
}

// IsAtWarningLevel reports usage at or above 80% of the ceiling
func (t *BudgetTracker) IsAtWarningLevel(ctx context.Context) bool {
	return t.usageFraction(ctx) >= warningThreshold
}

// IsAtCriticalLevel reports usage at or above 90% of the ceiling
func (t *BudgetTracker) IsAtCriticalLevel(ctx context.Context) bool {
	return t.usageFraction(ctx) >= criticalThreshold
}

// ShouldDowngradeToFreeBehavior reports whether optional fetch categories should be shed
func (t *BudgetTracker) ShouldDowngradeToFreeBehavior(ctx context.Context) bool {
	return t.IsAtCriticalLevel(ctx)
}

// RequestTierDecision is the per-request tier after the downgrade rule
type RequestTierDecision struct {
	Requested  RequestTier
	Effective  RequestTier
	Downgraded bool
	// Recognized is false when the requested name was unknown and free was assumed
	Recognized bool
}

// DecideRequestTier parses a per-request tier name and applies budget pressure:
// premium runs as free while ShouldDowngradeToFreeBehavior holds. Unknown names
// are treated as free.
func (t *BudgetTracker) DecideRequestTier(ctx context.Context, name string) RequestTierDecision {
	requested, err := ParseRequestTier(name)
	d := RequestTierDecision{Requested: requested, Effective: requested, Recognized: err == nil}
	if err != nil {
		d.Requested, d.Effective = RequestTierFree, RequestTierFree
	}
	if d.Effective == RequestTierPremium && t.ShouldDowngradeToFreeBehavior(ctx) {
		d.Effective = RequestTierFree
		d.Downgraded = true
	}
	return d
}

// Tier returns the active tier
func (t *BudgetTracker) Tier() Tier {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tier
}

// SetTier swaps the active tier and its ceiling. The day's usage is kept.
func (t *BudgetTracker) SetTier(ctx context.Context, name string) error {
	tier, err := ParseTier(name)
	if err != nil {
		return err
	}
	limits, _ := tier.Limits()
	now := t.now(ctx)

	t.mu.Lock()
	t.rolloverLocked(now)
	old := t.tier
	t.tier = tier
	t.limits = limits
	t.current.Tier = tier
	t.version++
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.logger.Info("budget tier changed",
		Field{"from", string(old)}, Field{"to", string(tier)}, Field{"daily_ceiling", limits.DailyCeiling})
	t.persist(ctx, snap)
	return nil
}

func (t *BudgetTracker) usageFraction(ctx context.Context) float64 {
	now := t.now(ctx)

	t.mu.Lock()
	changed := t.rolloverLocked(now)
	frac := float64(t.current.TotalCalls) / float64(t.limits.DailyCeiling)
	snap := t.snapshotIfChangedLocked(changed)
	t.mu.Unlock()

	t.persist(ctx, snap)
	return frac
}

func (t *BudgetTracker) now(ctx context.Context) time.Time {
	now, err := t.timeSource.Now(ctx)
	if err != nil {
		t.logger.Warn("time source failed, using local clock", Field{"error", err})
		return time.Now()
	}
	return now
}

// rolloverLocked archives the current ledger when the calendar day has advanced.
// Caller holds t.mu.
func (t *BudgetTracker) rolloverLocked(now time.Time) bool {
	today := dayKey(now, t.loc)
	if today <= t.current.Date {
		return false
	}

	t.logger.Info("daily budget reset",
		Field{"previous_date", t.current.Date}, Field{"calls_used", t.current.TotalCalls},
		Field{"daily_ceiling", t.limits.DailyCeiling})

	t.history = append(t.history, t.current)
	if len(t.history) > historyDays {
		t.history = append([]DailyUsage(nil), t.history[len(t.history)-historyDays:]...)
	}
	t.current = newDailyUsage(today, t.tier)
	t.warnedAt80 = false
	t.warnedAt90 = false
	t.version++
	return true
}

// statusLocked builds a status snapshot. Caller holds t.mu.
func (t *BudgetTracker) statusLocked(now time.Time) BudgetStatus {
	used := t.current.TotalCalls
	ceiling := t.limits.DailyCeiling
	remaining := ceiling - used
	if remaining < 0 {
		remaining = 0
	}
	pct := float64(used) / float64(ceiling) * 100

	health := HealthHealthy
	switch {
	case pct >= criticalThreshold*100:
		health = HealthCritical
	case pct >= warningThreshold*100:
		health = HealthWarning
	}

	costToday := float64(used) * t.limits.CostPerCall
	byCat := make(map[string]int, len(t.current.CallsByCategory))
	for k, v := range t.current.CallsByCategory {
		byCat[k] = v
	}

	return BudgetStatus{
		Tier:               t.tier,
		Date:               t.current.Date,
		ResetsAt:           nextMidnight(now, t.loc),
		CallsUsed:          used,
		CallsRemaining:     remaining,
		Ceiling:            ceiling,
		UsagePercent:       math.Round(pct*10) / 10,
		HealthLabel:        health,
		CallsByCategory:    byCat,
		EstimatedCostToday: math.Round(costToday*1000) / 1000,
		EstimatedCostMonth: math.Round(costToday*30*100) / 100,
		Warnings: BudgetWarnings{
			ApproachingLimit: pct >= warningThreshold*100,
			Critical:         pct >= criticalThreshold*100,
			Exceeded:         used >= ceiling,
		},
	}
}

func (t *BudgetTracker) snapshotIfChangedLocked(changed bool) *LedgerSnapshot {
	if !changed {
		return nil
	}
	return t.snapshotLocked()
}

// snapshotLocked copies the state for persistence. Caller holds t.mu.
func (t *BudgetTracker) snapshotLocked() *LedgerSnapshot {
	if t.store == nil {
		return nil
	}
	return (&LedgerSnapshot{
		Version:    t.version,
		Tier:       t.tier,
		Current:    t.current,
		History:    t.history,
		WarnedAt80: t.warnedAt80,
		WarnedAt90: t.warnedAt90,
	}).Clone()
}

// persist saves a snapshot outside the tracker lock. Older versions are dropped.
func (t *BudgetTracker) persist(ctx context.Context, snap *LedgerSnapshot) {
	if t.store == nil || snap == nil {
		return
	}
	t.persistMu.Lock()
	defer t.persistMu.Unlock()

	if snap.Version <= t.persistedVersion {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := t.store.SaveLedger(saveCtx, snap); err != nil {
		t.logger.Warn("failed to persist budget ledger", Field{"error", err}, Field{"version", snap.Version})
		return
	}
	t.persistedVersion = snap.Version
}
