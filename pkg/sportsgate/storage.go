package sportsgate

import "context"

// LedgerStore defines the interface for persisting the budget ledger.
// Persistence is optional: without a store a restart resets the day's
// usage to zero, which under-reports rather than overspends.
type LedgerStore interface {
	// LoadLedger returns the last saved snapshot, or nil if none exists
	LoadLedger(ctx context.Context) (*LedgerSnapshot, error)

	// SaveLedger stores a snapshot. Implementations must ignore snapshots
	// whose Version is not greater than the stored one.
	SaveLedger(ctx context.Context, snapshot *LedgerSnapshot) error
}

// LedgerSnapshot is the persisted form of the budget tracker state
type LedgerSnapshot struct {
	Version    int64        `json:"version"`
	Tier       Tier         `json:"tier"`
	Current    DailyUsage   `json:"current"`
	History    []DailyUsage `json:"history"`
	WarnedAt80 bool         `json:"warned_at_80"`
	WarnedAt90 bool         `json:"warned_at_90"`
}

// Clone returns a deep copy of the snapshot
func (s *LedgerSnapshot) Clone() *LedgerSnapshot {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Current = s.Current.clone()
	cp.History = make([]DailyUsage, len(s.History))
	for i, d := range s.History {
		cp.History[i] = d.clone()
	}
	return &cp
}
