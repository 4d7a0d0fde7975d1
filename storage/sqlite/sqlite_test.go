package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartsports/sportsgate/pkg/sportsgate"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func snapshot(version int64, calls int) *sportsgate.LedgerSnapshot {
	return &sportsgate.LedgerSnapshot{
		Version: version,
		Tier:    sportsgate.TierFree,
		Current: sportsgate.DailyUsage{
			Date:            "2025-03-01",
			TotalCalls:      calls,
			CallsByCategory: map[string]int{"standings": calls},
			Tier:            sportsgate.TierFree,
		},
		WarnedAt80: calls >= 80,
	}
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestStorage_LedgerRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	got, err := s.LoadLedger(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.SaveLedger(ctx, snapshot(1, 85)))
	got, err = s.LoadLedger(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 85, got.Current.TotalCalls)
	assert.True(t, got.WarnedAt80)
}

func TestStorage_IgnoresStaleVersion(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SaveLedger(ctx, snapshot(3, 30)))
	require.NoError(t, s.SaveLedger(ctx, snapshot(2, 20)))
	require.NoError(t, s.SaveLedger(ctx, snapshot(3, 31)))

	got, err := s.LoadLedger(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version)
	assert.Equal(t, 30, got.Current.TotalCalls)

	require.NoError(t, s.SaveLedger(ctx, snapshot(4, 40)))
	got, err = s.LoadLedger(ctx)
	require.NoError(t, err)
	assert.Equal(t, 40, got.Current.TotalCalls)
}

func TestStorage_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveLedger(ctx, snapshot(1, 9)))
	require.NoError(t, s.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.LoadLedger(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, got.Current.TotalCalls)
}

func TestStorage_BackingBudgetTracker(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	day := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := timeSourceFunc(func() time.Time { return day })

	tracker, err := sportsgate.NewBudgetTracker(&sportsgate.BudgetConfig{
		Store: s, TimeSource: clock, Location: time.UTC,
	})
	require.NoError(t, err)
	require.NoError(t, tracker.Restore(ctx))
	for i := 0; i < 3; i++ {
		tracker.RecordCall(ctx, sportsgate.CategoryForm, false)
	}

	restored, err := sportsgate.NewBudgetTracker(&sportsgate.BudgetConfig{
		Store: s, TimeSource: clock, Location: time.UTC,
	})
	require.NoError(t, err)
	require.NoError(t, restored.Restore(ctx))

	status := restored.Status(ctx)
	assert.Equal(t, 3, status.CallsUsed)
	assert.Equal(t, 3, status.CallsByCategory["form"])
}

type timeSourceFunc func() time.Time

func (f timeSourceFunc) Now(context.Context) (time.Time, error) { return f(), nil }
