package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartsports/sportsgate/pkg/sportsgate"
)

// setupTestRedis creates a Redis client for testing
// Requires Redis running on localhost:6379
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use DB 15 for testing
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	// Clear test database
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test database: %v", err)
	}

	return client
}

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		client     redis.UniversalClient
		config     Config
		wantErr    bool
		wantPrefix string
	}{
		{
			name:    "nil client",
			client:  nil,
			config:  DefaultConfig(),
			wantErr: true,
		},
		{
			name:       "valid client with default config",
			client:     redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
			config:     DefaultConfig(),
			wantPrefix: "sportsgate:",
		},
		{
			name:       "custom prefix",
			client:     redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
			config:     Config{KeyPrefix: "test:", LedgerTTL: time.Hour},
			wantPrefix: "test:",
		},
		{
			name:       "empty key prefix uses default",
			client:     redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
			config:     Config{},
			wantPrefix: "sportsgate:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, err := New(tt.client, tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if storage.config.KeyPrefix != tt.wantPrefix {
				t.Errorf("KeyPrefix = %q, want %q", storage.config.KeyPrefix, tt.wantPrefix)
			}
			if storage.ledgerKey() != tt.wantPrefix+"ledger" {
				t.Errorf("ledgerKey() = %q", storage.ledgerKey())
			}
		})
	}
}

func snapshot(version int64, calls int) *sportsgate.LedgerSnapshot {
	return &sportsgate.LedgerSnapshot{
		Version: version,
		Tier:    sportsgate.TierFree,
		Current: sportsgate.DailyUsage{
			Date:            "2025-03-01",
			TotalCalls:      calls,
			CallsByCategory: map[string]int{string(sportsgate.CategoryStandings): calls},
			Tier:            sportsgate.TierFree,
		},
		History: []sportsgate.DailyUsage{{Date: "2025-02-28", TotalCalls: 12}},
	}
}

func TestStorage_LedgerRoundTrip(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	storage, err := New(client, DefaultConfig())
	require.NoError(t, err)
	ctx := context.Background()

	got, err := storage.LoadLedger(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "empty store returns nil")

	require.NoError(t, storage.SaveLedger(ctx, snapshot(1, 4)))
	got, err = storage.LoadLedger(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, 4, got.Current.TotalCalls)
	assert.Equal(t, 4, got.Current.CallsByCategory[string(sportsgate.CategoryStandings)])
	assert.Len(t, got.History, 1)
}

func TestStorage_IgnoresStaleVersion(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	storage, err := New(client, DefaultConfig())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, storage.SaveLedger(ctx, snapshot(5, 10)))
	require.NoError(t, storage.SaveLedger(ctx, snapshot(3, 2)))
	require.NoError(t, storage.SaveLedger(ctx, snapshot(5, 7)))

	got, err := storage.LoadLedger(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Version)
	assert.Equal(t, 10, got.Current.TotalCalls)

	require.NoError(t, storage.SaveLedger(ctx, snapshot(6, 11)))
	got, err = storage.LoadLedger(ctx)
	require.NoError(t, err)
	assert.Equal(t, 11, got.Current.TotalCalls)
}

func TestStorage_NilSnapshot(t *testing.T) {
	storage, err := New(redis.NewClient(&redis.Options{Addr: "localhost:6379"}), DefaultConfig())
	require.NoError(t, err)
	assert.NoError(t, storage.SaveLedger(context.Background(), nil))
}

func TestStorage_LedgerTTL(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	storage, err := New(client, Config{LedgerTTL: time.Hour})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, storage.SaveLedger(ctx, snapshot(1, 1)))
	ttl, err := client.TTL(ctx, storage.ledgerKey()).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 59*time.Minute)
}

func TestStorage_BackingBudgetTracker(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	storage, err := New(client, DefaultConfig())
	require.NoError(t, err)
	ctx := context.Background()

	tracker, err := sportsgate.NewBudgetTracker(&sportsgate.BudgetConfig{
		Tier:       "free",
		Location:   time.UTC,
		Store:      storage,
		TimeSource: storage,
	})
	require.NoError(t, err)
	require.NoError(t, tracker.Restore(ctx))

	tracker.RecordCall(ctx, sportsgate.CategoryStandings, false)
	tracker.RecordCall(ctx, sportsgate.CategoryForm, false)

	require.Eventually(t, func() bool {
		snap, err := storage.LoadLedger(ctx)
		return err == nil && snap != nil && snap.Current.TotalCalls == 2
	}, 2*time.Second, 20*time.Millisecond)

	restored, err := sportsgate.NewBudgetTracker(&sportsgate.BudgetConfig{
		Tier:       "free",
		Location:   time.UTC,
		Store:      storage,
		TimeSource: storage,
	})
	require.NoError(t, err)
	require.NoError(t, restored.Restore(ctx))
	assert.Equal(t, 2, restored.Status(ctx).CallsUsed)
}
