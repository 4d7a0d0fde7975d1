// Package postgres provides a PostgreSQL implementation of the sportsgate.LedgerStore interface.
// The live ledger is a single versioned row; every day seen in a snapshot is
// also archived into budget_daily_usage for reporting beyond the tracker's 30-day window.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartsports/sportsgate/pkg/sportsgate"
)

const schema = `
CREATE TABLE IF NOT EXISTS budget_ledger (
	id         TEXT PRIMARY KEY,
	version    BIGINT NOT NULL,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS budget_daily_usage (
	ledger_id         TEXT NOT NULL,
	day               DATE NOT NULL,
	tier              TEXT NOT NULL,
	total_calls       INTEGER NOT NULL,
	calls_by_category JSONB NOT NULL,
	PRIMARY KEY (ledger_id, day)
);`

// Storage implements sportsgate.LedgerStore using PostgreSQL
type Storage struct {
	pool   *pgxpool.Pool
	config Config

	// stopCleanup cancels the background cleanup goroutine
	stopCleanup func()
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// LedgerID names the ledger row, so several deployments can share a database (default: "default")
	LedgerID string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// Cleanup configuration
	CleanupEnabled  bool
	CleanupInterval time.Duration // How often to run cleanup
	RetentionDays   int           // Archived days older than this are deleted
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		LedgerID:        "default",
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		CleanupEnabled:  true,
		CleanupInterval: 24 * time.Hour,
		RetentionDays:   365,
	}
}

// New creates a new PostgreSQL storage adapter and ensures the schema exists
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}
	if config.LedgerID == "" {
		config.LedgerID = "default"
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	cleanupCtx, cancel := context.WithCancel(context.Background())
	s := &Storage{
		pool:        pool,
		config:      config,
		stopCleanup: cancel,
	}

	if config.CleanupEnabled && config.CleanupInterval > 0 && config.RetentionDays > 0 {
		go s.startCleanup(cleanupCtx)
	}

	return s, nil
}

// Close stops the cleanup goroutine and closes the pool
func (s *Storage) Close() {
	if s.stopCleanup != nil {
		s.stopCleanup()
	}
	s.pool.Close()
}

// LoadLedger implements sportsgate.LedgerStore
func (s *Storage) LoadLedger(ctx context.Context) (*sportsgate.LedgerSnapshot, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM budget_ledger WHERE id = $1`, s.config.LedgerID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}

	var snap sportsgate.LedgerSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger: %w", err)
	}
	return &snap, nil
}

// SaveLedger implements sportsgate.LedgerStore. The row and the day archive
// are written in one transaction; a stale version writes nothing.
func (s *Storage) SaveLedger(ctx context.Context, snapshot *sportsgate.LedgerSnapshot) error {
	if snapshot == nil {
		return nil
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO budget_ledger (id, version, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE
		SET version = EXCLUDED.version, data = EXCLUDED.data, updated_at = now()
		WHERE budget_ledger.version < EXCLUDED.version`,
		s.config.LedgerID, snapshot.Version, data)
	if err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	days := make([]sportsgate.DailyUsage, 0, len(snapshot.History)+1)
	days = append(days, snapshot.History...)
	days = append(days, snapshot.Current)

	batch := &pgx.Batch{}
	for _, day := range days {
		byCategory, err := json.Marshal(day.CallsByCategory)
		if err != nil {
			return fmt.Errorf("failed to marshal usage for %s: %w", day.Date, err)
		}
		batch.Queue(`
			INSERT INTO budget_daily_usage (ledger_id, day, tier, total_calls, calls_by_category)
			VALUES ($1, $2::date, $3, $4, $5)
			ON CONFLICT (ledger_id, day) DO UPDATE
			SET tier = EXCLUDED.tier, total_calls = EXCLUDED.total_calls,
				calls_by_category = EXCLUDED.calls_by_category`,
			s.config.LedgerID, day.Date, string(day.Tier), day.TotalCalls, byCategory)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to archive daily usage: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit ledger: %w", err)
	}
	return nil
}

// DailyUsage returns archived days in [from, to], oldest first
func (s *Storage) DailyUsage(ctx context.Context, from, to time.Time) ([]sportsgate.DailyUsage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT to_char(day, 'YYYY-MM-DD'), tier, total_calls, calls_by_category
		FROM budget_daily_usage
		WHERE ledger_id = $1 AND day BETWEEN $2::date AND $3::date
		ORDER BY day`,
		s.config.LedgerID, from.Format(time.DateOnly), to.Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily usage: %w", err)
	}
	defer rows.Close()

	var out []sportsgate.DailyUsage
	for rows.Next() {
		var (
			day        sportsgate.DailyUsage
			tier       string
			byCategory []byte
		)
		if err := rows.Scan(&day.Date, &tier, &day.TotalCalls, &byCategory); err != nil {
			return nil, fmt.Errorf("failed to scan daily usage: %w", err)
		}
		day.Tier = sportsgate.Tier(tier)
		if err := json.Unmarshal(byCategory, &day.CallsByCategory); err != nil {
			return nil, fmt.Errorf("failed to unmarshal usage for %s: %w", day.Date, err)
		}
		out = append(out, day)
	}
	return out, rows.Err()
}

// Now implements sportsgate.TimeSource using the database clock
func (s *Storage) Now(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := s.pool.QueryRow(ctx, `SELECT now()`).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("failed to read database time: %w", err)
	}
	return now.UTC(), nil
}

func (s *Storage) startCleanup(ctx context.Context) {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Errors are retried on the next tick
			_ = s.Cleanup(ctx)
		}
	}
}

// Cleanup deletes archived days older than RetentionDays
func (s *Storage) Cleanup(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM budget_daily_usage
		WHERE ledger_id = $1 AND day < current_date - $2::int`,
		s.config.LedgerID, s.config.RetentionDays)
	if err != nil {
		return fmt.Errorf("failed to cleanup daily usage: %w", err)
	}
	return nil
}

// Ping checks the PostgreSQL connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
