// Package sqlite provides a single-node SQLite implementation of the
// sportsgate.LedgerStore interface, for deployments without Redis or Postgres.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/smartsports/sportsgate/pkg/sportsgate"
)

const createLedgerTable = `
CREATE TABLE IF NOT EXISTS budget_ledger (
	id         TEXT PRIMARY KEY,
	version    INTEGER NOT NULL,
	data       BLOB NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Storage implements sportsgate.LedgerStore using an SQLite file
type Storage struct {
	db       *sql.DB
	ledgerID string
}

// New opens (or creates) the database at path. Use ":memory:" for tests.
func New(path string) (*Storage, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	// One connection: ":memory:" databases are per connection and SQLite serialises writers anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createLedgerTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger db: %w", err)
	}

	return &Storage{db: db, ledgerID: "default"}, nil
}

// LoadLedger implements sportsgate.LedgerStore
func (s *Storage) LoadLedger(ctx context.Context) (*sportsgate.LedgerSnapshot, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM budget_ledger WHERE id = ?`, s.ledgerID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}

	var snap sportsgate.LedgerSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal ledger: %w", err)
	}
	return &snap, nil
}

// SaveLedger implements sportsgate.LedgerStore
func (s *Storage) SaveLedger(ctx context.Context, snapshot *sportsgate.LedgerSnapshot) error {
	if snapshot == nil {
		return nil
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO budget_ledger (id, version, data, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE
		SET version = excluded.version, data = excluded.data, updated_at = CURRENT_TIMESTAMP
		WHERE budget_ledger.version < excluded.version`,
		s.ledgerID, snapshot.Version, data)
	if err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}
