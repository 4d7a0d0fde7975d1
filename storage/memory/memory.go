// Package memory provides an in-memory implementation of the sportsgate.LedgerStore interface.
// This implementation is primarily intended for testing and development.
package memory

import (
	"context"
	"sync"

	"github.com/smartsports/sportsgate/pkg/sportsgate"
)

// Storage implements sportsgate.LedgerStore in process memory
type Storage struct {
	mu       sync.RWMutex
	snapshot *sportsgate.LedgerSnapshot
	saves    int
}

// New creates a new in-memory storage adapter
func New() *Storage {
	return &Storage{}
}

// LoadLedger implements sportsgate.LedgerStore
func (s *Storage) LoadLedger(_ context.Context) (*sportsgate.LedgerSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Return a copy to prevent external mutations
	return s.snapshot.Clone(), nil
}

// SaveLedger implements sportsgate.LedgerStore
func (s *Storage) SaveLedger(_ context.Context, snapshot *sportsgate.LedgerSnapshot) error {
	if snapshot == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshot != nil && snapshot.Version <= s.snapshot.Version {
		return nil
	}
	s.snapshot = snapshot.Clone()
	s.saves++
	return nil
}

// Saves returns how many snapshots were accepted
func (s *Storage) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Clear removes the stored ledger (useful for testing)
func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = nil
	s.saves = 0
}
