// Package tiered provides a Hot/Cold ledger store: a fast shared store (Hot,
// e.g. Redis) in front of a durable one (Cold, e.g. Postgres or Firestore).
package tiered

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/smartsports/sportsgate/pkg/sportsgate"
)

// Config configures the tiered storage behavior
type Config struct {
	// Hot is the L1 store read first and written synchronously
	Hot sportsgate.LedgerStore

	// Cold is the L2 persistence store and the source of truth after a Hot loss
	Cold sportsgate.LedgerStore

	// AsyncColdSync enables non-blocking writes to Cold. If false, writes
	// are synchronous (slower but safer).
	AsyncColdSync bool

	// SyncBufferSize is the size of the buffered channel for async operations.
	// Default: 1000
	SyncBufferSize int

	// AsyncErrorHandler is called when a Cold write fails or is dropped.
	AsyncErrorHandler func(error)
}

// Storage implements sportsgate.LedgerStore over two stores:
// - Read-Through: Hot, then Cold with Hot repopulated
// - Write-Through: Hot synchronously, Cold synchronously or via the async queue
type Storage struct {
	hot  sportsgate.LedgerStore
	cold sportsgate.LedgerStore
	conf Config

	syncQueue chan func() error
	shutdown  chan struct{}
	wg        sync.WaitGroup
}

// New creates a new tiered storage adapter.
func New(config Config) (*Storage, error) {
	if config.Hot == nil || config.Cold == nil {
		return nil, errors.New("tiered storage: both hot and cold storage are required")
	}

	if config.SyncBufferSize <= 0 {
		config.SyncBufferSize = 1000
	}

	s := &Storage{
		hot:       config.Hot,
		cold:      config.Cold,
		conf:      config,
		syncQueue: make(chan func() error, config.SyncBufferSize),
		shutdown:  make(chan struct{}),
	}

	if config.AsyncColdSync {
		s.startWorker()
	}

	return s, nil
}

// Close drains pending Cold writes and stops the worker (if enabled).
func (s *Storage) Close() error {
	if s.conf.AsyncColdSync {
		select {
		case <-s.shutdown:
			// Already closed
		default:
			close(s.shutdown)
			s.wg.Wait()
		}
	}
	return nil
}

// startWorker runs the background synchronization loop.
// Jobs run sequentially so Cold sees versions in order.
func (s *Storage) startWorker() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case job := <-s.syncQueue:
				s.report(job())
			case <-s.shutdown:
				// Drain queue on shutdown (best effort)
				for {
					select {
					case job := <-s.syncQueue:
						s.report(job())
					default:
						return
					}
				}
			}
		}
	}()
}

func (s *Storage) report(err error) {
	if err != nil && s.conf.AsyncErrorHandler != nil {
		s.conf.AsyncErrorHandler(fmt.Errorf("tiered sync failed: %w", err))
	}
}

// LoadLedger implements sportsgate.LedgerStore with read-through strategy.
func (s *Storage) LoadLedger(ctx context.Context) (*sportsgate.LedgerSnapshot, error) {
	snap, err := s.hot.LoadLedger(ctx)
	if err == nil && snap != nil {
		return snap, nil
	}

	snap, err = s.cold.LoadLedger(ctx)
	if err != nil || snap == nil {
		return snap, err
	}

	// Read-repair; a failed fill only costs the next load a Cold read
	_ = s.hot.SaveLedger(ctx, snap)
	return snap, nil
}

// SaveLedger implements sportsgate.LedgerStore with write-through strategy.
// Only a Hot failure is returned; Cold failures go to AsyncErrorHandler.
func (s *Storage) SaveLedger(ctx context.Context, snapshot *sportsgate.LedgerSnapshot) error {
	if snapshot == nil {
		return nil
	}
	if err := s.hot.SaveLedger(ctx, snapshot); err != nil {
		return err
	}

	if !s.conf.AsyncColdSync {
		if err := s.cold.SaveLedger(ctx, snapshot); err != nil {
			s.report(err)
		}
		return nil
	}

	snap := snapshot.Clone()
	select {
	case s.syncQueue <- func() error {
		// Background context so the write outlives the request that caused it
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.cold.SaveLedger(ctx, snap)
	}:
	default:
		if s.conf.AsyncErrorHandler != nil {
			s.conf.AsyncErrorHandler(errors.New("tiered storage: sync queue full, dropping cold write"))
		}
	}
	return nil
}

// Now uses Hot store time for consistency (usually Redis TIME).
// Falls back to Cold if Hot doesn't support it, then local time.
func (s *Storage) Now(ctx context.Context) (time.Time, error) {
	if ts, ok := s.hot.(sportsgate.TimeSource); ok {
		return ts.Now(ctx)
	}
	if ts, ok := s.cold.(sportsgate.TimeSource); ok {
		return ts.Now(ctx)
	}
	return time.Now().UTC(), nil
}
