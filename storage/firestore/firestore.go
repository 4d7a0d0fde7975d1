// Package firestore provides a Firestore implementation of the sportsgate.LedgerStore interface.
package firestore

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/smartsports/sportsgate/pkg/sportsgate"
)

// Storage implements sportsgate.LedgerStore using Google Cloud Firestore
type Storage struct {
	client     *firestore.Client
	collection string
	ledgerID   string
}

// Config holds Firestore storage configuration
type Config struct {
	// Collection is the Firestore collection holding ledger documents
	// Default: "sportsgate_budget"
	Collection string

	// LedgerID is the document ID of the ledger
	// Default: "default"
	LedgerID string
}

// New creates a new Firestore storage adapter
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	if config.Collection == "" {
		config.Collection = "sportsgate_budget"
	}
	if config.LedgerID == "" {
		config.LedgerID = "default"
	}

	return &Storage{
		client:     client,
		collection: config.Collection,
		ledgerID:   config.LedgerID,
	}, nil
}

// LoadLedger implements sportsgate.LedgerStore
func (s *Storage) LoadLedger(ctx context.Context) (*sportsgate.LedgerSnapshot, error) {
	snap, err := s.ledgerDoc().Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}
	if !snap.Exists() {
		return nil, nil
	}
	return decodeLedger(snap.Data())
}

// SaveLedger implements sportsgate.LedgerStore. The version check and the
// write share one transaction.
func (s *Storage) SaveLedger(ctx context.Context, snapshot *sportsgate.LedgerSnapshot) error {
	if snapshot == nil {
		return nil
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	doc := s.ledgerDoc()
	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		current, err := tx.Get(doc)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if current != nil && current.Exists() && getInt64(current.Data(), "version") >= snapshot.Version {
			return nil
		}
		return tx.Set(doc, map[string]interface{}{
			"version":   snapshot.Version,
			"date":      snapshot.Current.Date,
			"tier":      string(snapshot.Tier),
			"callsUsed": snapshot.Current.TotalCalls,
			"data":      string(data),
			"updatedAt": firestore.ServerTimestamp,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}
	return nil
}

func (s *Storage) ledgerDoc() *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(s.ledgerID)
}

func decodeLedger(data map[string]interface{}) (*sportsgate.LedgerSnapshot, error) {
	raw, _ := data["data"].(string)
	if raw == "" {
		return nil, fmt.Errorf("ledger document has no data")
	}
	var snap sportsgate.LedgerSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger: %w", err)
	}
	return &snap, nil
}

func getInt64(data map[string]interface{}, key string) int64 {
	switch v := data[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
