// Package redis provides a Redis implementation of the sportsgate.LedgerStore interface.
// Saves go through a Lua script so a stale snapshot never overwrites a newer one.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smartsports/sportsgate/pkg/sportsgate"
)

// Storage implements sportsgate.LedgerStore and sportsgate.TimeSource using Redis
type Storage struct {
	client redis.UniversalClient
	config Config
	save   *redis.Script
}

// Config holds Redis storage configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "sportsgate:")
	KeyPrefix string

	// LedgerTTL is the TTL for the ledger key (0 = no expiration)
	LedgerTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "sportsgate:",
		LedgerTTL: 0, // ledger doesn't expire
	}
}

// New creates a new Redis storage adapter
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = "sportsgate:"
	}

	return &Storage{
		client: client,
		config: config,
		save: redis.NewScript(`
			local current = redis.call('HGET', KEYS[1], 'version')
			if current and tonumber(current) >= tonumber(ARGV[1]) then
				return 0
			end
			redis.call('HSET', KEYS[1], 'version', ARGV[1], 'data', ARGV[2])
			local ttl = tonumber(ARGV[3])
			if ttl > 0 then
				redis.call('EXPIRE', KEYS[1], ttl)
			end
			return 1
		`),
	}, nil
}

// LoadLedger implements sportsgate.LedgerStore
func (s *Storage) LoadLedger(ctx context.Context) (*sportsgate.LedgerSnapshot, error) {
	data, err := s.client.HGet(ctx, s.ledgerKey(), "data").Bytes()
	if errors.Is(err, redis.Nil) {
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

// SaveLedger implements sportsgate.LedgerStore
func (s *Storage) SaveLedger(ctx context.Context, snapshot *sportsgate.LedgerSnapshot) error {
	if snapshot == nil {
		return nil
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	ttl := int64(s.config.LedgerTTL.Seconds())
	if err := s.save.Run(ctx, s.client, []string{s.ledgerKey()}, snapshot.Version, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}
	return nil
}

// Now implements sportsgate.TimeSource using the Redis server clock,
// so every instance sharing the ledger agrees on the day boundary.
func (s *Storage) Now(ctx context.Context) (time.Time, error) {
	t, err := s.client.Time(ctx).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read redis time: %w", err)
	}
	return t.UTC(), nil
}

func (s *Storage) ledgerKey() string {
	return s.config.KeyPrefix + "ledger"
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
