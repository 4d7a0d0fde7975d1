// Package config loads the sportsgate service configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/smartsports/sportsgate/pkg/sportsgate"
)

// Ledger backends
const (
	LedgerMemory    = "memory"
	LedgerRedis     = "redis"
	LedgerPostgres  = "postgres"
	LedgerFirestore = "firestore"
	LedgerSQLite    = "sqlite"
	// LedgerTiered puts Redis in front of Postgres
	LedgerTiered = "tiered"
)

// Log formats
const (
	LogConsole = "console"
	LogJSON    = "json"
	LogZap     = "zap"
)

// Config holds all sportsgate configuration.
type Config struct {
	Listen   string         `yaml:"listen"`
	Log      LogConfig      `yaml:"log"`
	Cache    CacheConfig    `yaml:"cache"`
	Budget   BudgetConfig   `yaml:"budget"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Fetcher  FetcherConfig  `yaml:"fetcher"`
	Breaker  BreakerConfig  `yaml:"breaker"`
}

// LogConfig selects the logger.
// Format is "console" or "json" (zerolog) or "zap"; File enables rotation (zap only).
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// CacheConfig bounds the in-process response cache.
type CacheConfig struct {
	MaxEntries      int `yaml:"max_entries"`
	EvictionBatch   int `yaml:"eviction_batch"`
	CleanupInterval int `yaml:"cleanup_interval"`
}

// BudgetConfig selects the daily tier and where the ledger lives.
type BudgetConfig struct {
	Tier     string       `yaml:"tier"`
	Timezone string       `yaml:"timezone"`
	Ledger   LedgerConfig `yaml:"ledger"`
}

// LedgerConfig configures ledger persistence.
type LedgerConfig struct {
	Backend   string `yaml:"backend"`
	KeyPrefix string `yaml:"key_prefix"`
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
	// PostgresDSN is also the Cold store of the tiered backend
	PostgresDSN         string `yaml:"postgres_dsn"`
	FirestoreProject    string `yaml:"firestore_project"`
	FirestoreCollection string `yaml:"firestore_collection"`
	SQLitePath          string `yaml:"sqlite_path"`
}

// UpstreamConfig configures the API-Football client.
type UpstreamConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	RapidAPI    bool          `yaml:"rapidapi"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
}

// FetcherConfig configures context assembly.
type FetcherConfig struct {
	FormMatches    int           `yaml:"form_matches"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	TTLs           TTLConfig     `yaml:"ttls"`
}

// TTLConfig overrides per-category cache lifetimes.
type TTLConfig struct {
	Standings      time.Duration `yaml:"standings"`
	TeamStatistics time.Duration `yaml:"team_statistics"`
	Form           time.Duration `yaml:"form"`
	H2H            time.Duration `yaml:"h2h"`
	TeamIDs        time.Duration `yaml:"team_ids"`
}

// Breaker implementations
const (
	BreakerGobreaker = "gobreaker"
	BreakerBuiltin   = "builtin"
)

// BreakerConfig configures the upstream circuit breaker.
type BreakerConfig struct {
	Enabled             bool          `yaml:"enabled"`
	Kind                string        `yaml:"kind"`
	ConsecutiveFailures int           `yaml:"consecutive_failures"`
	OpenTimeout         time.Duration `yaml:"open_timeout"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	ttls := sportsgate.DefaultCategoryTTLs()
	return &Config{
		Listen: ":8080",
		Log: LogConfig{
			Level:      "info",
			Format:     LogConsole,
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Cache: CacheConfig{
			MaxEntries:      1000,
			EvictionBatch:   100,
			CleanupInterval: 100,
		},
		Budget: BudgetConfig{
			Tier: string(sportsgate.TierFree),
			Ledger: LedgerConfig{
				Backend:    LedgerMemory,
				KeyPrefix:  "sportsgate:",
				RedisAddr:  "localhost:6379",
				SQLitePath: "sportsgate.db",
			},
		},
		Upstream: UpstreamConfig{
			Timeout:     10 * time.Second,
			MaxAttempts: 3,
			RetryDelay:  time.Second,
		},
		Fetcher: FetcherConfig{
			FormMatches:    5,
			FetchTimeout:   10 * time.Second,
			RequestTimeout: 30 * time.Second,
			TTLs: TTLConfig{
				Standings:      ttls.Standings,
				TeamStatistics: ttls.TeamStatistics,
				Form:           ttls.Form,
				H2H:            ttls.H2H,
				TeamIDs:        ttls.TeamIDs,
			},
		},
		Breaker: BreakerConfig{
			Enabled:             true,
			Kind:                BreakerGobreaker,
			ConsecutiveFailures: 5,
			OpenTimeout:         30 * time.Second,
		},
	}
}

// Load reads a YAML config file over Default and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails fast on values the service cannot start with.
func (c *Config) Validate() error {
	if _, err := sportsgate.ParseTier(c.Budget.Tier); err != nil {
		return fmt.Errorf("budget.tier: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("budget.timezone: %w", err)
	}

	l := c.Budget.Ledger
	switch l.Backend {
	case LedgerMemory:
	case LedgerRedis:
		if l.RedisAddr == "" {
			return fmt.Errorf("budget.ledger.redis_addr is required for the redis backend")
		}
	case LedgerPostgres:
		if l.PostgresDSN == "" {
			return fmt.Errorf("budget.ledger.postgres_dsn is required for the postgres backend")
		}
	case LedgerTiered:
		if l.RedisAddr == "" || l.PostgresDSN == "" {
			return fmt.Errorf("budget.ledger.redis_addr and postgres_dsn are required for the tiered backend")
		}
	case LedgerFirestore:
		if l.FirestoreProject == "" {
			return fmt.Errorf("budget.ledger.firestore_project is required for the firestore backend")
		}
	case LedgerSQLite:
		if l.SQLitePath == "" {
			return fmt.Errorf("budget.ledger.sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("budget.ledger.backend: unknown backend %q", l.Backend)
	}

	switch c.Log.Format {
	case LogConsole, LogJSON, LogZap:
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	if c.Log.File != "" && c.Log.Format != LogZap {
		return fmt.Errorf("log.file requires log.format %q", LogZap)
	}

	if c.Breaker.Enabled && c.Breaker.Kind != BreakerGobreaker && c.Breaker.Kind != BreakerBuiltin {
		return fmt.Errorf("breaker.kind: unknown breaker %q", c.Breaker.Kind)
	}

	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be positive")
	}
	return nil
}

// Location returns the budget day boundary zone (time.Local when unset).
func (c *Config) Location() (*time.Location, error) {
	if c.Budget.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Budget.Timezone)
}

// CategoryTTLs converts the TTL section, keeping defaults for zero values.
func (c *Config) CategoryTTLs() sportsgate.CategoryTTLs {
	return sportsgate.CategoryTTLs{
		Standings:      c.Fetcher.TTLs.Standings,
		TeamStatistics: c.Fetcher.TTLs.TeamStatistics,
		Form:           c.Fetcher.TTLs.Form,
		H2H:            c.Fetcher.TTLs.H2H,
		TeamIDs:        c.Fetcher.TTLs.TeamIDs,
	}
}
