package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/firestore"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/smartsports/sportsgate/pkg/config"
	"github.com/smartsports/sportsgate/pkg/sportsgate"
	zaplogger "github.com/smartsports/sportsgate/pkg/sportsgate/logger/zap"
	zerologger "github.com/smartsports/sportsgate/pkg/sportsgate/logger/zerolog"
	firestorestore "github.com/smartsports/sportsgate/storage/firestore"
	"github.com/smartsports/sportsgate/storage/memory"
	"github.com/smartsports/sportsgate/storage/postgres"
	redisstore "github.com/smartsports/sportsgate/storage/redis"
	"github.com/smartsports/sportsgate/storage/sqlite"
	"github.com/smartsports/sportsgate/storage/tiered"
)

type rootOptions struct {
	configPath string
	logFormat  string
}

func (o *rootOptions) load() (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// newLogger builds the configured logger; the returned func flushes it.
func newLogger(cfg config.LogConfig, out io.Writer) (sportsgate.Logger, func(), error) {
	if cfg.Format == config.LogZap {
		var (
			zl  *zap.Logger
			err error
		)
		if cfg.File != "" {
			zl, err = zaplogger.NewFileLogger(zaplogger.FileConfig{
				Path:       cfg.File,
				Level:      cfg.Level,
				MaxSizeMB:  cfg.MaxSizeMB,
				MaxBackups: cfg.MaxBackups,
				MaxAgeDays: cfg.MaxAgeDays,
				Compress:   true,
			})
		} else {
			zl, err = newZapLogger(cfg.Level, out)
		}
		if err != nil {
			return nil, nil, err
		}
		l := zaplogger.NewLogger(zl)
		return l, func() { _ = l.Sync() }, nil
	}

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
		}
		level = parsed
	}
	w := out
	if cfg.Format == config.LogConsole {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	zl := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return zerologger.NewLogger(&zl), func() {}, nil
}

func newZapLogger(level string, out io.Writer) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %s: %w", level, err)
		}
		lvl = parsed
	}
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	return zap.New(zapcore.NewCore(encoder, zapcore.AddSync(out), lvl)), nil
}

// ledgerStore is a configured LedgerStore plus the func that releases it.
type ledgerStore struct {
	sportsgate.LedgerStore
	close func()
}

func openLedgerStore(ctx context.Context, cfg config.LedgerConfig, logger sportsgate.Logger) (*ledgerStore, error) {
	switch cfg.Backend {
	case config.LedgerMemory:
		return &ledgerStore{LedgerStore: memory.New(), close: func() {}}, nil

	case config.LedgerRedis:
		store, client, err := openRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &ledgerStore{LedgerStore: store, close: func() { _ = client.Close() }}, nil

	case config.LedgerPostgres:
		store, err := openPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &ledgerStore{LedgerStore: store, close: store.Close}, nil

	case config.LedgerTiered:
		hot, client, err := openRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		cold, err := openPostgres(ctx, cfg)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		store, err := tiered.New(tiered.Config{
			Hot:           hot,
			Cold:          cold,
			AsyncColdSync: true,
			AsyncErrorHandler: func(err error) {
				logger.Warn("cold ledger sync failed", sportsgate.Field{Key: "error", Value: err})
			},
		})
		if err != nil {
			cold.Close()
			_ = client.Close()
			return nil, err
		}
		return &ledgerStore{LedgerStore: store, close: func() {
			_ = store.Close()
			cold.Close()
			_ = client.Close()
		}}, nil

	case config.LedgerFirestore:
		client, err := firestore.NewClient(ctx, cfg.FirestoreProject)
		if err != nil {
			return nil, fmt.Errorf("create firestore client: %w", err)
		}
		store, err := firestorestore.New(client, firestorestore.Config{Collection: cfg.FirestoreCollection})
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return &ledgerStore{LedgerStore: store, close: func() { _ = client.Close() }}, nil

	case config.LedgerSQLite:
		store, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &ledgerStore{LedgerStore: store, close: func() { _ = store.Close() }}, nil
	}
	return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
}

func openRedis(ctx context.Context, cfg config.LedgerConfig) (*redisstore.Storage, goredis.UniversalClient, error) {
	client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}
	store, err := redisstore.New(client, redisstore.Config{KeyPrefix: cfg.KeyPrefix})
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return store, client, nil
}

func openPostgres(ctx context.Context, cfg config.LedgerConfig) (*postgres.Storage, error) {
	pc := postgres.DefaultConfig()
	pc.ConnectionString = cfg.PostgresDSN
	store, err := postgres.New(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("open postgres ledger: %w", err)
	}
	return store, nil
}

// newTracker builds the budget tracker over store and restores its ledger.
// Stores that expose a shared clock become the tracker's TimeSource.
func newTracker(ctx context.Context, cfg *config.Config, store sportsgate.LedgerStore,
	logger sportsgate.Logger, metrics sportsgate.Metrics) (*sportsgate.BudgetTracker, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	bc := &sportsgate.BudgetConfig{
		Tier:     cfg.Budget.Tier,
		Location: loc,
		Store:    store,
		Logger:   logger,
		Metrics:  metrics,
	}
	if ts, ok := store.(sportsgate.TimeSource); ok {
		bc.TimeSource = ts
	}
	tracker, err := sportsgate.NewBudgetTracker(bc)
	if err != nil {
		return nil, err
	}
	if err := tracker.Restore(ctx); err != nil {
		return nil, err
	}
	return tracker, nil
}
