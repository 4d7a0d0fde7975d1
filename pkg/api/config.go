package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/smartsports/sportsgate/pkg/sportsgate"
)

// BudgetReporter exposes the daily budget state. *sportsgate.BudgetTracker implements it.
type BudgetReporter interface {
	Status(ctx context.Context) sportsgate.BudgetStatus
	Stats(ctx context.Context) sportsgate.BudgetStats
}

// ContextFetcher assembles prediction contexts. *sportsgate.Fetcher implements it.
type ContextFetcher interface {
	FetchPredictionContext(ctx context.Context, req sportsgate.MatchRequest) *sportsgate.PredictionContext
}

// Config holds configuration for the observability API handler
type Config struct {
	// Budget is the daily budget tracker (required)
	Budget BudgetReporter

	// Cache is the shared response cache (optional; /cache/stats reports zeros without it)
	Cache sportsgate.Cache

	// Fetcher serves /context (optional; the route answers 503 without it)
	Fetcher ContextFetcher

	// OnError handles errors (bad request, unavailable)
	// If nil, uses default error handling
	OnError func(http.ResponseWriter, *http.Request, error)

	// Logger is used for structured logging (default: NoopLogger)
	Logger sportsgate.Logger
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Budget == nil {
		return fmt.Errorf("budget is required")
	}
	return nil
}

// NewHandler creates a new API handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Cache == nil {
		config.Cache = sportsgate.NewNoopCache()
	}
	if config.Logger == nil {
		config.Logger = &sportsgate.NoopLogger{}
	}
	return &Handler{
		config: config,
	}, nil
}
