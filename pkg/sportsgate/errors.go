package sportsgate

import "errors"

var (
	// ErrInvalidTier is returned for an unknown daily budget tier
	ErrInvalidTier = errors.New("invalid tier")

	// ErrInvalidRequestTier is returned for an unknown per-request tier
	ErrInvalidRequestTier = errors.New("invalid request tier")

	// ErrProviderRequired is returned when a fetcher is built without an upstream provider
	ErrProviderRequired = errors.New("upstream provider is required")

	// ErrBudgetRequired is returned when a fetcher is built without a budget tracker
	ErrBudgetRequired = errors.New("budget tracker is required")

	// ErrEmptyPayload is returned by providers when the upstream answered with no data
	ErrEmptyPayload = errors.New("empty upstream payload")

	// ErrTeamUnresolved is returned when a team name cannot be mapped to an upstream ID
	ErrTeamUnresolved = errors.New("team id unresolved")

	// ErrBudgetExhausted marks a fetch skipped because the daily budget refused it
	ErrBudgetExhausted = errors.New("daily api budget exhausted")
)
