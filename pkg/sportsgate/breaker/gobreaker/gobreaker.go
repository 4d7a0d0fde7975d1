// Package gobreaker adapts github.com/sony/gobreaker to sportsgate.CircuitBreaker.
package gobreaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/smartsports/sportsgate/pkg/sportsgate"
)

// Config configures the upstream circuit breaker
type Config struct {
	// Name identifies the breaker in state change callbacks (default: "upstream")
	Name string

	// ConsecutiveFailures trips the breaker (default: 5)
	ConsecutiveFailures uint32

	// OpenTimeout is how long the breaker stays open before probing (default: 30s)
	OpenTimeout time.Duration

	// HalfOpenRequests is how many probes are allowed while half-open (default: 1)
	HalfOpenRequests uint32

	// Interval clears the closed-state counts periodically (default: never)
	Interval time.Duration

	// Metrics records state changes (optional)
	Metrics sportsgate.Metrics

	// Logger logs state changes (optional)
	Logger sportsgate.Logger
}

// Breaker implements sportsgate.CircuitBreaker on top of gobreaker.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New creates a gobreaker-backed circuit breaker.
func New(config Config) *Breaker {
	if config.Name == "" {
		config.Name = "upstream"
	}
	if config.ConsecutiveFailures == 0 {
		config.ConsecutiveFailures = 5
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = 30 * time.Second
	}
	if config.HalfOpenRequests == 0 {
		config.HalfOpenRequests = 1
	}
	if config.Metrics == nil {
		config.Metrics = &sportsgate.NoopMetrics{}
	}
	if config.Logger == nil {
		config.Logger = &sportsgate.NoopLogger{}
	}

	threshold := config.ConsecutiveFailures
	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.HalfOpenRequests,
		Interval:    config.Interval,
		Timeout:     config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			state := toState(to)
			config.Metrics.RecordCircuitBreakerStateChange(string(state))
			config.Logger.Warn("upstream circuit breaker state changed",
				sportsgate.Field{Key: "breaker", Value: name},
				sportsgate.Field{Key: "from", Value: string(toState(from))},
				sportsgate.Field{Key: "to", Value: string(state)},
			)
		},
		IsSuccessful: func(err error) bool {
			return !sportsgate.IsUpstreamFailure(err)
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute implements sportsgate.CircuitBreaker
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return sportsgate.ErrCircuitOpen
	}
	return err
}

// State implements sportsgate.CircuitBreaker
func (b *Breaker) State() sportsgate.CircuitBreakerState {
	return toState(b.cb.State())
}

func toState(s gobreaker.State) sportsgate.CircuitBreakerState {
	switch s {
	case gobreaker.StateOpen:
		return sportsgate.StateOpen
	case gobreaker.StateHalfOpen:
		return sportsgate.StateHalfOpen
	default:
		return sportsgate.StateClosed
	}
}
