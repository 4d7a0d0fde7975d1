package sportsgate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func failing(_ context.Context) error { return errors.New("fail") }

func succeeding(_ context.Context) error { return nil }

func TestDefaultCircuitBreaker(t *testing.T) {
	threshold := 3
	timeout := 100 * time.Millisecond
	var mu sync.Mutex
	var lastState CircuitBreakerState
	cb := NewDefaultCircuitBreaker(threshold, timeout, func(state CircuitBreakerState) {
		mu.Lock()
		lastState = state
		mu.Unlock()
	})
	observed := func() CircuitBreakerState {
		mu.Lock()
		defer mu.Unlock()
		return lastState
	}

	ctx := context.Background()

	// Initial state: Closed
	assert.Equal(t, StateClosed, cb.State())

	for i := 0; i < threshold-1; i++ {
		assert.Error(t, cb.Execute(ctx, failing))
		assert.Equal(t, StateClosed, cb.State())
	}

	// Next failure should open the circuit
	assert.Error(t, cb.Execute(ctx, failing))
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, StateOpen, observed())

	// When open, Execute should fail fast without running fn
	ran := false
	err := cb.Execute(ctx, func(_ context.Context) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, ran)

	time.Sleep(timeout + 10*time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	// Successful probe closes the circuit
	assert.NoError(t, cb.Execute(ctx, succeeding))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, StateClosed, observed())

	for i := 0; i < threshold; i++ {
		_ = cb.Execute(ctx, failing)
	}
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(timeout + 10*time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	// Failed probe re-opens it
	err = cb.Execute(ctx, failing)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_IgnoresNonUpstreamErrors(t *testing.T) {
	cb := NewDefaultCircuitBreaker(1, time.Minute, nil)
	ctx := context.Background()

	for _, err := range []error{ErrEmptyPayload, ErrTeamUnresolved, context.Canceled} {
		got := cb.Execute(ctx, func(_ context.Context) error { return err })
		assert.ErrorIs(t, got, err)
		assert.Equal(t, StateClosed, cb.State())
	}

	_ = cb.Execute(ctx, func(_ context.Context) error { return context.DeadlineExceeded })
	assert.Equal(t, StateOpen, cb.State(), "a timeout counts as an upstream failure")
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewDefaultCircuitBreaker(0, 0, nil)
	assert.Equal(t, 5, cb.failureThreshold)
	assert.Equal(t, 30*time.Second, cb.resetTimeout)
}

func TestCircuitBreaker_ConcurrentExecute(t *testing.T) {
	cb := NewDefaultCircuitBreaker(3, 100*time.Millisecond, nil)

	ctx := context.Background()
	const goroutines = 100
	errChan := make(chan error, goroutines)

	for i := 0; i < goroutines; i++ {
		go func(id int) {
			errChan <- cb.Execute(ctx, func(_ context.Context) error {
				if id%10 == 0 {
					return errors.New("test error")
				}
				return nil
			})
		}(i)
	}

	for i := 0; i < goroutines; i++ {
		err := <-errChan
		if err != nil && !errors.Is(err, ErrCircuitOpen) && err.Error() != "test error" {
			t.Errorf("Unexpected error from concurrent Execute %d: %v", i, err)
		}
	}
}
