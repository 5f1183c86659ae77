package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_StaysClosedOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker()

	for i := 0; i < 20; i++ {
		require.NoError(t, cb.Call(func() error { return nil }))
	}

	assert.Equal(t, BreakerClosed, cb.State())
}

func TestCircuitBreaker_OpensAfterFailureRate(t *testing.T) {
	cb := NewCircuitBreaker()
	boom := errors.New("upstream down")

	for i := 0; i < breakerMinRequests; i++ {
		_ = cb.Call(func() error { return boom })
	}

	assert.Equal(t, BreakerOpen, cb.State())
	assert.ErrorIs(t, cb.Call(func() error { return nil }), ErrCircuitOpen)
}

func TestCircuitBreaker_BelowMinRequestsDoesNotTrip(t *testing.T) {
	cb := NewCircuitBreaker()
	boom := errors.New("upstream down")

	for i := 0; i < breakerMinRequests-1; i++ {
		_ = cb.Call(func() error { return boom })
	}

	assert.Equal(t, BreakerClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker()
	boom := errors.New("upstream down")

	for i := 0; i < breakerMinRequests; i++ {
		_ = cb.Call(func() error { return boom })
	}
	require.Equal(t, BreakerOpen, cb.State())

	// pretend the cool-down elapsed
	cb.mu.Lock()
	cb.lastFailure = cb.lastFailure.Add(-2 * breakerOpenTimeout)
	cb.mu.Unlock()

	_ = cb.Call(func() error { return boom })
	assert.Equal(t, BreakerOpen, cb.State())
}

func TestCircuitBreaker_RecoversThroughHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker()
	boom := errors.New("upstream down")

	for i := 0; i < breakerMinRequests; i++ {
		_ = cb.Call(func() error { return boom })
	}
	require.Equal(t, BreakerOpen, cb.State())

	cb.mu.Lock()
	cb.lastFailure = cb.lastFailure.Add(-2 * breakerOpenTimeout)
	cb.mu.Unlock()

	for i := 0; i < breakerHalfOpenMax; i++ {
		require.NoError(t, cb.Call(func() error { return nil }))
	}

	assert.Equal(t, BreakerClosed, cb.State())
}
