package errors

import (
	"errors"
	"sync"
	"time"
)

const (
	breakerErrorThreshold = 0.5
	breakerMinRequests    = 10
	breakerOpenTimeout    = 30 * time.Second
	breakerHalfOpenMax    = 3
)

// BreakerState is the current circuit breaker state.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

// ErrCircuitOpen is returned while the breaker refuses calls after repeated failures.
var ErrCircuitOpen = errors.New("circuit breaker is open")

var errHalfOpenBusy = errors.New("too many probe requests in half-open state")

// CircuitBreaker trips after the failure rate of a dependency crosses the threshold
// and probes it again after a cool-down. Used around the image-processing API.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       BreakerState
	failures    int
	successes   int
	requests    int
	lastFailure time.Time
}

func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{state: BreakerClosed}
}

// Call runs fn unless the breaker is open, updating failure statistics from the result.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if fn == nil {
		return nil
	}

	cb.mu.Lock()
	if cb.state == BreakerOpen {
		if time.Since(cb.lastFailure) < breakerOpenTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.state = BreakerHalfOpen
		cb.resetLocked()
	}

	if cb.state == BreakerHalfOpen && cb.requests >= breakerHalfOpenMax {
		cb.mu.Unlock()
		return errHalfOpenBusy
	}
	cb.mu.Unlock()

	callErr := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.requests++
	if callErr != nil {
		cb.failures++
		if cb.state == BreakerHalfOpen {
			cb.tripLocked()
		} else if cb.requests >= breakerMinRequests &&
			float64(cb.failures)/float64(cb.requests) >= breakerErrorThreshold {
			cb.tripLocked()
		}
		return callErr
	}

	cb.successes++
	if cb.state == BreakerHalfOpen && cb.successes >= breakerHalfOpenMax {
		cb.state = BreakerClosed
		cb.resetLocked()
	}

	return nil
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) resetLocked() {
	cb.failures = 0
	cb.successes = 0
	cb.requests = 0
}

func (cb *CircuitBreaker) tripLocked() {
	cb.state = BreakerOpen
	cb.lastFailure = time.Now()
	cb.resetLocked()
}
