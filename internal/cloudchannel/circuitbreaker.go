package cloudchannel

import (
	"sync"
	"time"
)

// breakerState mirrors the standard closed/open/half-open circuit breaker
// states, used here to hold the cloud channel to one rejoin attempt per
// cooldown window once joins keep failing, rather than hammering the
// identity provider. The breaker never enters breakerHalfOpen itself; an
// open breaker admits an attempt once the cooldown since the last failure
// has passed.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// circuitBreaker gates join attempts after repeated failures, requiring a
// cooldown before allowing the next attempt.
type circuitBreaker struct {
	failureThreshold int
	cooldown         time.Duration

	mu              sync.Mutex
	state           breakerState
	failureCount    int
	lastFailureTime time.Time
}

func newCircuitBreaker(failureThreshold int, cooldown time.Duration) *circuitBreaker {
	return &circuitBreaker{failureThreshold: failureThreshold, cooldown: cooldown, state: breakerClosed}
}

// Allow reports whether a join attempt may proceed right now.
func (cb *circuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case breakerClosed, breakerHalfOpen:
		return true
	case breakerOpen:
		if time.Since(cb.lastFailureTime) > cb.cooldown {
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess resets the breaker to closed.
func (cb *circuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = breakerClosed
	cb.failureCount = 0
}

// RecordFailure counts a failed attempt, tripping the breaker open once
// failureThreshold is reached. It reports whether this failure is the one
// that tripped the breaker, so callers can count trips without polling
// state separately.
func (cb *circuitBreaker) RecordFailure() (tripped bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = time.Now()
	if cb.failureCount >= cb.failureThreshold && cb.state != breakerOpen {
		cb.state = breakerOpen
		return true
	}
	return false
}
