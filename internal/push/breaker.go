package push

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// breaker stops calling a failing push endpoint for resetTimeout after
// maxFailures consecutive failures. One trial call is let through once the
// timeout elapses; its outcome closes or re-opens the circuit.
type breaker struct {
	maxFailures  int
	resetTimeout time.Duration
	clock        clock.Clock

	mu       sync.Mutex
	state    breakerState
	failures int
	openedAt time.Time
}

func newBreaker(maxFailures int, resetTimeout time.Duration, clk clock.Clock) *breaker {
	return &breaker{maxFailures: maxFailures, resetTimeout: resetTimeout, clock: clk}
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case stateOpen:
		if b.clock.Since(b.openedAt) < b.resetTimeout {
			return false
		}
		b.state = stateHalfOpen
		return true
	case stateHalfOpen:
		// A trial call is already in flight.
		return false
	default:
		return true
	}
}

func (b *breaker) record(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ok {
		b.failures = 0
		b.state = stateClosed
		return
	}
	b.failures++
	if b.state == stateHalfOpen || b.failures >= b.maxFailures {
		b.state = stateOpen
		b.openedAt = b.clock.Now()
	}
}

func (b *breaker) current() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
