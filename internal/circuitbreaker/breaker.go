// Package circuitbreaker guards repeatedly failing remote endpoints. After a
// run of consecutive failures the endpoint's circuit opens and calls fail
// fast until a cooldown passes. The endpoint then serves one trial call at a
// time (half-open) and must complete several in a row before the circuit
// closes again; a single stray success after an outage is not proof of
// recovery.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// trialSuccessesToClose is how many consecutive successful trial calls a
// recovering endpoint must serve before its circuit closes again.
const trialSuccessesToClose = 2

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

type endpointState struct {
	state               state
	consecutiveFailures int
	trialSuccesses      int
	trialInFlight       bool
	openedAt            time.Time
}

// CircuitBreaker tracks failure runs per endpoint key. Keys are opaque;
// callers pick the granularity (host, base URL, container).
type CircuitBreaker struct {
	mu        sync.Mutex
	states    map[string]*endpointState
	threshold int
	cooldown  time.Duration
	clock     func() time.Time
}

func New(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		states:    make(map[string]*endpointState),
		threshold: threshold,
		cooldown:  cooldown,
		clock:     time.Now,
	}
}

// WithClock overrides the time source.
func (cb *CircuitBreaker) WithClock(clock func() time.Time) *CircuitBreaker {
	cb.clock = clock
	return cb
}

// Allow reports whether a call to the endpoint may proceed. Returns
// ErrCircuitOpen while the endpoint is cooling down, and while a half-open
// trial call is already in flight.
func (cb *CircuitBreaker) Allow(endpoint string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[endpoint]
	if !ok {
		return nil
	}

	switch s.state {
	case stateClosed:
		return nil
	case stateOpen:
		if cb.clock().Sub(s.openedAt) >= cb.cooldown {
			s.state = stateHalfOpen
			s.trialSuccesses = 0
			s.trialInFlight = true
			return nil
		}
		return ErrCircuitOpen
	case stateHalfOpen:
		if s.trialInFlight {
			return ErrCircuitOpen
		}
		s.trialInFlight = true
		return nil
	default:
		return nil
	}
}

func (cb *CircuitBreaker) RecordSuccess(endpoint string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[endpoint]
	if !ok {
		return
	}

	if s.state == stateHalfOpen {
		s.trialInFlight = false
		s.trialSuccesses++
		if s.trialSuccesses < trialSuccessesToClose {
			return
		}
	}
	s.state = stateClosed
	s.consecutiveFailures = 0
	s.trialSuccesses = 0
}

func (cb *CircuitBreaker) RecordFailure(endpoint string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[endpoint]
	if !ok {
		s = &endpointState{}
		cb.states[endpoint] = s
	}

	// Any failure during recovery reopens immediately; the cooldown starts
	// over.
	if s.state == stateHalfOpen {
		s.state = stateOpen
		s.openedAt = cb.clock()
		s.trialInFlight = false
		s.trialSuccesses = 0
		return
	}

	s.consecutiveFailures++
	if s.consecutiveFailures >= cb.threshold {
		s.state = stateOpen
		s.openedAt = cb.clock()
	}
}
