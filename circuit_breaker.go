package govfetch

import (
	"sync"
	"time"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerState is an observable snapshot of one breaker.
type CircuitBreakerState struct {
	State           CircuitState
	FailureCount    int
	SuccessCount    int
	LastFailureAt   time.Time
	ResetAt         time.Time
	BlockedRequests uint64
}

// CircuitBreaker tracks downstream health for one service. Closed passes
// calls through and counts consecutive failures; open rejects until
// resetAt; half-open admits up to HalfOpenRequests concurrent probes and
// closes after that many successes. A mutex guards the whole machine so
// probe accounting and transitions stay consistent under concurrency.
type CircuitBreaker struct {
	mu          sync.Mutex
	config      CircuitBreakerConfig
	state       CircuitState
	failures    int
	successes   int
	probes      int
	lastFailure time.Time
	resetAt     time.Time
	blocked     uint64
	nowFunc     func() time.Time
}

// NewCircuitBreaker creates a breaker with zero config fields defaulted.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		config:  config.withDefaults(),
		state:   StateClosed,
		nowFunc: time.Now,
	}
}

// Allow reports whether a call may proceed. The first admission at or after
// resetAt flips an open breaker to half-open and counts as a probe.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if !cb.nowFunc().Before(cb.resetAt) {
			cb.state = StateHalfOpen
			cb.successes = 0
			cb.probes = 1
			return true
		}
		cb.blocked++
		return false
	case StateHalfOpen:
		if cb.probes < cb.config.HalfOpenRequests {
			cb.probes++
			return true
		}
		cb.blocked++
		return false
	default:
		cb.blocked++
		return false
	}
}

// RecordSuccess settles a successful call. In closed state it clears the
// consecutive-failure count; in half-open it books the probe and closes the
// breaker once HalfOpenRequests probes have succeeded.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		if cb.probes > 0 {
			cb.probes--
		}
		cb.successes++
		if cb.successes >= cb.config.HalfOpenRequests {
			cb.state = StateClosed
			cb.failures = 0
			cb.successes = 0
			cb.probes = 0
		}
	case StateOpen:
		// A probe admitted before a sibling probe reopened the circuit.
		if cb.probes > 0 {
			cb.probes--
		}
	}
}

// RecordFailure settles a failed call. Reaching FailureThreshold in closed
// state or any probe failure in half-open opens the circuit and recomputes
// resetAt.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.nowFunc()
	cb.lastFailure = now

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.state = StateOpen
			cb.resetAt = now.Add(cb.config.ResetTimeout)
		}
	case StateHalfOpen:
		if cb.probes > 0 {
			cb.probes--
		}
		cb.failures++
		cb.successes = 0
		cb.state = StateOpen
		cb.resetAt = now.Add(cb.config.ResetTimeout)
	case StateOpen:
		cb.failures++
		if cb.probes > 0 {
			cb.probes--
		}
	}
}

// State returns a consistent snapshot for reporting.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerState{
		State:           cb.state,
		FailureCount:    cb.failures,
		SuccessCount:    cb.successes,
		LastFailureAt:   cb.lastFailure,
		ResetAt:         cb.resetAt,
		BlockedRequests: cb.blocked,
	}
}

// Reset forces the breaker closed with every counter zeroed, for
// operational override.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
	cb.probes = 0
	cb.blocked = 0
	cb.lastFailure = time.Time{}
	cb.resetAt = time.Time{}
}
