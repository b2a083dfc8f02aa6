package circuitbreaker

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// State is the circuit breaker state (Closed, Open, HalfOpen).
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker guards the upstream endpoint: it opens after a run of
// consecutive failures and, once the cooldown elapses, admits a single probe
// call in half-open state. The probe's success closes the circuit; its
// failure reopens it for another cooldown. Callers ask Allow before every
// upstream attempt and report the outcome with RecordSuccess/RecordFailure.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            State
	failureCount     int
	openedAt         time.Time
	probeInFlight    bool
	failureThreshold int
	cooldown         time.Duration
	clock            clockwork.Clock
	onStateChange    func(from, to State) // optional, for metrics
}

// Config holds circuit breaker parameters.
type Config struct {
	FailureThreshold int
	Cooldown         time.Duration
	Clock            clockwork.Clock
	OnStateChange    func(from, to State)
}

// New creates a CircuitBreaker with the given config.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: cfg.FailureThreshold,
		cooldown:         cfg.Cooldown,
		clock:            cfg.Clock,
		onStateChange:    cfg.OnStateChange,
	}
}

// Allow reports whether an upstream call may be attempted. While open and
// within the cooldown window it returns false without side effects. After the
// cooldown it transitions to half-open and admits exactly one probe; further
// callers are refused until the probe's outcome is recorded.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if cb.probeInFlight {
			return false
		}
		cb.probeInFlight = true
		return true
	default: // StateOpen
		if cb.clock.Since(cb.openedAt) < cb.cooldown {
			return false
		}
		cb.transition(StateHalfOpen)
		cb.probeInFlight = true
		return true
	}
}

// RecordSuccess resets the failure counter and closes the circuit after a
// successful probe.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	cb.probeInFlight = false
	if cb.state != StateClosed {
		cb.transition(StateClosed)
	}
}

// RecordFailure increments the consecutive-failure counter. Reaching the
// threshold, or failing the half-open probe, opens the circuit and records
// the open time.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.probeInFlight = false
	if cb.state == StateHalfOpen || (cb.state == StateClosed && cb.failureCount >= cb.failureThreshold) {
		cb.openedAt = cb.clock.Now()
		cb.failureCount = 0
		cb.transition(StateOpen)
	}
}

// State returns the current state (for metrics and health reporting).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// transition must be called with the mutex held.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	if cb.onStateChange != nil {
		cb.onStateChange(from, to)
	}
}
