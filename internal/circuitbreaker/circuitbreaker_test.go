package circuitbreaker

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

// TestCircuitBreaker_OpensAfterThreshold verifies that the breaker opens once
// the consecutive-failure count reaches the configured threshold and refuses
// calls while within the cooldown window.
func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := New(Config{FailureThreshold: 3, Cooldown: time.Minute, Clock: clock})

	for i := 0; i < 3; i++ {
		if !cb.Allow() {
			t.Fatalf("Allow() = false before threshold (failure %d)", i)
		}
		cb.RecordFailure()
	}

	if cb.State() != StateOpen {
		t.Fatalf("State() = %v after %d failures, want open", cb.State(), 3)
	}
	if cb.Allow() {
		t.Error("Allow() = true while open within cooldown, want false")
	}
}

// TestCircuitBreaker_SuccessResetsCounter verifies that an intervening
// success resets the consecutive-failure count.
func TestCircuitBreaker_SuccessResetsCounter(t *testing.T) {
	cb := New(Config{FailureThreshold: 3, Cooldown: time.Minute, Clock: clockwork.NewFakeClock()})

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed (counter should have reset)", cb.State())
	}
}

// TestCircuitBreaker_HalfOpenProbe verifies that after the cooldown elapses a
// single probe is admitted, concurrent callers are refused until its outcome
// is recorded, and a successful probe closes the circuit.
func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := New(Config{FailureThreshold: 1, Cooldown: time.Minute, Clock: clock})

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}

	clock.Advance(61 * time.Second)

	if !cb.Allow() {
		t.Fatal("Allow() = false after cooldown, want probe admitted")
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("State() = %v, want half_open", cb.State())
	}
	if cb.Allow() {
		t.Error("Allow() = true while probe in flight, want false")
	}

	cb.RecordSuccess()
	if cb.State() != StateClosed {
		t.Errorf("State() = %v after probe success, want closed", cb.State())
	}
	if !cb.Allow() {
		t.Error("Allow() = false after circuit closed")
	}
}

// TestCircuitBreaker_ProbeFailureReopens verifies that a failed half-open
// probe reopens the circuit for another full cooldown.
func TestCircuitBreaker_ProbeFailureReopens(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := New(Config{FailureThreshold: 1, Cooldown: time.Minute, Clock: clock})

	cb.RecordFailure()
	clock.Advance(61 * time.Second)
	if !cb.Allow() {
		t.Fatal("probe not admitted after cooldown")
	}
	cb.RecordFailure()

	if cb.State() != StateOpen {
		t.Fatalf("State() = %v after probe failure, want open", cb.State())
	}
	if cb.Allow() {
		t.Error("Allow() = true immediately after reopen, want false")
	}

	clock.Advance(61 * time.Second)
	if !cb.Allow() {
		t.Error("Allow() = false after second cooldown, want probe admitted")
	}
}

// TestCircuitBreaker_StateChangeHook verifies transitions are reported.
func TestCircuitBreaker_StateChangeHook(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var transitions []string
	cb := New(Config{
		FailureThreshold: 1,
		Cooldown:         time.Minute,
		Clock:            clock,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	cb.RecordFailure()
	clock.Advance(61 * time.Second)
	cb.Allow()
	cb.RecordSuccess()

	want := []string{"closed->open", "open->half_open", "half_open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transitions[%d] = %q, want %q", i, transitions[i], want[i])
		}
	}
}
