// Package traffic keeps a sliding window of upstream fetch outcomes so the
// health endpoint can report a degraded upstream without querying Prometheus.
package traffic

import (
	"sync"
	"time"
)

var defaultTracker Tracker

// RecordSuccess records a successful upstream fetch.
func RecordSuccess() {
	defaultTracker.RecordSuccess()
}

// RecordError records a failed upstream fetch (network error, timeout,
// breaker-open skip counts separately and is not recorded here).
func RecordError() {
	defaultTracker.RecordError()
}

// ErrorRate returns (errorCount, totalCount) within the window ending at now.
func ErrorRate(window time.Duration) (errors, total int) {
	return defaultTracker.ErrorRate(window)
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Tracker maintains sliding windows of outcome timestamps.
type Tracker struct {
	mu        sync.Mutex
	successes []time.Time
	errors    []time.Time
}

// RecordSuccess records a successful fetch at the current time.
func (t *Tracker) RecordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	t.successes = append(t.successes, now)
	t.pruneLocked(now)
}

// RecordError records a failed fetch at the current time.
func (t *Tracker) RecordError() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	t.errors = append(t.errors, now)
	t.pruneLocked(now)
}

// ErrorRate returns (errorCount, totalCount) within the window ending at now.
func (t *Tracker) ErrorRate(window time.Duration) (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().Add(-window)
	errs := countSince(t.errors, cutoff)
	succ := countSince(t.successes, cutoff)
	return errs, errs + succ
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successes = nil
	t.errors = nil
}

// pruneLocked drops timestamps older than an hour; no caller asks for a
// longer window and unbounded growth would leak.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-time.Hour)
	t.successes = dropBefore(t.successes, cutoff)
	t.errors = dropBefore(t.errors, cutoff)
}

func dropBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return times
	}
	return append(times[:0:0], times[i:]...)
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for i := len(times) - 1; i >= 0; i-- {
		if times[i].Before(cutoff) {
			break
		}
		n++
	}
	return n
}
