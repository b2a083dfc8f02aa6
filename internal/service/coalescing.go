package service

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/aqi-alert-service/internal/models"
)

// inFlightFetch tracks a single upstream fetch that multiple callers may wait for.
type inFlightFetch struct {
	mu      sync.Mutex
	result  models.Reading
	err     error
	done    bool
	waiters []chan struct{} // closed to notify waiters when the result is ready
}

// fetchCoalescer collapses concurrent upstream fetches for the same city into
// one call, so a burst of fetches for an uncached city produces at most one
// network request.
type fetchCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightFetch
	timeout  time.Duration
}

func newFetchCoalescer(timeout time.Duration) *fetchCoalescer {
	return &fetchCoalescer{
		inFlight: make(map[string]*inFlightFetch),
		timeout:  timeout,
	}
}

// GetOrDo joins an in-flight fetch for key when one exists, otherwise starts
// fn and registers it. Waiting is bounded by the coalescer timeout and the
// caller's context.
func (fc *fetchCoalescer) GetOrDo(ctx context.Context, key string, fn func() (models.Reading, error)) (models.Reading, error) {
	fc.mu.Lock()
	req, exists := fc.inFlight[key]
	if !exists {
		req = &inFlightFetch{}
		fc.inFlight[key] = req
		fc.mu.Unlock()

		go func() {
			result, err := fn()

			req.mu.Lock()
			req.result = result
			req.err = err
			req.done = true
			waiters := req.waiters
			req.waiters = nil
			req.mu.Unlock()

			for _, notify := range waiters {
				close(notify)
			}

			fc.mu.Lock()
			delete(fc.inFlight, key)
			fc.mu.Unlock()
		}()

		return fc.wait(ctx, req)
	}
	fc.mu.Unlock()

	return fc.wait(ctx, req)
}

// wait blocks until req completes, the coalescer timeout fires, or ctx is done.
func (fc *fetchCoalescer) wait(ctx context.Context, req *inFlightFetch) (models.Reading, error) {
	notify := make(chan struct{})
	req.mu.Lock()
	if req.done {
		result, err := req.result, req.err
		req.mu.Unlock()
		return result, err
	}
	req.waiters = append(req.waiters, notify)
	req.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, fc.timeout)
	defer cancel()
	select {
	case <-notify:
		req.mu.Lock()
		result, err := req.result, req.err
		req.mu.Unlock()
		return result, err
	case <-waitCtx.Done():
		return models.Reading{}, waitCtx.Err()
	}
}
