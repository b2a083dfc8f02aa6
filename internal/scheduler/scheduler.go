// Package scheduler drives the periodic fleet refresh: one fetch per
// monitored city on a bounded worker pool, feeding each result to the alert
// dispatcher, plus the daily retention cleanup.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/aqi-alert-service/internal/models"
	"github.com/kjstillabower/aqi-alert-service/internal/observability"
	"github.com/kjstillabower/aqi-alert-service/internal/store"
)

// Fetcher retrieves the current reading for a city. Implemented by the
// ingestion Monitor.
type Fetcher interface {
	Fetch(ctx context.Context, city string) models.Reading
}

// Evaluator receives each completed fetch for threshold evaluation.
// Implemented by the alert Dispatcher.
type Evaluator interface {
	EvaluateCity(ctx context.Context, city string, reading models.Reading)
}

// Config holds Refresher construction parameters.
type Config struct {
	Cities        []string
	Interval      time.Duration
	CycleTimeout  time.Duration // overall bound for one RefreshAll pass
	Workers       int           // concurrent per-city fetches; <=0 means 5
	Retention     time.Duration // readings older than this are deleted; <=0 disables cleanup
	CleanupEvery  time.Duration
	Clock         clockwork.Clock
	Logger        *zap.Logger
}

// Refresher periodically fans the fetcher out across the monitored fleet.
// A reentrancy guard skips a tick while the previous cycle still runs, so
// cycles never overlap.
type Refresher struct {
	fetcher      Fetcher
	evaluator    Evaluator
	store        store.Store
	cities       []string
	interval     time.Duration
	cycleTimeout time.Duration
	workers      int
	retention    time.Duration
	cleanupEvery time.Duration
	clock        clockwork.Clock
	logger       *zap.Logger
	running      atomic.Bool
}

// New creates a Refresher.
func New(fetcher Fetcher, evaluator Evaluator, st store.Store, cfg Config) *Refresher {
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = 5 * time.Minute
	}
	if cfg.CleanupEvery <= 0 {
		cfg.CleanupEvery = 24 * time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Refresher{
		fetcher:      fetcher,
		evaluator:    evaluator,
		store:        st,
		cities:       cfg.Cities,
		interval:     cfg.Interval,
		cycleTimeout: cfg.CycleTimeout,
		workers:      cfg.Workers,
		retention:    cfg.Retention,
		cleanupEvery: cfg.CleanupEvery,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
	}
}

// Run executes RefreshAll on the configured interval until ctx is done.
// The first cycle runs immediately.
func (r *Refresher) Run(ctx context.Context) error {
	r.RefreshAll(ctx)

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			r.RefreshAll(ctx)
		}
	}
}

// RefreshAll fetches every monitored city concurrently on the bounded pool
// and feeds each reading to the evaluator. Returns once all per-city work has
// completed or the cycle timeout has elapsed. When the previous cycle is
// still in flight the call is skipped.
func (r *Refresher) RefreshAll(ctx context.Context) {
	if !r.running.CompareAndSwap(false, true) {
		observability.RefreshSkippedTotal.Inc()
		r.logger.Warn("previous refresh cycle still running, skipping")
		return
	}
	defer r.running.Store(false)

	start := time.Now()
	r.logger.Info("refresh cycle starting", zap.Int("cities", len(r.cities)))

	cycleCtx, cancel := context.WithTimeout(ctx, r.cycleTimeout)
	defer cancel()

	g := new(errgroup.Group)
	g.SetLimit(r.workers)
	for _, city := range r.cities {
		city := city
		g.Go(func() error {
			defer func() {
				// A panicking city must not take down the rest of the cycle.
				if rec := recover(); rec != nil {
					r.logger.Error("refresh panicked", zap.String("city", city), zap.Any("panic", rec))
				}
			}()
			reading := r.fetcher.Fetch(cycleCtx, city)
			// Evaluate under the reading's own city: the fetcher normalizes
			// the configured spelling, and subscriber rows are keyed by the
			// normalized identity.
			r.evaluator.EvaluateCity(cycleCtx, reading.City, reading)
			return nil
		})
	}
	_ = g.Wait()

	duration := time.Since(start)
	observability.RefreshCyclesTotal.Inc()
	observability.RefreshCycleDurationSeconds.Observe(duration.Seconds())
	r.logger.Info("refresh cycle complete", zap.Int("cities", len(r.cities)), zap.Duration("duration", duration))
}

// RunCleanup deletes readings older than the retention window on the cleanup
// cadence until ctx is done. No-op when retention is disabled.
func (r *Refresher) RunCleanup(ctx context.Context) error {
	if r.retention <= 0 {
		return nil
	}
	ticker := r.clock.NewTicker(r.cleanupEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			cutoff := r.clock.Now().Add(-r.retention)
			deleted, err := r.store.DeleteReadingsBefore(ctx, cutoff)
			if err != nil {
				r.logger.Error("retention cleanup failed", zap.Error(err))
				continue
			}
			observability.RetentionDeletedTotal.Add(float64(deleted))
			r.logger.Info("retention cleanup complete", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
		}
	}
}
