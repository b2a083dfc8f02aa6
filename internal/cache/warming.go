package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/aqi-alert-service/internal/models"
	"github.com/kjstillabower/aqi-alert-service/internal/observability"
)

// ReadingFetcher is implemented by the ingestion layer to fetch a reading for
// a city. Used by Warmer to avoid a circular dependency on the service package.
type ReadingFetcher interface {
	Fetch(ctx context.Context, city string) models.Reading
}

// Warmer pre-populates the cache by fetching readings for a list of cities.
type Warmer struct {
	fetcher ReadingFetcher
	logger  *zap.Logger
}

// NewWarmer creates a Warmer that uses the given fetcher and logger.
func NewWarmer(fetcher ReadingFetcher, logger *zap.Logger) *Warmer {
	return &Warmer{fetcher: fetcher, logger: logger}
}

// Warm fetches a reading for each city concurrently; the fetcher populates
// the cache as a side effect. Fetch never fails, so Warm only reports timing.
func (w *Warmer) Warm(ctx context.Context, cities []string) {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming cache", zap.Int("cities", len(cities)))
	}
	var wg sync.WaitGroup
	for _, city := range cities {
		wg.Add(1)
		go func(city string) {
			defer wg.Done()
			w.fetcher.Fetch(ctx, city)
		}(city)
	}
	wg.Wait()
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete", zap.Int("cities", len(cities)), zap.Float64("duration_seconds", duration))
	}
}
