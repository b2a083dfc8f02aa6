package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/kjstillabower/aqi-alert-service/internal/aqi"
	"github.com/kjstillabower/aqi-alert-service/internal/cache"
	"github.com/kjstillabower/aqi-alert-service/internal/circuitbreaker"
	"github.com/kjstillabower/aqi-alert-service/internal/client"
	"github.com/kjstillabower/aqi-alert-service/internal/models"
	"github.com/kjstillabower/aqi-alert-service/internal/observability"
	"github.com/kjstillabower/aqi-alert-service/internal/store"
	"github.com/kjstillabower/aqi-alert-service/internal/traffic"
	"github.com/kjstillabower/aqi-alert-service/internal/validation"
)

// Monitor orchestrates reading retrieval through the fallback chain:
// cache, recent store row, upstream (behind the circuit breaker and the
// concurrency limiter), stale store row, synthesized fallback. Fetch never
// fails; under total upstream failure it degrades to synthesized data.
type Monitor struct {
	client         client.AirQualityClient
	cache          cache.Cache[models.Reading]
	store          store.Store
	breaker        *circuitbreaker.CircuitBreaker
	limiter        *semaphore.Weighted
	limiterTimeout time.Duration
	recencyWindow  time.Duration
	clock          clockwork.Clock
	coalescer      *fetchCoalescer
	stampede       *stampedeTracker
	synth          *Synthesizer
	logger         *zap.Logger
}

// Config holds Monitor construction parameters. Client, Cache, Store,
// Breaker, and Synth are required.
type Config struct {
	Client         client.AirQualityClient
	Cache          cache.Cache[models.Reading]
	Store          store.Store
	Breaker        *circuitbreaker.CircuitBreaker
	Synth          *Synthesizer
	MaxConcurrent   int64         // simultaneous outbound calls; <=0 means 10
	LimiterTimeout  time.Duration // max wait for a limiter slot
	RecencyWindow   time.Duration // store rows younger than this count as fresh
	CoalesceTimeout time.Duration // max wait on another caller's in-flight fetch
	Clock           clockwork.Clock
	Logger          *zap.Logger
}

// NewMonitor creates a Monitor with the provided dependencies.
func NewMonitor(cfg Config) *Monitor {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}
	if cfg.LimiterTimeout <= 0 {
		cfg.LimiterTimeout = 5 * time.Second
	}
	if cfg.CoalesceTimeout <= 0 {
		cfg.CoalesceTimeout = 10 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Monitor{
		client:         cfg.Client,
		cache:          cfg.Cache,
		store:          cfg.Store,
		breaker:        cfg.Breaker,
		limiter:        semaphore.NewWeighted(cfg.MaxConcurrent),
		limiterTimeout: cfg.LimiterTimeout,
		recencyWindow:  cfg.RecencyWindow,
		clock:          cfg.Clock,
		coalescer:      newFetchCoalescer(cfg.CoalesceTimeout),
		stampede:       newStampedeTracker(),
		synth:          cfg.Synth,
		logger:         cfg.Logger,
	}
}

// Fetch returns the current reading for city. Never returns an error: each
// layer of the fallback chain absorbs the failures of the one above it.
func (m *Monitor) Fetch(ctx context.Context, city string) models.Reading {
	key := NormalizeCity(city)
	start := time.Now()

	// 1. Live cache hit.
	if cached, ok, err := m.cache.Get(ctx, key); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
	} else if ok {
		observability.CacheHitsTotal.WithLabelValues("reading").Inc()
		observability.FetchesTotal.WithLabelValues(string(models.SourceCache)).Inc()
		m.debug("cache hit", zap.String("city", key))
		return cached
	}

	concurrentMisses := m.stampede.RecordMiss(key)
	defer m.stampede.RecordResolved(key)
	if concurrentMisses > 1 {
		observability.StampedeDetectedTotal.Inc()
		observability.StampedeConcurrency.Observe(float64(concurrentMisses))
	}

	// 2. Sufficiently recent store row.
	stored, haveStored, err := m.store.FindLatestByLocation(ctx, key)
	if err != nil {
		m.warn("store lookup failed", zap.String("city", key), zap.Error(err))
		haveStored = false
	}
	if haveStored && m.clock.Since(stored.Timestamp) <= m.recencyWindow {
		if err := m.cache.Set(ctx, key, stored); err != nil {
			observability.CacheErrorsTotal.WithLabelValues("set").Inc()
		}
		observability.FetchesTotal.WithLabelValues(string(models.SourceStore)).Inc()
		m.debug("recent store row", zap.String("city", key), zap.Duration("age", m.clock.Since(stored.Timestamp)))
		return stored
	}

	// 3+4. Upstream behind breaker and limiter, coalesced per city.
	if m.breaker.Allow() {
		coalesceStart := time.Now()
		reading, err := m.coalescer.GetOrDo(ctx, key, func() (models.Reading, error) {
			return m.fetchUpstream(ctx, key)
		})
		if err == nil {
			coalesceWait := time.Since(coalesceStart)
			observability.CoalescingWaitSeconds.Observe(coalesceWait.Seconds())
			observability.FetchesTotal.WithLabelValues(string(models.SourceUpstream)).Inc()
			m.debug("reading served", zap.String("city", key), zap.Int("aqi", reading.AQI), zap.Duration("duration", time.Since(start)))
			return reading
		}
		m.warn("upstream fetch failed", zap.String("city", key), zap.String("category", string(client.CategorizeError(err))), zap.Error(err))
	} else {
		observability.BreakerSkipsTotal.Inc()
		m.debug("breaker open, skipping upstream", zap.String("city", key))
	}

	// 5. Stale store row, any age.
	if haveStored {
		stale := stored
		stale.Stale = true
		stale.Source = models.SourceStale
		observability.FetchesTotal.WithLabelValues(string(models.SourceStale)).Inc()
		m.info("serving stale reading", zap.String("city", key), zap.Duration("age", m.clock.Since(stored.Timestamp)))
		return stale
	}

	// 6. Synthesized fallback.
	reading := m.synth.Synthesize(key)
	observability.FetchesTotal.WithLabelValues(string(models.SourceFallback)).Inc()
	m.info("serving synthesized fallback", zap.String("city", key), zap.Int("aqi", reading.AQI))
	return reading
}

// fetchUpstream performs the guarded network call: limiter slot, API call,
// index computation, persistence, cache population. Runs once per coalesced
// burst. Only a real upstream outcome feeds the breaker; limiter saturation
// does not.
func (m *Monitor) fetchUpstream(ctx context.Context, key string) (models.Reading, error) {
	acqCtx, cancel := context.WithTimeout(ctx, m.limiterTimeout)
	defer cancel()
	if err := m.limiter.Acquire(acqCtx, 1); err != nil {
		observability.LimiterTimeoutsTotal.Inc()
		return models.Reading{}, fmt.Errorf("limiter unavailable: %w", err)
	}
	defer m.limiter.Release(1)

	conc, err := m.client.GetLatest(ctx, key)
	if err != nil {
		m.breaker.RecordFailure()
		traffic.RecordError()
		observability.UpstreamErrorsTotal.WithLabelValues(string(client.CategorizeError(err))).Inc()
		return models.Reading{}, fmt.Errorf("fetch %s: %w", key, err)
	}

	result, err := aqi.Compute(conc)
	if err != nil {
		// A 200 with no usable pollutants is upstream schema drift; treat it
		// like any other upstream failure.
		m.breaker.RecordFailure()
		traffic.RecordError()
		observability.UpstreamErrorsTotal.WithLabelValues("empty_response").Inc()
		return models.Reading{}, fmt.Errorf("compute index for %s: %w", key, err)
	}

	m.breaker.RecordSuccess()
	traffic.RecordSuccess()

	reading := models.Reading{
		City:           key,
		AQI:            result.AQI,
		Category:       string(result.Category),
		Concentrations: conc,
		Timestamp:      m.clock.Now(),
		Source:         models.SourceUpstream,
	}

	// Writes happen only after the call fully succeeded, so a timeout can
	// never leave cache or store inconsistent.
	if err := m.store.Save(ctx, reading); err != nil {
		m.warn("persist reading failed", zap.String("city", key), zap.Error(err))
	}
	if err := m.cache.Set(ctx, key, reading); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set").Inc()
		m.warn("cache set failed", zap.String("city", key), zap.Error(err))
	}
	return reading, nil
}

// BreakerState exposes the circuit state for health reporting.
func (m *Monitor) BreakerState() circuitbreaker.State {
	return m.breaker.State()
}

// NormalizeCity normalizes city names by trimming whitespace and lowercasing,
// ensuring consistent cache keys and store lookups regardless of input format.
func NormalizeCity(city string) string {
	return validation.NormalizeCityName(city)
}

func (m *Monitor) debug(msg string, fields ...zap.Field) {
	if m.logger != nil {
		m.logger.Debug(msg, fields...)
	}
}

func (m *Monitor) info(msg string, fields ...zap.Field) {
	if m.logger != nil {
		m.logger.Info(msg, fields...)
	}
}

func (m *Monitor) warn(msg string, fields ...zap.Field) {
	if m.logger != nil {
		m.logger.Warn(msg, fields...)
	}
}
