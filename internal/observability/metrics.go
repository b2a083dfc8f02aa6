package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/aqi-alert-service/internal/traffic"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases, SLO breaches.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// OpenAQ API call rate by status. Watch for: error vs success ratio.
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream latency per call. Watch for: p95 > 2s (upstream degradation), p99 > 5s (timeout risk).
	UpstreamCallDuration *prometheus.HistogramVec

	// Retry attempts for upstream calls. Watch for: high retries = unstable upstream.
	UpstreamRetriesTotal prometheus.Counter

	// Upstream errors by category (timeout, network, upstream_5xx, ...). Watch for: which failure mode dominates.
	UpstreamErrorsTotal *prometheus.CounterVec

	// Readings served by source (cache, store, upstream, stale, fallback). Fallback rate = fallback/sum.
	FetchesTotal *prometheus.CounterVec

	// Cache hits by cache type. Hit rate = hits/(hits+fetchesTotal{source!=cache}).
	CacheHitsTotal *prometheus.CounterVec

	// Cache backend failures by operation. Nonzero means memcached connectivity trouble.
	CacheErrorsTotal *prometheus.CounterVec

	// Lazily expired entries per cache. High rate relative to hits = TTL too short.
	CacheExpirationsTotal *prometheus.CounterVec

	// LRU evictions per cache. Sustained evictions = capacity too small for the fleet.
	CacheEvictionsTotal *prometheus.CounterVec

	// Cache warming runs and duration.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// Fetches short-circuited by the open breaker. Watch for: prolonged upstream outage.
	BreakerSkipsTotal prometheus.Counter

	// Circuit breaker transitions by from/to state.
	BreakerTransitionsTotal *prometheus.CounterVec

	// Current breaker state (0=closed, 1=open, 2=half_open).
	BreakerState prometheus.Gauge

	// Fetches that timed out waiting for a concurrency slot. Watch for: pool too small.
	LimiterTimeoutsTotal prometheus.Counter

	// Cache-miss stampedes: simultaneous misses for the same city.
	StampedeDetectedTotal prometheus.Counter
	StampedeConcurrency   prometheus.Histogram

	// Time followers spent waiting on a coalesced upstream fetch.
	CoalescingWaitSeconds prometheus.Histogram

	// Scheduler cycles: completed, skipped (previous still running), and duration.
	RefreshCyclesTotal          prometheus.Counter
	RefreshSkippedTotal         prometheus.Counter
	RefreshCycleDurationSeconds prometheus.Histogram

	// Readings deleted by retention cleanup.
	RetentionDeletedTotal prometheus.Counter

	// Alerts dispatched by outcome (sent, failed).
	AlertsDispatchedTotal *prometheus.CounterVec

	// Subscriber lookups served from the subscriber cache.
	SubscriberCacheHitsTotal prometheus.Counter

	trafficGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamApiCallsTotal",
			Help: "Total number of OpenAQ API calls",
		},
		[]string{"status"},
	)
	UpstreamCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamApiDurationSeconds",
			Help:    "OpenAQ API latency in seconds (per call)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	UpstreamRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "upstreamApiRetriesTotal",
			Help: "Total number of retry attempts for OpenAQ API calls",
		},
	)
	UpstreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamApiErrorsTotal",
			Help: "Upstream failures by error category",
		},
		[]string{"category"},
	)
	FetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchesTotal",
			Help: "Readings served, by source (cache, store, upstream, stale, fallback)",
		},
		[]string{"source"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of cache hits",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache backend failures by operation",
		},
		[]string{"operation"},
	)
	CacheExpirationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheExpirationsTotal",
			Help: "Entries dropped on access because their TTL had elapsed",
		},
		[]string{"cache"},
	)
	CacheEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheEvictionsTotal",
			Help: "Entries evicted to stay within cache capacity",
		},
		[]string{"cache"},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Cache warming runs at startup",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Time to warm the cache for the configured fleet",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60},
		},
	)
	BreakerSkipsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "breakerSkipsTotal",
			Help: "Fetches that skipped the upstream because the circuit breaker was open",
		},
	)
	BreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"from", "to"},
	)
	BreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "breakerState",
			Help: "Current circuit breaker state (0=closed, 1=open, 2=half_open)",
		},
	)
	LimiterTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "limiterTimeoutsTotal",
			Help: "Fetches that timed out waiting for an upstream concurrency slot",
		},
	)
	StampedeDetectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stampedeDetectedTotal",
			Help: "Cache misses that found another miss for the same city already in flight",
		},
	)
	StampedeConcurrency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stampedeConcurrency",
			Help:    "Simultaneous misses observed per stampede",
			Buckets: []float64{2, 5, 10, 25, 50, 100},
		},
	)
	CoalescingWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coalescingWaitSeconds",
			Help:    "Time followers spent waiting on a coalesced upstream fetch",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)
	RefreshCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "refreshCyclesTotal",
			Help: "Completed fleet refresh cycles",
		},
	)
	RefreshSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "refreshSkippedTotal",
			Help: "Refresh ticks skipped because the previous cycle was still running",
		},
	)
	RefreshCycleDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "refreshCycleDurationSeconds",
			Help:    "Wall time of one full fleet refresh cycle",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
	)
	RetentionDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "retentionDeletedTotal",
			Help: "Readings deleted by retention cleanup",
		},
	)
	AlertsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertsDispatchedTotal",
			Help: "Alerts dispatched, by outcome",
		},
		[]string{"outcome"},
	)
	SubscriberCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriberCacheHitsTotal",
			Help: "Subscriber lookups served from the subscriber cache",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamCallDuration, UpstreamRetriesTotal, UpstreamErrorsTotal,
		FetchesTotal,
		CacheHitsTotal, CacheErrorsTotal, CacheExpirationsTotal, CacheEvictionsTotal,
		CacheWarmingTotal, CacheWarmingDurationSeconds,
		BreakerSkipsTotal, BreakerTransitionsTotal, BreakerState,
		LimiterTimeoutsTotal,
		StampedeDetectedTotal, StampedeConcurrency, CoalescingWaitSeconds,
		RefreshCyclesTotal, RefreshSkippedTotal, RefreshCycleDurationSeconds,
		RetentionDeletedTotal,
		AlertsDispatchedTotal, SubscriberCacheHitsTotal,
	)
}

// RecordBreakerTransition updates the transition counter and state gauge.
// Wire it as the breaker's OnStateChange hook from main.
func RecordBreakerTransition(from, to string) {
	BreakerTransitionsTotal.WithLabelValues(from, to).Inc()
	switch to {
	case "closed":
		BreakerState.Set(0)
	case "open":
		BreakerState.Set(1)
	case "half_open":
		BreakerState.Set(2)
	}
}

// RegisterTrafficGauges registers the upstream success/error-rate gauges over
// the sliding window. Call from main after config load.
func RegisterTrafficGauges(window time.Duration) {
	trafficGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "upstreamErrorRateInWindow",
					Help: "Fraction of upstream calls that failed in the sliding window",
				},
				func() float64 {
					errs, total := traffic.ErrorRate(window)
					if total == 0 {
						return 0
					}
					return float64(errs) / float64(total)
				},
			),
		)
	})
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
