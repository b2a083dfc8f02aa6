package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/aqi-alert-service/internal/alert"
	"github.com/kjstillabower/aqi-alert-service/internal/cache"
	"github.com/kjstillabower/aqi-alert-service/internal/circuitbreaker"
	"github.com/kjstillabower/aqi-alert-service/internal/client"
	"github.com/kjstillabower/aqi-alert-service/internal/config"
	httphandler "github.com/kjstillabower/aqi-alert-service/internal/http"
	"github.com/kjstillabower/aqi-alert-service/internal/models"
	"github.com/kjstillabower/aqi-alert-service/internal/observability"
	"github.com/kjstillabower/aqi-alert-service/internal/scheduler"
	"github.com/kjstillabower/aqi-alert-service/internal/service"
	"github.com/kjstillabower/aqi-alert-service/internal/store"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	clock := clockwork.NewRealClock()

	var st store.Store
	var pgCloser *store.Postgres
	switch cfg.StoreBackend {
	case "postgres":
		pg, err := store.NewPostgres(cfg.PostgresDSN, cfg.PostgresMaxConns, cfg.PostgresTimeout)
		if err != nil {
			logger.Fatal("postgres store", zap.Error(err))
		}
		pgCloser = pg
		st = pg
		logger.Info("store backend: postgres", zap.Int("max_conns", cfg.PostgresMaxConns))
	default:
		st = store.NewMemory()
		logger.Info("store backend: in_memory")
	}

	var readingCache cache.Cache[models.Reading]
	var memcacheCloser *cache.Memcached[models.Reading]
	var lruCache *cache.LRU[models.Reading]
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcached[models.Reading](cfg.MemcachedAddrs, "reading", cfg.CacheTTL, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		readingCache = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		lruCache = cache.NewLRU[models.Reading]("reading", cfg.CacheCapacity, cfg.CacheTTL, clock)
		readingCache = lruCache
		logger.Info("cache backend: in_memory", zap.Int("capacity", cfg.CacheCapacity))
	}

	aqClient, err := client.NewOpenAQClientWithRetry(
		cfg.OpenAQAPIKey,
		cfg.OpenAQURL,
		cfg.OpenAQTimeout,
		cfg.UpstreamRPS,
		cfg.UpstreamBurst,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		logger.Fatal("openaq client", zap.Error(err))
	}

	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.BreakerThreshold,
		Cooldown:         cfg.BreakerCooldown,
		Clock:            clock,
		OnStateChange: func(from, to circuitbreaker.State) {
			logger.Warn("circuit breaker transition", zap.String("from", from.String()), zap.String("to", to.String()))
			observability.RecordBreakerTransition(from.String(), to.String())
		},
	})
	logger.Info("circuit breaker enabled",
		zap.Int("failure_threshold", cfg.BreakerThreshold),
		zap.Duration("cooldown", cfg.BreakerCooldown))

	synth := service.NewSynthesizer(cfg.FallbackBaselines, rand.NewSource(time.Now().UnixNano()), clock)

	monitor := service.NewMonitor(service.Config{
		Client:          aqClient,
		Cache:           readingCache,
		Store:           st,
		Breaker:         breaker,
		Synth:           synth,
		MaxConcurrent:   int64(cfg.MaxConcurrentFetches),
		LimiterTimeout:  cfg.LimiterTimeout,
		RecencyWindow:   cfg.RecencyWindow,
		CoalesceTimeout: cfg.CoalesceTimeout,
		Clock:           clock,
		Logger:          logger,
	})

	var notifier alert.Notifier
	var kafkaCloser *alert.KafkaNotifier
	switch cfg.Notifier {
	case "kafka":
		kn := alert.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		kafkaCloser = kn
		notifier = kn
		logger.Info("alert notifier: kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	default:
		notifier = alert.NewLogNotifier(logger)
		logger.Info("alert notifier: log")
	}

	subCache := cache.NewLRU[models.Subscriber]("subscriber", cfg.SubscriberCacheCapacity, cfg.SubscriberCacheTTL, clock)
	dispatcher := alert.NewDispatcher(st, notifier, subCache, clock, logger)

	refresher := scheduler.New(monitor, dispatcher, st, scheduler.Config{
		Cities:       cfg.Cities,
		Interval:     cfg.RefreshInterval,
		CycleTimeout: cfg.CycleTimeout,
		Workers:      cfg.RefreshWorkers,
		Retention:    cfg.Retention,
		CleanupEvery: cfg.CleanupInterval,
		Clock:        clock,
		Logger:       logger,
	})

	observability.RegisterTrafficGauges(cfg.TrafficWindow)

	healthConfig := &httphandler.HealthConfig{
		TrafficWindow:    cfg.TrafficWindow,
		DegradedErrorPct: 50,
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}
	handler := httphandler.NewHandler(st, breaker, healthConfig, logger)

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Warm the cache for the fleet before the first scheduled cycle so early
	// alert evaluations see live data instead of fallbacks.
	warmer := cache.NewWarmer(monitor, logger)
	warmCtx, warmCancel := context.WithTimeout(ctx, 30*time.Second)
	warmer.Warm(warmCtx, cfg.Cities)
	warmCancel()

	if lruCache != nil {
		lruCache.StartSweeper(ctx, cfg.SweepInterval)
	}
	subCache.StartSweeper(ctx, cfg.SweepInterval)

	go func() {
		if err := refresher.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("scheduler stopped", zap.Error(err))
		}
	}()
	go func() {
		if err := refresher.RunCleanup(ctx); err != nil && err != context.Canceled {
			logger.Error("retention cleanup stopped", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	handler.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	if err := observability.FlushTelemetry(logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if kafkaCloser != nil {
		if err := kafkaCloser.Close(); err != nil {
			logger.Error("kafka close", zap.Error(err))
		}
	}
	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	if pgCloser != nil {
		if err := pgCloser.Close(); err != nil {
			logger.Error("postgres close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
