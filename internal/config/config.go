package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/aqi-alert-service/internal/validation"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	OpenAQAPIKey  string
	OpenAQURL     string
	OpenAQTimeout time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	UpstreamRPS    int
	UpstreamBurst  int

	CacheBackend  string // "in_memory" or "memcached"
	CacheCapacity int
	CacheTTL      time.Duration
	SweepInterval time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	BreakerThreshold int
	BreakerCooldown  time.Duration

	MaxConcurrentFetches int
	LimiterTimeout       time.Duration
	CoalesceTimeout      time.Duration
	RecencyWindow        time.Duration

	RefreshInterval time.Duration
	CycleTimeout    time.Duration
	RefreshWorkers  int
	Retention       time.Duration
	CleanupInterval time.Duration

	Cities            []string
	FallbackBaselines map[string]int

	StoreBackend     string // "postgres" or "in_memory"
	PostgresDSN      string
	PostgresMaxConns int
	PostgresTimeout  time.Duration

	Notifier     string // "log" or "kafka"
	KafkaBrokers []string
	KafkaTopic   string

	SubscriberCacheCapacity int
	SubscriberCacheTTL      time.Duration

	TrafficWindow   time.Duration
	ShutdownTimeout time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	OpenAQ struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"openaq"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		UpstreamRPS      int    `yaml:"upstream_rps"`
		UpstreamBurst    int    `yaml:"upstream_burst"`

		BreakerThreshold int    `yaml:"breaker_failure_threshold"`
		BreakerCooldown  string `yaml:"breaker_cooldown"`

		MaxConcurrentFetches int    `yaml:"max_concurrent_fetches"`
		LimiterTimeout       string `yaml:"limiter_timeout"`
		CoalesceTimeout      string `yaml:"coalesce_timeout"`
		RecencyWindow        string `yaml:"recency_window"`
	} `yaml:"reliability"`

	Cache struct {
		Backend       string `yaml:"backend"`
		Capacity      int    `yaml:"capacity"`
		TTL           string `yaml:"ttl"`
		SweepInterval string `yaml:"sweep_interval"`
		Memcached     struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Scheduler struct {
		RefreshInterval string `yaml:"refresh_interval"`
		CycleTimeout    string `yaml:"cycle_timeout"`
		Workers         int    `yaml:"workers"`
		RetentionDays   int    `yaml:"retention_days"`
		CleanupInterval string `yaml:"cleanup_interval"`
	} `yaml:"scheduler"`

	Fleet struct {
		Cities    []string       `yaml:"cities"`
		Baselines map[string]int `yaml:"baselines"`
	} `yaml:"fleet"`

	Store struct {
		Backend  string `yaml:"backend"`
		Postgres struct {
			DSN      string `yaml:"dsn"`
			MaxConns int    `yaml:"max_conns"`
			Timeout  string `yaml:"timeout"`
		} `yaml:"postgres"`
	} `yaml:"store"`

	Alerts struct {
		Notifier                string   `yaml:"notifier"`
		KafkaBrokers            []string `yaml:"kafka_brokers"`
		KafkaTopic              string   `yaml:"kafka_topic"`
		SubscriberCacheCapacity int      `yaml:"subscriber_cache_capacity"`
		SubscriberCacheTTL      string   `yaml:"subscriber_cache_ttl"`
	} `yaml:"alerts"`

	Health struct {
		TrafficWindow string `yaml:"traffic_window"`
	} `yaml:"health"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`
}

type secretsFile struct {
	OpenAQAPIKey string `yaml:"openaq_api_key"`
	PostgresDSN  string `yaml:"postgres_dsn"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml. The API key comes from OPENAQ_API_KEY env or the
// secrets file; POSTGRES_DSN env overrides both config and secrets. Call from
// project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	var sec secretsFile
	secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
	if secretsData, err := os.ReadFile(secretsPath); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read secrets file: %w", err)
		}
	} else if err := yaml.Unmarshal(secretsData, &sec); err != nil {
		return nil, fmt.Errorf("parse secrets file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.OpenAQAPIKey = os.Getenv("OPENAQ_API_KEY")
	if cfg.OpenAQAPIKey == "" {
		cfg.OpenAQAPIKey = sec.OpenAQAPIKey
	}
	cfg.OpenAQURL = fc.OpenAQ.URL
	if cfg.OpenAQURL == "" {
		cfg.OpenAQURL = "https://api.openaq.org/v2/latest"
	}
	cfg.OpenAQTimeout = parseDuration(fc.OpenAQ.Timeout, 5*time.Second)

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.UpstreamRPS = fc.Reliability.UpstreamRPS
	if cfg.UpstreamRPS <= 0 {
		cfg.UpstreamRPS = 10
	}
	cfg.UpstreamBurst = fc.Reliability.UpstreamBurst
	if cfg.UpstreamBurst <= 0 {
		cfg.UpstreamBurst = 20
	}

	cfg.BreakerThreshold = fc.Reliability.BreakerThreshold
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 5
	}
	cfg.BreakerCooldown = parseDuration(fc.Reliability.BreakerCooldown, 5*time.Minute)
	cfg.MaxConcurrentFetches = fc.Reliability.MaxConcurrentFetches
	if cfg.MaxConcurrentFetches <= 0 {
		cfg.MaxConcurrentFetches = 10
	}
	cfg.LimiterTimeout = parseDuration(fc.Reliability.LimiterTimeout, 5*time.Second)
	cfg.CoalesceTimeout = parseDuration(fc.Reliability.CoalesceTimeout, 10*time.Second)
	cfg.RecencyWindow = parseDuration(fc.Reliability.RecencyWindow, time.Hour)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.CacheCapacity = fc.Cache.Capacity
	if cfg.CacheCapacity <= 0 {
		cfg.CacheCapacity = 1000
	}
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 30*time.Minute)
	cfg.SweepInterval = parseDuration(fc.Cache.SweepInterval, 5*time.Minute)
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.RefreshInterval = parseDuration(fc.Scheduler.RefreshInterval, 15*time.Minute)
	cfg.CycleTimeout = parseDuration(fc.Scheduler.CycleTimeout, 5*time.Minute)
	cfg.RefreshWorkers = fc.Scheduler.Workers
	if cfg.RefreshWorkers <= 0 {
		cfg.RefreshWorkers = 5
	}
	if fc.Scheduler.RetentionDays > 0 {
		cfg.Retention = time.Duration(fc.Scheduler.RetentionDays) * 24 * time.Hour
	}
	cfg.CleanupInterval = parseDuration(fc.Scheduler.CleanupInterval, 24*time.Hour)

	// Fleet names are normalized here so the scheduler, the synthesizer's
	// baseline lookup, and the store all agree on one city identity
	// regardless of how the YAML spells it.
	cfg.Cities = make([]string, 0, len(fc.Fleet.Cities))
	for _, city := range fc.Fleet.Cities {
		cfg.Cities = append(cfg.Cities, validation.NormalizeCityName(city))
	}
	if len(fc.Fleet.Baselines) > 0 {
		cfg.FallbackBaselines = make(map[string]int, len(fc.Fleet.Baselines))
		for city, baseline := range fc.Fleet.Baselines {
			cfg.FallbackBaselines[validation.NormalizeCityName(city)] = baseline
		}
	}

	cfg.StoreBackend = strings.TrimSpace(strings.ToLower(os.Getenv("STORE_BACKEND")))
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = strings.TrimSpace(strings.ToLower(fc.Store.Backend))
	}
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = "in_memory"
	}
	cfg.PostgresDSN = os.Getenv("POSTGRES_DSN")
	if cfg.PostgresDSN == "" {
		cfg.PostgresDSN = sec.PostgresDSN
	}
	if cfg.PostgresDSN == "" {
		cfg.PostgresDSN = fc.Store.Postgres.DSN
	}
	cfg.PostgresMaxConns = fc.Store.Postgres.MaxConns
	if cfg.PostgresMaxConns <= 0 {
		cfg.PostgresMaxConns = 10
	}
	cfg.PostgresTimeout = parseDuration(fc.Store.Postgres.Timeout, 5*time.Second)

	cfg.Notifier = strings.TrimSpace(strings.ToLower(fc.Alerts.Notifier))
	if cfg.Notifier == "" {
		cfg.Notifier = "log"
	}
	cfg.KafkaBrokers = fc.Alerts.KafkaBrokers
	cfg.KafkaTopic = fc.Alerts.KafkaTopic
	if cfg.KafkaTopic == "" {
		cfg.KafkaTopic = "aqi-alerts"
	}
	cfg.SubscriberCacheCapacity = fc.Alerts.SubscriberCacheCapacity
	if cfg.SubscriberCacheCapacity <= 0 {
		cfg.SubscriberCacheCapacity = 500
	}
	cfg.SubscriberCacheTTL = parseDuration(fc.Alerts.SubscriberCacheTTL, 10*time.Minute)

	cfg.TrafficWindow = parseDuration(fc.Health.TrafficWindow, 60*time.Second)
	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal on empty
// string, parse error, or non-positive result.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	switch cfg.StoreBackend {
	case "in_memory", "postgres":
	default:
		return fmt.Errorf("store.backend must be in_memory or postgres, got %q", cfg.StoreBackend)
	}
	if cfg.StoreBackend == "postgres" && cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN required when store.backend is postgres")
	}
	switch cfg.Notifier {
	case "log", "kafka":
	default:
		return fmt.Errorf("alerts.notifier must be log or kafka, got %q", cfg.Notifier)
	}
	if cfg.Notifier == "kafka" && len(cfg.KafkaBrokers) == 0 {
		return fmt.Errorf("alerts.kafka_brokers required when alerts.notifier is kafka")
	}
	if len(cfg.Cities) == 0 {
		return fmt.Errorf("fleet.cities must list at least one city")
	}
	for _, city := range cfg.Cities {
		if err := validation.ValidateCityName(city); err != nil {
			return fmt.Errorf("fleet.cities: %w", err)
		}
	}
	for city := range cfg.FallbackBaselines {
		if err := validation.ValidateCityName(city); err != nil {
			return fmt.Errorf("fleet.baselines: %w", err)
		}
	}
	return nil
}
