package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Fusion store backends.
const (
	FusionBackendMemory = "memory"
	FusionBackendRedis  = "redis"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers        []string
	KafkaGroupID        string
	KafkaPostsTopic     string
	KafkaReportsTopic   string
	KafkaSignalsTopic   string
	KafkaDecisionsTopic string
	HTTPAddr            string
	LogLevel            string
	LogFormat           string
	ShutdownTimeout     time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration
	ScoringWorkers     int

	// Fusion store backing.
	FusionBackend string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Tier 2 correlation.
	ProviderTimeout time.Duration
	OfficialFeedURL string

	// Decision persistence; empty disables it.
	DatabaseURL string

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	mapboxTimeout, err := parsePositiveDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	providerTimeout, err := parsePositiveDuration("PROVIDER_TIMEOUT", "3s")
	if err != nil {
		return nil, err
	}

	workers, err := parsePositiveInt("SCORING_WORKERS", 4)
	if err != nil {
		return nil, err
	}

	redisDB, err := strconv.Atoi(sharedcfg.EnvOrDefault("REDIS_DB", "0"))
	if err != nil || redisDB < 0 {
		return nil, errors.New("invalid REDIS_DB")
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		KafkaBrokers:        sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaGroupID:        sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "hazard-fusion"),
		KafkaPostsTopic:     sharedcfg.EnvOrDefault("KAFKA_POSTS_TOPIC", "raw-social-posts"),
		KafkaReportsTopic:   sharedcfg.EnvOrDefault("KAFKA_REPORTS_TOPIC", "raw-hazard-reports"),
		KafkaSignalsTopic:   sharedcfg.EnvOrDefault("KAFKA_SIGNALS_TOPIC", "hazard-signals"),
		KafkaDecisionsTopic: sharedcfg.EnvOrDefault("KAFKA_DECISIONS_TOPIC", "verification-decisions"),
		HTTPAddr:            sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:            sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:     shutdownTimeout,
		BatchSize:           batchSize,
		BatchFlushInterval:  flushInterval,
		ScoringWorkers:      workers,

		FusionBackend: sharedcfg.EnvOrDefault("FUSION_BACKEND", FusionBackendMemory),
		RedisAddr:     sharedcfg.EnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		ProviderTimeout: providerTimeout,
		OfficialFeedURL: os.Getenv("OFFICIAL_FEED_URL"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	for key, topic := range map[string]string{
		"KAFKA_POSTS_TOPIC":     c.KafkaPostsTopic,
		"KAFKA_REPORTS_TOPIC":   c.KafkaReportsTopic,
		"KAFKA_SIGNALS_TOPIC":   c.KafkaSignalsTopic,
		"KAFKA_DECISIONS_TOPIC": c.KafkaDecisionsTopic,
	} {
		if topic == "" {
			return fmt.Errorf("%s is required", key)
		}
	}
	switch c.FusionBackend {
	case FusionBackendMemory:
	case FusionBackendRedis:
		if c.RedisAddr == "" {
			return errors.New("FUSION_BACKEND is redis but REDIS_ADDR is not set")
		}
	default:
		return fmt.Errorf("invalid FUSION_BACKEND %q: must be memory or redis", c.FusionBackend)
	}
	if c.MapboxEnabled && c.MapboxToken == "" {
		return errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	return nil
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
