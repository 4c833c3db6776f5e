package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/location-enrichment/internal/domain"
)

// Cache backends.
const (
	CacheBackendFile  = "file"
	CacheBackendRedis = "redis"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Provider credentials. The web shell accepts per-request keys and falls
	// back to these.
	Credentials domain.Credentials

	ProviderTimeout    time.Duration
	ProviderDelay      time.Duration
	OnWaterMaxAttempts int
	OnWaterBaseDelay   time.Duration
	BatchSize          int

	CacheBackend   string
	CacheFile      string
	RedisURL       string
	RedisKeyPrefix string

	UploadDir string
	OutputDir string

	// Summary publication is enabled when brokers are set.
	KafkaBrokers      []string
	KafkaSummaryTopic string
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

	providerTimeout, err := parsePositiveDuration("PROVIDER_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	providerDelay, err := parseDuration("PROVIDER_DELAY", "500ms")
	if err != nil {
		return nil, err
	}
	onwaterBaseDelay, err := parseDuration("ONWATER_BASE_DELAY", "1s")
	if err != nil {
		return nil, err
	}
	onwaterAttempts, err := parsePositiveInt("ONWATER_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		Credentials: domain.Credentials{
			Geoapify: os.Getenv("GEOAPIFY_API_KEY"),
			Google:   os.Getenv("GOOGLE_API_KEY"),
			OnWater:  os.Getenv("ONWATER_API_KEY"),
		},

		ProviderTimeout:    providerTimeout,
		ProviderDelay:      providerDelay,
		OnWaterMaxAttempts: onwaterAttempts,
		OnWaterBaseDelay:   onwaterBaseDelay,
		BatchSize:          batchSize,

		CacheBackend:   strings.ToLower(sharedcfg.EnvOrDefault("CACHE_BACKEND", CacheBackendFile)),
		CacheFile:      sharedcfg.EnvOrDefault("CACHE_FILE", "config/geo_cache.json"),
		RedisURL:       os.Getenv("REDIS_URL"),
		RedisKeyPrefix: sharedcfg.EnvOrDefault("REDIS_KEY_PREFIX", "geocode:"),

		UploadDir: sharedcfg.EnvOrDefault("UPLOAD_DIR", "uploads"),
		OutputDir: sharedcfg.EnvOrDefault("OUTPUT_DIR", "output"),

		KafkaSummaryTopic: sharedcfg.EnvOrDefault("KAFKA_SUMMARY_TOPIC", "location-analysis-summaries"),
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	switch cfg.CacheBackend {
	case CacheBackendFile:
		if cfg.CacheFile == "" {
			return nil, errors.New("CACHE_FILE is required for the file cache backend")
		}
	case CacheBackendRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("REDIS_URL is required for the redis cache backend")
		}
	default:
		return nil, fmt.Errorf("invalid CACHE_BACKEND %q: want file or redis", cfg.CacheBackend)
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaSummaryTopic == "" {
		return nil, errors.New("KAFKA_SUMMARY_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// PublishSummaries reports whether summaries go to Kafka.
func (c *Config) PublishSummaries() bool {
	return len(c.KafkaBrokers) > 0
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := parseDuration(key, def)
	if err != nil || d == 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
