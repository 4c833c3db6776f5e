package main

import (
	"errors"
	"fmt"
	"log/slog"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	kafkaadapter "github.com/couchcryptid/location-enrichment/internal/adapter/kafka"
	"github.com/couchcryptid/location-enrichment/internal/cache"
	"github.com/couchcryptid/location-enrichment/internal/config"
	"github.com/couchcryptid/location-enrichment/internal/geocode"
	"github.com/couchcryptid/location-enrichment/internal/observability"
	"github.com/couchcryptid/location-enrichment/internal/pipeline"
)

// app is the wiring shared by every subcommand.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	engine  *pipeline.Engine
	closers []func() error
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	a := &app{cfg: cfg, logger: logger, metrics: metrics}

	var store geocode.Store
	switch cfg.CacheBackend {
	case config.CacheBackendRedis:
		client, err := cache.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		rs := cache.NewRedisStore(client, cfg.RedisKeyPrefix, logger)
		a.closers = append(a.closers, rs.Close)
		store = rs
		logger.Info("geocode cache backend", "backend", "redis", "prefix", cfg.RedisKeyPrefix)
	default:
		store = cache.NewFileStore(cfg.CacheFile, logger)
		logger.Info("geocode cache backend", "backend", "file", "path", cfg.CacheFile)
	}

	providers := geocode.HTTPProviders(geocode.ProviderConfig{
		Timeout:            cfg.ProviderTimeout,
		OnWaterMaxAttempts: cfg.OnWaterMaxAttempts,
		OnWaterBaseDelay:   cfg.OnWaterBaseDelay,
	}, metrics, logger)

	var opts []pipeline.Option
	if cfg.PublishSummaries() {
		writer := kafkaadapter.NewWriter(cfg, logger)
		a.closers = append(a.closers, writer.Close)
		opts = append(opts, pipeline.WithPublisher(writer))
		logger.Info("summary publishing enabled", "topic", cfg.KafkaSummaryTopic, "brokers", cfg.KafkaBrokers)
	}

	a.engine = pipeline.New(store, providers, logger, metrics, opts...)
	return a, nil
}

// Close releases the cache and publisher connections.
func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
