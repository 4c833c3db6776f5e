package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/couchcryptid/location-enrichment/internal/domain"
)

// DefaultKeyPrefix namespaces geocode entries in a shared Redis.
const DefaultKeyPrefix = "geocode:"

// RedisStore keeps each cache entry as its own Redis key. A Put is durable
// once the SET is acknowledged, so there is no full-document rewrite.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	logger    *slog.Logger
}

// NewRedisStore creates a store on client. An empty prefix uses DefaultKeyPrefix.
func NewRedisStore(client redis.UniversalClient, keyPrefix string, logger *slog.Logger) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger,
	}
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Load verifies the server is reachable. Entries are read on demand.
func (s *RedisStore) Load(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Get returns the cached value for key. Read errors and undecodable values
// are logged and reported as a miss.
func (s *RedisStore) Get(ctx context.Context, key string) (domain.CacheValue, bool) {
	raw, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.CacheValue{}, false
	}
	if err != nil {
		s.logger.Warn("redis cache get failed", "key", key, "error", err)
		return domain.CacheValue{}, false
	}

	var v domain.CacheValue
	if err := json.Unmarshal(raw, &v); err != nil {
		s.logger.Warn("redis cache value corrupt", "key", key, "error", err)
		return domain.CacheValue{}, false
	}
	return v, true
}

// Put stores v under key with no expiry.
func (s *RedisStore) Put(ctx context.Context, key string, v domain.CacheValue) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}
	if err := s.client.Set(ctx, s.keyPrefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
