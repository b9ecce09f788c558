package domain

import (
	"context"
	"time"
)

// Store defines the interface for cache storage tiers.
type Store interface {
	// Get retrieves a value. Returns nil, nil if the key is absent or
	// expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a single key.
	Delete(ctx context.Context, key string) error

	// Clear wipes the entire store.
	Clear(ctx context.Context) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU store settings
	LocalMaxSize int `envconfig:"LOCAL_MAX_SIZE"`

	// DefaultTTL applies when a caller does not supply one.
	DefaultTTL time.Duration `envconfig:"DEFAULT_TTL"`

	// Redis settings
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB"`
}
