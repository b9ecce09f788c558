package cache

import (
	"fmt"

	"github.com/openmfb/kestrel/internal/domain"
)

// New creates a store based on configuration.
// "memory" returns the in-process LRU store; "redis" returns the shared
// Redis store for multi-node deployments.
func New(cfg domain.CacheConfig) (domain.Store, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUStore(cfg.LocalMaxSize), nil

	case "redis":
		return NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}
