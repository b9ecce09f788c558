package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/openmfb/kestrel/internal/domain"
)

// DefaultTTL applies when a caller does not supply a TTL.
const DefaultTTL = 5 * time.Minute

// Loader is a read-through cache with request deduplication: at most one
// fetch per key is in flight at any instant, and concurrent callers for
// the same key share the single eventual result (or error). Nothing is
// cached on failure, so a later call retries.
type Loader struct {
	mu    sync.Mutex
	store domain.Store
	ttl   time.Duration
	group *singleflight.Group
	gen   uint64
}

// NewLoader creates a loader over the given store.
func NewLoader(store domain.Store, defaultTTL time.Duration) *Loader {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Loader{
		store: store,
		ttl:   defaultTTL,
		group: &singleflight.Group{},
	}
}

// Clear wipes the store and abandons all in-flight joins. Fetches already
// running complete for their callers, but their results are not written
// back into the cleared cache.
func (l *Loader) Clear(ctx context.Context) error {
	l.mu.Lock()
	l.group = &singleflight.Group{}
	l.gen++
	l.mu.Unlock()
	return l.store.Clear(ctx)
}

// Invalidate drops a single key.
func (l *Loader) Invalidate(ctx context.Context, key string) error {
	l.mu.Lock()
	l.group.Forget(key)
	l.mu.Unlock()
	return l.store.Delete(ctx, key)
}

// Store exposes the underlying store, mainly for health checks.
func (l *Loader) Store() domain.Store {
	return l.store
}

func (l *Loader) snapshot() (*singleflight.Group, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.group, l.gen
}

func (l *Loader) generation() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen
}

func (l *Loader) resolveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return l.ttl
	}
	return ttl
}

// Through returns the cached value for key, or runs fetch exactly once
// (shared across concurrent callers) and caches its result for ttl.
// A ttl of 0 uses the loader default. Fetch errors propagate to every
// waiting caller and leave the cache untouched.
func Through[T any](ctx context.Context, l *Loader, key string, ttl time.Duration, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if key == "" {
		return zero, fmt.Errorf("key is required")
	}

	raw, err := l.store.Get(ctx, key)
	if err != nil {
		slog.Warn("cache get failed, falling through to fetch", "key", key, "error", err)
	} else if raw != nil {
		var val T
		if err := json.Unmarshal(raw, &val); err == nil {
			return val, nil
		}
		// Corrupt entry: drop it and refetch.
		_ = l.store.Delete(ctx, key)
	}

	group, gen := l.snapshot()
	result, err, _ := group.Do(key, func() (any, error) {
		val, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		encoded, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("failed to encode cache value for %s: %w", key, err)
		}

		// A Clear issued while this fetch was in flight invalidates the
		// result for caching, but callers still receive it.
		if l.generation() == gen {
			if err := l.store.Set(ctx, key, encoded, l.resolveTTL(ttl)); err != nil {
				slog.Warn("cache set failed", "key", key, "error", err)
			}
		}
		return val, nil
	})
	if err != nil {
		return zero, err
	}
	return result.(T), nil
}
