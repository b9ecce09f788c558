// Package cache provides the caching and request-deduplication layer
// for Kestrel.
package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openmfb/kestrel/internal/domain"
)

// LRUStore is a thread-safe LRU store with per-entry TTL.
// Used as the default in-process cache tier.
type LRUStore struct {
	mu      sync.RWMutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List
}

type storeEntry struct {
	key       string
	value     []byte
	timestamp time.Time
	expiresAt time.Time
}

// NewLRUStore creates a new LRU store with the specified max size.
func NewLRUStore(maxSize int) *LRUStore {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &LRUStore{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get retrieves a value. Expired entries are removed and treated as
// misses.
func (s *LRUStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, fmt.Errorf("key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		return nil, nil
	}

	entry := elem.Value.(*storeEntry)
	if time.Now().After(entry.expiresAt) {
		s.removeElement(elem)
		return nil, nil
	}

	// Move to front (most recently used)
	s.order.MoveToFront(elem)
	return entry.value, nil
}

// Set stores a value with TTL. An existing entry is overwritten and its
// expiry reset.
func (s *LRUStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}

	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		s.order.MoveToFront(elem)
		entry := elem.Value.(*storeEntry)
		entry.value = value
		entry.timestamp = now
		entry.expiresAt = now.Add(ttl)
		return nil
	}

	entry := &storeEntry{
		key:       key,
		value:     value,
		timestamp: now,
		expiresAt: now.Add(ttl),
	}
	elem := s.order.PushFront(entry)
	s.items[key] = elem

	// Evict if over capacity
	for s.order.Len() > s.maxSize {
		s.removeOldest()
	}

	return nil
}

// Delete removes a single key.
func (s *LRUStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		s.removeElement(elem)
	}
	return nil
}

// Clear wipes every entry.
func (s *LRUStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*list.Element)
	s.order = list.New()
	return nil
}

// Ping checks store health.
func (s *LRUStore) Ping(ctx context.Context) error {
	return nil
}

// Close cleans up the store.
func (s *LRUStore) Close() error {
	return s.Clear(context.Background())
}

// Stats returns store statistics.
func (s *LRUStore) Stats() (size int, capacity int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.order.Len(), s.maxSize
}

func (s *LRUStore) removeElement(elem *list.Element) {
	s.order.Remove(elem)
	entry := elem.Value.(*storeEntry)
	delete(s.items, entry.key)
}

func (s *LRUStore) removeOldest() {
	elem := s.order.Back()
	if elem != nil {
		s.removeElement(elem)
	}
}

var _ domain.Store = (*LRUStore)(nil)
