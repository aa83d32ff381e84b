package cache

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store. Expiry is lazy: stale entries are
// dropped when read, there is no background sweeper.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
	clock   Clock
}

// NewMemoryStore creates an empty in-memory store. A nil clock uses the wall clock.
func NewMemoryStore(clock Clock) *MemoryStore {
	if clock == nil {
		clock = SystemClock
	}
	return &MemoryStore{
		entries: make(map[string]*Entry),
		clock:   clock,
	}
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist or the entry is expired.
func (m *MemoryStore) Get(_ context.Context, key Key) (*Entry, error) {
	cacheKey := key.String()

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[cacheKey]
	if !ok {
		CacheMisses.WithLabelValues(layerMemory).Inc()
		return nil, ErrCacheMiss
	}

	if entry.IsExpired(m.clock.Now()) {
		delete(m.entries, cacheKey)
		CacheEntries.WithLabelValues(layerMemory).Set(float64(len(m.entries)))
		CacheMisses.WithLabelValues(layerMemory).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(layerMemory).Inc()
	copied := *entry
	return &copied, nil
}

// Set stores a cache entry. Already expired entries are not stored.
func (m *MemoryStore) Set(_ context.Context, key Key, entry *Entry) error {
	if entry == nil {
		CacheErrors.WithLabelValues(layerMemory, "set").Inc()
		return fmt.Errorf("cache entry cannot be nil")
	}
	if entry.IsExpired(m.clock.Now()) {
		return nil
	}

	copied := *entry

	m.mu.Lock()
	m.entries[key.String()] = &copied
	size := len(m.entries)
	m.mu.Unlock()

	CacheEntries.WithLabelValues(layerMemory).Set(float64(size))
	return nil
}

// Delete removes a cache entry.
func (m *MemoryStore) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	delete(m.entries, key.String())
	size := len(m.entries)
	m.mu.Unlock()

	CacheEntries.WithLabelValues(layerMemory).Set(float64(size))
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
