package data

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryCacheRepo implements the CacheRepository interface with an in-process
// map. It backs the prompt cache when Redis is not configured. Expiry is
// checked lazily on read; there is no background eviction.
type MemoryCacheRepo struct {
	mu           sync.RWMutex
	entries      map[string]memoryCacheEntry
	timeProvider TimeProvider
}

type memoryCacheEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// NewMemoryCacheRepo creates a new MemoryCacheRepo. A nil TimeProvider
// defaults to the wall clock.
func NewMemoryCacheRepo(tp TimeProvider) *MemoryCacheRepo {
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &MemoryCacheRepo{
		entries:      make(map[string]memoryCacheEntry),
		timeProvider: tp,
	}
}

// Set stores a value with the given key and TTL. TTL 0 means no expiry.
func (m *MemoryCacheRepo) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}

	entry := memoryCacheEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = m.timeProvider.Now().Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry
	return nil
}

// Get retrieves a value by key, or nil if the key doesn't exist or has expired.
func (m *MemoryCacheRepo) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("key cannot be empty")
	}

	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	if !entry.expiresAt.IsZero() && !m.timeProvider.Now().Before(entry.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, nil
	}

	return append([]byte(nil), entry.value...), nil
}

// Delete removes a key. Returns true if the key existed.
func (m *MemoryCacheRepo) Delete(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("key cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	delete(m.entries, key)
	return ok, nil
}

// Health always succeeds for the in-process cache.
func (m *MemoryCacheRepo) Health(ctx context.Context) error {
	return nil
}
