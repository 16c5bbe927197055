package cache

import (
	"context"
	"sync"
	"time"
)

const (
	defaultMemoryMaxSize = 1000
	memoryJanitorPeriod  = 5 * time.Minute
	// entries written without a TTL still age out eventually
	memoryDefaultTTL = 24 * time.Hour
)

type memoryEntry struct {
	value    string
	expireAt time.Time
}

func (e memoryEntry) expired() bool { return time.Now().After(e.expireAt) }

// MemoryCache is the in-process Service used when Redis is not configured,
// and as the near layer of LayeredCache. The entry count is capped with LRU
// eviction, and a janitor goroutine drops expired entries.
type MemoryCache struct {
	mu       sync.Mutex
	entries  map[string]memoryEntry
	lastUsed map[string]time.Time
	maxSize  int
	janitor  *time.Ticker
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithMemoryMaxSize caps the number of retained entries.
func WithMemoryMaxSize(n int) MemoryOption {
	return func(m *MemoryCache) {
		if n > 0 {
			m.maxSize = n
		}
	}
}

// NewMemoryCache creates an in-process cache.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	m := &MemoryCache{
		entries:  make(map[string]memoryEntry),
		lastUsed: make(map[string]time.Time),
		maxSize:  defaultMemoryMaxSize,
		janitor:  time.NewTicker(memoryJanitorPeriod),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.sweep()
	return m
}

func (m *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := encode(value)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = memoryDefaultTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; !ok && len(m.entries) >= m.maxSize {
		m.evictOldest()
	}
	m.entries[key] = memoryEntry{value: raw, expireAt: time.Now().Add(ttl)}
	m.lastUsed[key] = time.Now()
	return nil
}

func (m *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok || e.expired() {
		if ok {
			delete(m.entries, key)
			delete(m.lastUsed, key)
		}
		m.mu.Unlock()
		return ErrCacheMiss
	}
	m.lastUsed[key] = time.Now()
	m.mu.Unlock()

	return decode(e.value, dest)
}

func (m *MemoryCache) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.entries, key)
		delete(m.lastUsed, key)
	}
	return nil
}

func (m *MemoryCache) MGet(_ context.Context, keys ...string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		if e, ok := m.entries[key]; ok && !e.expired() {
			out[key] = e.value
		}
	}
	return out, nil
}

func (m *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok && !e.expired() {
		return false, nil
	}
	m.entries[key] = memoryEntry{value: "locked", expireAt: time.Now().Add(ttl)}
	m.lastUsed[key] = time.Now()
	return true, nil
}

func (m *MemoryCache) Unlock(ctx context.Context, key string) error {
	return m.Delete(ctx, key)
}

// Close stops the janitor.
func (m *MemoryCache) Close() error {
	m.janitor.Stop()
	return nil
}

// evictOldest removes the least recently used entry. Caller holds the lock.
func (m *MemoryCache) evictOldest() {
	var oldestKey string
	var oldestAt time.Time
	for key, at := range m.lastUsed {
		if oldestKey == "" || at.Before(oldestAt) {
			oldestKey, oldestAt = key, at
		}
	}
	if oldestKey != "" {
		delete(m.entries, oldestKey)
		delete(m.lastUsed, oldestKey)
	}
}

func (m *MemoryCache) sweep() {
	for range m.janitor.C {
		now := time.Now()
		m.mu.Lock()
		for key, e := range m.entries {
			if now.After(e.expireAt) {
				delete(m.entries, key)
				delete(m.lastUsed, key)
			}
		}
		m.mu.Unlock()
	}
}

var _ Service = (*MemoryCache)(nil)
