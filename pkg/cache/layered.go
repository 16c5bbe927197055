package cache

import (
	"context"
	"time"
)

const defaultLayeredMemTTL = time.Minute

// LayeredCache fronts a remote Service with an in-process MemoryCache.
// Single-key reads try memory first and writes go through to the remote
// layer. Locks and batched reads always hit the remote layer so replicas
// agree on them.
type LayeredCache struct {
	mem    *MemoryCache
	remote Service
	memTTL time.Duration
}

type layeredSettings struct {
	memSize int
	memTTL  time.Duration
}

// LayeredOption configures a LayeredCache.
type LayeredOption func(*layeredSettings)

// WithLayeredMemorySize caps the in-process layer.
func WithLayeredMemorySize(n int) LayeredOption {
	return func(s *layeredSettings) {
		if n > 0 {
			s.memSize = n
		}
	}
}

// WithLayeredMemoryTTL bounds how long the in-process layer may serve a value
// read back from the remote layer, whose remaining TTL is unknown.
func WithLayeredMemoryTTL(d time.Duration) LayeredOption {
	return func(s *layeredSettings) {
		if d > 0 {
			s.memTTL = d
		}
	}
}

// NewLayeredCache fronts remote with an in-process layer.
func NewLayeredCache(remote Service, opts ...LayeredOption) *LayeredCache {
	s := &layeredSettings{memSize: defaultMemoryMaxSize, memTTL: defaultLayeredMemTTL}
	for _, opt := range opts {
		opt(s)
	}
	return &LayeredCache{
		mem:    NewMemoryCache(WithMemoryMaxSize(s.memSize)),
		remote: remote,
		memTTL: s.memTTL,
	}
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := lc.remote.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	_ = lc.mem.Set(ctx, key, value, ttl)
	return nil
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.mem.Get(ctx, key, dest); err == nil {
		return nil
	}

	var raw string
	if err := lc.remote.Get(ctx, key, &raw); err != nil {
		return err
	}

	// keep a short-lived local copy for the next read
	_ = lc.mem.Set(ctx, key, raw, lc.memTTL)
	return decode(raw, dest)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.mem.Delete(ctx, keys...)
	return lc.remote.Delete(ctx, keys...)
}

// MGet bypasses the memory layer: snapshot reads must observe writes made by
// other replicas.
func (lc *LayeredCache) MGet(ctx context.Context, keys ...string) (map[string]string, error) {
	return lc.remote.MGet(ctx, keys...)
}

func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return lc.remote.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key string) error {
	return lc.remote.Unlock(ctx, key)
}

// Close stops the memory layer. The remote Service is shared and stays open.
func (lc *LayeredCache) Close() error {
	return lc.mem.Close()
}

var _ Service = (*LayeredCache)(nil)
