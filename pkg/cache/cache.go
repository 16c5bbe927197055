package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Get when a key is absent or expired.
var ErrCacheMiss = errors.New("cache: key not found")

// Service is the cache surface the application depends on: key/value entries
// with TTL, a batched read for snapshot fan-out, and advisory locks for
// serializing work across replicas.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	MGet(ctx context.Context, keys ...string) (map[string]string, error)
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// MGetTyped fetches keys in one round trip and decodes each hit into T.
// Entries that fail to decode are dropped rather than failing the batch.
func MGetTyped[T any](ctx context.Context, c Service, keys ...string) (map[string]T, error) {
	if len(keys) == 0 {
		return map[string]T{}, nil
	}

	raw, err := c.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}

	out := make(map[string]T, len(raw))
	for key, val := range raw {
		var v T
		if err := json.Unmarshal([]byte(val), &v); err != nil {
			continue
		}
		out[key] = v
	}
	return out, nil
}

// encode normalizes a value to the string form every backend stores: strings
// pass through, anything else becomes JSON.
func encode(value interface{}) (string, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decode fills dest from the stored string form, mirroring encode.
func decode(raw string, dest interface{}) error {
	if p, ok := dest.(*string); ok {
		*p = raw
		return nil
	}
	return json.Unmarshal([]byte(raw), dest)
}
