package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisConnectTimeout = 5 * time.Second

// RedisCache implements Service on Redis. Every key carries a service prefix
// so several deployments can share one database.
type RedisCache struct {
	client *redis.Client
	prefix string
}

type redisSettings struct {
	host     string
	port     int
	password string
	db       int
	prefix   string
}

// RedisOption configures a RedisCache.
type RedisOption func(*redisSettings)

// WithRedisHost sets the Redis host.
func WithRedisHost(host string) RedisOption {
	return func(s *redisSettings) { s.host = host }
}

// WithRedisPort sets the Redis port.
func WithRedisPort(port int) RedisOption {
	return func(s *redisSettings) { s.port = port }
}

// WithRedisPassword sets the Redis password.
func WithRedisPassword(pw string) RedisOption {
	return func(s *redisSettings) { s.password = pw }
}

// WithRedisDB selects the Redis database.
func WithRedisDB(db int) RedisOption {
	return func(s *redisSettings) { s.db = db }
}

// NewRedisCache connects to Redis and verifies the connection before
// returning.
func NewRedisCache(opts ...RedisOption) (*RedisCache, error) {
	s := &redisSettings{host: "localhost", port: 6379, prefix: "solsignal"}
	for _, opt := range opts {
		opt(s)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", s.host, s.port),
		Password: s.password,
		DB:       s.db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisCache{client: client, prefix: s.prefix}, nil
}

// Close releases the connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := encode(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(key), raw, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, err := c.client.Get(ctx, c.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return err
	}
	return decode(raw, dest)
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	return c.client.Unlink(ctx, c.keys(keys)...).Err()
}

func (c *RedisCache) MGet(ctx context.Context, keys ...string) (map[string]string, error) {
	if len(keys) == 0 {
		return map[string]string{}, nil
	}

	vals, err := c.client.MGet(ctx, c.keys(keys)...).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(keys))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[keys[i]] = s
		}
	}
	return out, nil
}

func (c *RedisCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, c.key(key), "locked", ttl).Result()
}

func (c *RedisCache) Unlock(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

func (c *RedisCache) key(k string) string {
	return c.prefix + ":" + k
}

func (c *RedisCache) keys(ks []string) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = c.key(k)
	}
	return out
}

var _ Service = (*RedisCache)(nil)
