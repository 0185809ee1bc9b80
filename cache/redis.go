package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of go-redis client methods used by Redis.
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Address    string        `yaml:"address" json:"address"`
	Password   string        `yaml:"password" json:"-"`
	DB         int           `yaml:"db" json:"db"`
	Prefix     string        `yaml:"prefix" json:"prefix"`
	DefaultTTL time.Duration `yaml:"defaultTTL" json:"defaultTTL"`
}

// Redis is a Cache stored in a Redis instance. Keys are namespaced with
// the configured prefix so several deployments can share one instance.
type Redis struct {
	cfg    RedisConfig
	client RedisClient
}

// NewRedis connects to Redis and verifies the connection with PING.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: redis %s: ping failed: %w", cfg.Address, err)
	}
	return &Redis{cfg: cfg, client: client}, nil
}

// NewRedisWithClient wraps a pre-built client.
func NewRedisWithClient(cfg RedisConfig, client RedisClient) *Redis {
	return &Redis{cfg: cfg, client: client}
}

// Get returns the value or ErrMiss.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.prefixed(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache: redis get: %w", err)
	}
	return val, nil
}

// Set stores value. A zero ttl uses the configured default; if that is also
// zero the key never expires.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = r.cfg.DefaultTTL
	}
	if err := r.client.Set(ctx, r.prefixed(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}

// Delete removes a key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefixed(key)).Err(); err != nil {
		return fmt.Errorf("cache: redis del: %w", err)
	}
	return nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) prefixed(key string) string {
	return r.cfg.Prefix + key
}

var (
	_ Cache = (*Memory)(nil)
	_ Cache = (*Redis)(nil)
)
