package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// scanCount is the COUNT hint passed to SCAN while listing keys.
const scanCount = 256

// RedisMedium is a Redis-backed Medium.
type RedisMedium struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
}

// RedisConfig holds configuration for the Redis medium.
type RedisConfig struct {
	URL       string        // Redis connection URL (e.g., "redis://localhost:6379")
	TTL       time.Duration // Server-side expiry for every key (0 = no expiration)
	KeyPrefix string        // Prefix for all keys (default: "storecache:")
}

// NewRedisMedium connects to Redis with the given configuration.
func NewRedisMedium(ctx context.Context, cfg RedisConfig) (*RedisMedium, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewRedisMediumFromClient(client, cfg.TTL, cfg.KeyPrefix), nil
}

// NewRedisMediumFromClient creates a RedisMedium from an existing Redis client.
func NewRedisMediumFromClient(client *redis.Client, ttl time.Duration, keyPrefix string) *RedisMedium {
	if keyPrefix == "" {
		keyPrefix = "storecache:"
	}
	if ttl < 0 {
		ttl = 0
	}

	return &RedisMedium{
		client:    client,
		ttl:       ttl,
		keyPrefix: keyPrefix,
	}
}

// Get retrieves a value from Redis.
func (m *RedisMedium) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := m.client.Get(ctx, m.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores a value in Redis.
func (m *RedisMedium) Set(ctx context.Context, key string, value []byte) error {
	return m.client.Set(ctx, m.keyPrefix+key, value, m.ttl).Err()
}

// Delete removes a key from Redis.
func (m *RedisMedium) Delete(ctx context.Context, key string) error {
	return m.client.Del(ctx, m.keyPrefix+key).Err()
}

// ListKeys walks the keyspace with SCAN and returns keys with the given
// prefix, without the medium's own key prefix.
func (m *RedisMedium) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	match := m.keyPrefix + prefix + "*"

	var (
		keys   []string
		cursor uint64
	)
	for {
		page, next, err := m.client.Scan(ctx, cursor, match, scanCount).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range page {
			keys = append(keys, k[len(m.keyPrefix):])
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	return keys, nil
}

// Close closes the Redis connection.
func (m *RedisMedium) Close() error {
	return m.client.Close()
}

// Ping tests the Redis connection.
func (m *RedisMedium) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Verify RedisMedium implements Medium
var _ Medium = (*RedisMedium)(nil)
