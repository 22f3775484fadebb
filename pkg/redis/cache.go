package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores JSON-encoded reports keyed by experiment hash.
// ⭐ SSOT: 캐시 헬퍼는 여기서만
type Cache struct {
	client *Client
	prefix string
}

// NewCache creates a new cache helper
func NewCache(client *Client, prefix string) *Cache {
	return &Cache{
		client: client,
		prefix: prefix,
	}
}

func (c *Cache) key(key string) string {
	return fmt.Sprintf("%s:cache:%s", c.prefix, key)
}

// Get retrieves a cached value. A miss returns (false, nil).
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.client.Enabled() {
		return false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}

	return true, nil
}

// Set stores a value in cache with TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.client.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	return c.client.Redis().Set(ctx, c.key(key), data, ttl).Err()
}

// Delete removes a cached value
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.client.Enabled() {
		return nil
	}
	return c.client.Redis().Del(ctx, c.key(key)).Err()
}

// GetOrCompute returns the cached value for key or calls fn and caches its result.
// The bool reports a cache hit. Cache write failures do not fail the call.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fn func() (T, error)) (T, bool, error) {
	var cached T
	found, err := c.Get(ctx, key, &cached)
	if err == nil && found {
		return cached, true, nil
	}

	value, err := fn()
	if err != nil {
		return value, false, err
	}

	_ = c.Set(ctx, key, value, ttl)
	return value, false, nil
}

// TTLReport is the default lifetime of cached comparison reports.
const TTLReport = 24 * time.Hour

// ComparisonKey identifies a model comparison by experiment hash and dataset fingerprint.
func ComparisonKey(configHash, dataFingerprint string) string {
	return fmt.Sprintf("comparison:%s:%s", configHash, dataFingerprint)
}

// StabilityKey identifies a rolling R² analysis.
func StabilityKey(configHash, dataFingerprint string) string {
	return fmt.Sprintf("stability:%s:%s", configHash, dataFingerprint)
}
