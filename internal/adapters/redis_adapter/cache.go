// internal/adapters/redis_adapter/cache.go
package redis_a

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ammerola/stockledger/internal/core/ports"
)

// ErrCacheMiss is returned by Get when the key does not exist.
var ErrCacheMiss = errors.New("cache miss")

// Cache implements ports.CacheRepository on Redis. Every key is stored under the
// configured namespace so several deployments can share one Redis database.
type Cache struct {
	client    redis.UniversalClient
	namespace string
	logger    *slog.Logger
}

// Statically assert that *Cache implements the CacheRepository interface.
var _ ports.CacheRepository = (*Cache)(nil)

// NewCache creates a new cache. An empty namespace disables prefixing.
func NewCache(client redis.UniversalClient, namespace string, logger *slog.Logger) *Cache {
	return &Cache{
		client:    client,
		namespace: strings.TrimSuffix(namespace, ":"),
		logger:    logger.With(slog.String("component", "cache")),
	}
}

func (c *Cache) key(k string) string {
	if c.namespace == "" {
		return k
	}
	return c.namespace + ":" + k
}

// SetWithTTL stores value as JSON.
func (c *Cache) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	if err := c.client.Set(ctx, c.key(key), data, ttl).Err(); err != nil {
		c.logger.ErrorContext(ctx, "failed to set cache",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return fmt.Errorf("redis set error: %w", err)
	}

	c.logger.DebugContext(ctx, "cache set",
		slog.String("key", key),
		slog.Duration("ttl", ttl))
	return nil
}

// Get decodes the cached JSON into dest or returns ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.logger.DebugContext(ctx, "cache miss", slog.String("key", key))
			return ErrCacheMiss
		}
		c.logger.ErrorContext(ctx, "failed to get cache",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return fmt.Errorf("redis get error: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal error: %w", err)
	}

	c.logger.DebugContext(ctx, "cache hit", slog.String("key", key))
	return nil
}

// Delete removes keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	return c.del(ctx, full)
}

func (c *Cache) del(ctx context.Context, fullKeys []string) error {
	if err := c.client.Del(ctx, fullKeys...).Err(); err != nil {
		c.logger.ErrorContext(ctx, "failed to delete cache",
			slog.Any("keys", fullKeys),
			slog.String("error", err.Error()))
		return fmt.Errorf("redis del error: %w", err)
	}
	c.logger.DebugContext(ctx, "cache deleted", slog.Any("keys", fullKeys))
	return nil
}

// DeletePattern removes all keys matching a glob pattern within the namespace.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, c.key(pattern), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.ErrorContext(ctx, "failed to scan keys",
			slog.String("pattern", pattern),
			slog.String("error", err.Error()))
		return fmt.Errorf("redis scan error: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}
	return c.del(ctx, keys)
}

// Exists reports whether every key exists.
func (c *Cache) Exists(ctx context.Context, keys ...string) (bool, error) {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	n, err := c.client.Exists(ctx, full...).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists error: %w", err)
	}
	return n == int64(len(keys)), nil
}

// GetOrSet retrieves from cache or calls fetch and stores the result.
func (c *Cache) GetOrSet(ctx context.Context, key string, dest interface{},
	fetch func() (interface{}, error), ttl time.Duration) error {

	err := c.Get(ctx, key, dest)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		// Redis trouble should not take reports down with it.
		c.logger.WarnContext(ctx, "cache read failed, falling back to source",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}

	value, err := fetch()
	if err != nil {
		return err
	}

	if err := c.SetWithTTL(ctx, key, value, ttl); err != nil {
		c.logger.WarnContext(ctx, "failed to cache value after fetch",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	return json.Unmarshal(data, dest)
}

// SetNX sets a key only if it does not exist.
func (c *Cache) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("marshal error: %w", err)
	}

	ok, err := c.client.SetNX(ctx, c.key(key), data, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx error: %w", err)
	}
	return ok, nil
}

// Increment increments a counter.
func (c *Cache) Increment(ctx context.Context, key string) (int64, error) {
	val, err := c.client.Incr(ctx, c.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr error: %w", err)
	}
	return val, nil
}

// Ping checks if Redis is accessible.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping error: %w", err)
	}
	return nil
}
