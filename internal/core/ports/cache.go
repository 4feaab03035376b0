// internal/core/ports/cache.go
package ports

import (
	"context"
	"time"
)

// CacheRepository is the read-through cache used for dashboard and report payloads.
type CacheRepository interface {
	SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	DeletePattern(ctx context.Context, pattern string) error
	Exists(ctx context.Context, keys ...string) (bool, error)

	// GetOrSet loads key into dest, calling fetch and storing its result on a miss.
	GetOrSet(ctx context.Context, key string, dest interface{},
		fetch func() (interface{}, error), ttl time.Duration) error

	// SetNX is used to de-duplicate low stock notifications.
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Increment(ctx context.Context, key string) (int64, error)

	Ping(ctx context.Context) error
}
