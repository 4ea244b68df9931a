package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/allisson/billingsync/internal/errors"
)

// DefaultProcessedCacheKeyPrefix namespaces processed flags in Redis.
const DefaultProcessedCacheKeyPrefix = "webhook:processed:"

// RedisProcessedCache stores terminal processed flags for ledger records in Redis.
// Only the processed state is cached since it never changes once written.
type RedisProcessedCache struct {
	client    redis.Cmdable
	keyPrefix string
	ttl       time.Duration
}

// NewRedisProcessedCache creates a processed flag cache. A zero ttl keeps flags forever.
func NewRedisProcessedCache(client redis.Cmdable, keyPrefix string, ttl time.Duration) *RedisProcessedCache {
	if keyPrefix == "" {
		keyPrefix = DefaultProcessedCacheKeyPrefix
	}
	return &RedisProcessedCache{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

// IsProcessed reports whether the event was cached as processed.
func (r *RedisProcessedCache) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	_, err := r.client.Get(ctx, r.key(eventID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, apperrors.Wrap(err, "failed to read processed flag")
	}
	return true, nil
}

// SetProcessed caches the processed flag for the event.
func (r *RedisProcessedCache) SetProcessed(ctx context.Context, eventID string) error {
	if err := r.client.Set(ctx, r.key(eventID), "1", r.ttl).Err(); err != nil {
		return apperrors.Wrap(err, "failed to write processed flag")
	}
	return nil
}

func (r *RedisProcessedCache) key(eventID string) string {
	return r.keyPrefix + eventID
}
