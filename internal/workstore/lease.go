package workstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLeaseCache is an optional side record for PostgresStore: it sets a
// Redis key with a TTL for each claimed item and deletes it once the item
// is finalized or rescheduled. Nothing reads these markers back, so they
// do not shed, filter or block claims; the SKIP LOCKED query alone decides
// what is claimed. Grounded on the token-bucket SET/GET pattern in the
// teacher's internal/rate/limiter.go and the thin client wrapper in
// internal/persistence/redis.go. It is not a distributed rate limiter —
// the pacer stays process-local per spec.md's Non-goals.
type RedisLeaseCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLeaseCache connects to redisURL and returns a lease cache with
// the given lease TTL (should exceed the expected per-item send+finalize
// time comfortably).
func NewRedisLeaseCache(ctx context.Context, redisURL string, ttl time.Duration) (*RedisLeaseCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisLeaseCache{client: client, ttl: ttl}, nil
}

func (c *RedisLeaseCache) key(id uuid.UUID) string {
	return fmt.Sprintf("throttlepipe:lease:%s", id)
}

// Hold takes out (or refreshes) a best-effort lease marker for id. Its
// result is advisory only — it never blocks a claim that Postgres has
// already committed to this process.
func (c *RedisLeaseCache) Hold(ctx context.Context, id uuid.UUID) {
	c.client.Set(ctx, c.key(id), "1", c.ttl)
}

// Release clears the lease marker once an item reaches a terminal or
// rescheduled state.
func (c *RedisLeaseCache) Release(ctx context.Context, id uuid.UUID) {
	c.client.Del(ctx, c.key(id))
}

// Close releases the underlying Redis connection.
func (c *RedisLeaseCache) Close() error {
	return c.client.Close()
}
