package dashboard

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache TTLs per query family.
const (
	TTLRankings = 180 * time.Second
	TTLSummary  = 300 * time.Second
	TTLCharts   = 600 * time.Second

	keyPrefix = "dashboard"
)

// Cache wraps Redis for dashboard query results. Every operation degrades
// gracefully: an unreachable Redis turns reads into misses and writes into
// no-ops, so the dashboard keeps serving from the stores.
type Cache struct {
	client *redis.Client
	logger *slog.Logger
}

func NewCache(client *redis.Client, logger *slog.Logger) *Cache {
	return &Cache{client: client, logger: logger}
}

// Key builds a deterministic cache key from a query name and its parameters.
func Key(name string, params ...string) string {
	parts := append([]string{keyPrefix, name}, params...)
	return strings.Join(parts, ":")
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	return val, true
}

func (c *Cache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Set(ctx, key, val, ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

// DeletePattern removes all keys matching the glob pattern and returns how
// many were deleted.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) (int, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}

	deleted := 0
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, err
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, err
	}
	return deleted, nil
}
