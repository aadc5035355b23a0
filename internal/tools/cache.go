package tools

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	cacheKeyPrefix  = "voicelive:tools:"
	defaultCacheTTL = 5 * time.Minute
)

// Cache is an optional Redis read-through cache for product lookups, hiding
// the ecom API's cold-start latency on repeated queries. A nil *Cache is
// valid and always fetches.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCache creates a tool result cache on an existing Redis client.
func NewCache(client *redis.Client, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{client: client, ttl: defaultCacheTTL, logger: logger}
}

// GetOrFetch returns the cached value for key, or runs fetch and stores the
// result. Cache failures degrade to a plain fetch.
func (c *Cache) GetOrFetch(ctx context.Context, key string, fetch func() (string, error)) (string, error) {
	if c == nil || c.client == nil {
		return fetch()
	}
	full := cacheKeyPrefix + key
	if val, err := c.client.Get(ctx, full).Result(); err == nil {
		c.logger.Debug("tool cache hit", zap.String("key", key))
		return val, nil
	} else if err != redis.Nil {
		c.logger.Warn("tool cache read failed", zap.String("key", key), zap.Error(err))
	}

	val, err := fetch()
	if err != nil {
		return "", err
	}
	if err := c.client.Set(ctx, full, val, c.ttl).Err(); err != nil {
		c.logger.Warn("tool cache write failed", zap.String("key", key), zap.Error(err))
	}
	return val, nil
}
