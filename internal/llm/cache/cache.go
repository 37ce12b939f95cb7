// Package cache provides optional Redis-backed response caching.
// Caching lives in the request pipeline, outside the adapter layer, so
// adapters stay side-effect free. The cache fails open: Redis outages
// degrade to pass-through rather than failing evaluations.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ahrav/go-gauntlet/internal/llm/transport"
)

// keyPrefix namespaces cache entries in shared Redis instances.
const keyPrefix = "gauntlet:completion:"

// RedisClient is the subset of redis.Client the cache uses.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Cache stores normalized provider responses keyed by request content hash.
type Cache struct {
	client RedisClient
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a response cache with the given TTL.
func New(client RedisClient, ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{client: client, ttl: ttl, logger: logger}
}

// Get retrieves a cached response, or nil when absent or on Redis failure.
func (c *Cache) Get(ctx context.Context, key string) *transport.Response {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache read failed, continuing without cache", "error", err)
		}
		return nil
	}

	var resp transport.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Warn("cache entry corrupt, ignoring", "error", err)
		return nil
	}
	return &resp
}

// Put stores a response best-effort; failures are logged and swallowed.
func (c *Cache) Put(ctx context.Context, key string, resp *transport.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, keyPrefix+key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", "error", err)
	}
}

// Middleware returns a transport middleware serving completions from cache
// when an identical request was answered within the TTL. Cached responses
// are marked so downstream consumers can exclude them from latency stats.
func Middleware(c *Cache) transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			key := req.CacheKey()

			if cached := c.Get(ctx, key); cached != nil {
				cached.FromCache = true
				return cached, nil
			}

			resp, err := next.Handle(ctx, req)
			if err != nil {
				return nil, err
			}

			c.Put(ctx, key, resp)
			return resp, nil
		})
	}
}
