// Package llm provides the unified client for model provider access.
// The client composes the transport middleware pipeline (logging, caching,
// rate limiting, circuit breaking) around the HTTP core so callers see a
// single Complete/CountTokens surface regardless of provider.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/ahrav/go-gauntlet/internal/llm/cache"
	"github.com/ahrav/go-gauntlet/internal/llm/circuitbreaker"
	"github.com/ahrav/go-gauntlet/internal/llm/configuration"
	"github.com/ahrav/go-gauntlet/internal/llm/providers"
	"github.com/ahrav/go-gauntlet/internal/llm/ratelimit"
	"github.com/ahrav/go-gauntlet/internal/llm/transport"
)

// Client is the provider-facing contract consumed by the coordinator and
// the judge scorer.
type Client interface {
	// Complete sends a completion request through the resilience pipeline.
	Complete(ctx context.Context, req *transport.Request) (*transport.Response, error)

	// CountTokens estimates the token count of text. Best-effort and
	// advisory only; adapters without native tokenizers use a
	// deterministic character-length heuristic.
	CountTokens(text string) int
}

// client implements Client with a composed middleware pipeline.
type client struct {
	handler transport.Handler
}

// New creates a client from configuration. Pipeline order, outermost first:
// logging, cache, rate limiter, circuit breaker, HTTP core. Cache hits
// therefore consume no rate tokens, and the breaker observes only requests
// that actually reached the provider boundary.
func New(cfg configuration.Config, logger *slog.Logger) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	router, err := providers.NewRouter(cfg.Providers)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider router: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	core := transport.NewHTTPHandler(httpClient, router)

	limiter := ratelimit.NewLimiter(cfg.RateLimit, cfg.RateLimitOverrides)
	breakers := circuitbreaker.NewRegistry(circuitbreaker.Config{
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
		OpenTimeout:      cfg.CircuitBreaker.OpenTimeout,
		HalfOpenProbes:   cfg.CircuitBreaker.HalfOpenProbes,
	}, logger)

	middlewares := []transport.Middleware{
		NewLoggingMiddleware(logger),
	}

	if cfg.Cache.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		middlewares = append(middlewares, cache.Middleware(cache.New(redisClient, cfg.Cache.TTL, logger)))
	}

	middlewares = append(middlewares,
		ratelimit.Middleware(limiter),
		circuitbreaker.Middleware(breakers),
	)

	return &client{handler: transport.Chain(core, middlewares...)}, nil
}

// NewWithHandler creates a client over a prebuilt handler.
// Used by tests to substitute fakes below the middleware stack.
func NewWithHandler(h transport.Handler) Client {
	return &client{handler: h}
}

// Complete implements Client.
func (c *client) Complete(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	return c.handler.Handle(ctx, req)
}

// CountTokens implements Client via the deterministic fallback estimator.
func (c *client) CountTokens(text string) int {
	return providers.EstimateTokens(text)
}
