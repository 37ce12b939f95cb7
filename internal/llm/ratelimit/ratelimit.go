// Package ratelimit enforces per-provider request rate limits.
// Each provider gets an independent token bucket sized to its published
// rate limit, shared across all runs targeting that provider. Saturated
// buckets fail fast with retry guidance so callers can requeue work
// instead of blocking a worker.
package ratelimit

import (
	"context"
	"math"
	"sync"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-gauntlet/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-gauntlet/internal/llm/errors"
	"github.com/ahrav/go-gauntlet/internal/llm/transport"
)

// Limiter tracks per-provider token buckets.
// Safe for concurrent use; buckets are created lazily on first request.
type Limiter struct {
	mu       sync.RWMutex
	buckets  map[string]*rate.Limiter
	defaults configuration.RateLimitConfig
	perProv  map[string]configuration.RateLimitConfig
}

// NewLimiter creates a limiter with the given default bucket configuration
// and optional per-provider overrides.
func NewLimiter(defaults configuration.RateLimitConfig, perProvider map[string]configuration.RateLimitConfig) *Limiter {
	return &Limiter{
		buckets:  make(map[string]*rate.Limiter),
		defaults: defaults,
		perProv:  perProvider,
	}
}

// Allow consumes one token from the provider's bucket, failing fast with a
// RateLimitError carrying retry guidance when the bucket is empty. The
// reservation used to compute the delay is cancelled so failed requests do
// not leak bucket capacity.
func (l *Limiter) Allow(provider string) error {
	bucket := l.getOrCreate(provider)

	if bucket.Allow() {
		return nil
	}

	reservation := bucket.Reserve()
	delay := reservation.Delay()
	reservation.Cancel()

	// Minimum 1-second retry to prevent tight requeue loops.
	retryAfter := int(math.Ceil(delay.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}

	cfg := l.configFor(provider)
	return &llmerrors.RateLimitError{
		Provider:   provider,
		RetryAfter: retryAfter,
		Limit:      int(cfg.RequestsPerSecond),
		LocalLimit: true,
	}
}

func (l *Limiter) configFor(provider string) configuration.RateLimitConfig {
	if cfg, ok := l.perProv[provider]; ok {
		return cfg
	}
	return l.defaults
}

func (l *Limiter) getOrCreate(provider string) *rate.Limiter {
	l.mu.RLock()
	bucket, ok := l.buckets[provider]
	l.mu.RUnlock()
	if ok {
		return bucket
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if bucket, ok = l.buckets[provider]; ok {
		return bucket
	}

	cfg := l.configFor(provider)
	bucket = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize)
	l.buckets[provider] = bucket
	return bucket
}

// Middleware returns a transport middleware that enforces the limiter
// before forwarding requests to the provider.
func Middleware(l *Limiter) transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if err := l.Allow(req.Provider); err != nil {
				return nil, err
			}
			return next.Handle(ctx, req)
		})
	}
}
