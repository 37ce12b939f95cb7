package circuitbreaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	llmerrors "github.com/ahrav/go-gauntlet/internal/llm/errors"
	"github.com/ahrav/go-gauntlet/internal/llm/transport"
)

// Registry holds one breaker per provider, created lazily.
// Breaker state is global per provider, shared across all runs, to reflect
// real upstream health rather than per-run views of it.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      Config
	logger   *slog.Logger
}

// NewRegistry creates a breaker registry with shared configuration.
func NewRegistry(cfg Config, logger *slog.Logger) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		cfg:      cfg,
		logger:   logger,
	}
}

// For returns the breaker for a provider, creating it on first use.
func (r *Registry) For(provider string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[provider]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[provider]; ok {
		return b
	}
	b = NewBreaker(provider, r.cfg, r.logger)
	r.breakers[provider] = b
	return b
}

// Middleware returns a transport middleware that consults the provider's
// breaker before dispatch and feeds outcomes back into it. Only retryable
// provider failures (transient, timeout) count toward opening the breaker;
// auth and validation failures say nothing about provider health.
func Middleware(r *Registry) transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			breaker := r.For(req.Provider)

			release, err := breaker.Allow()
			if err != nil {
				return nil, err
			}
			defer release()

			resp, err := next.Handle(ctx, req)
			switch {
			case err == nil:
				breaker.RecordSuccess()
			case countsAsFailure(err):
				breaker.RecordFailure()
			}
			return resp, err
		})
	}
}

// countsAsFailure reports whether an error should trip the breaker.
// Local rate-limit rejections never reached the provider, so they are
// excluded even though they are retryable.
func countsAsFailure(err error) bool {
	var rlErr *llmerrors.RateLimitError
	if errors.As(err, &rlErr) && rlErr.LocalLimit {
		return false
	}
	return llmerrors.IsRetryableError(err)
}
