package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	llmerrors "github.com/ahrav/go-gauntlet/internal/llm/errors"
	"github.com/ahrav/go-gauntlet/internal/llm/transport"
)

// NewLoggingMiddleware creates observability middleware with structured
// logging. Every request gets a trace id; completions log latency, token
// usage, and cache disposition, while failures log the classified error
// type so operator timelines can be reconstructed per provider.
func NewLoggingMiddleware(logger *slog.Logger) transport.Middleware {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			traceID := uuid.NewString()
			start := time.Now()

			logger.Debug("provider request started",
				"trace_id", traceID,
				"provider", req.Provider,
				"model", req.Model,
				"max_tokens", req.MaxTokens)

			resp, err := next.Handle(ctx, req)
			elapsed := time.Since(start)

			if err != nil {
				logger.Warn("provider request failed",
					"trace_id", traceID,
					"provider", req.Provider,
					"model", req.Model,
					"error_type", classify(err),
					"elapsed_ms", elapsed.Milliseconds(),
					"error", err)
				return nil, err
			}

			logger.Info("provider request completed",
				"trace_id", traceID,
				"provider", req.Provider,
				"model", req.Model,
				"latency_ms", resp.LatencyMs,
				"total_tokens", resp.Usage.TotalTokens,
				"from_cache", resp.FromCache)

			return resp, nil
		})
	}
}

// classify extracts the taxonomy type from an error for log dimensions.
func classify(err error) string {
	var provErr *llmerrors.ProviderError
	if errors.As(err, &provErr) {
		return string(provErr.Type)
	}
	if llmerrors.IsRetryableError(err) {
		return string(llmerrors.ErrorTypeProvider)
	}
	return string(llmerrors.ErrorTypeUnknown)
}
