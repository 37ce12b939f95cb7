package coordinator

import (
	"math/rand/v2"
	"time"

	"github.com/ahrav/go-gauntlet/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-gauntlet/internal/llm/errors"
)

// ExponentialBackoff calculates the retry delay for an attempt using
// exponential growth capped at MaxInterval, with optional full jitter.
// Thread-safe via math/rand/v2. Returns zero for non-positive attempts.
func ExponentialBackoff(attempt int, cfg configuration.RetryConfig) time.Duration {
	if attempt <= 0 {
		return 0
	}

	backoff := cfg.InitialInterval
	if backoff <= 0 {
		backoff = time.Millisecond // Minimum 1ms to prevent hot loop.
	}
	for i := 1; i < attempt; i++ {
		multiplier := cfg.Multiplier
		if multiplier < 1.0 {
			multiplier = 1.0
		}
		backoff = time.Duration(float64(backoff) * multiplier)
		if backoff > cfg.MaxInterval {
			backoff = cfg.MaxInterval
			break
		}
	}

	if cfg.UseJitter {
		// Full jitter: random between 0 and the calculated backoff.
		jitterMs := rand.Int64N(backoff.Milliseconds() + 1) // #nosec G404 -- non-cryptographic jitter is appropriate here
		return time.Duration(jitterMs) * time.Millisecond
	}
	return backoff
}

// retryDelay computes the wait before the next attempt. Provider-supplied
// Retry-After guidance takes precedence over exponential backoff when
// present and reasonable.
func retryDelay(attempt int, err error, cfg configuration.RetryConfig) time.Duration {
	backoff := ExponentialBackoff(attempt, cfg)

	if seconds := llmerrors.GetRetryAfter(err); seconds > 0 {
		retryAfter := time.Duration(seconds) * time.Second
		if retryAfter <= cfg.MaxInterval {
			return retryAfter
		}
	}
	return backoff
}

// jitteredRequeueDelay computes the wait before a locally rate-limited
// task re-enters the queue. Full jitter spreads requeues so a saturated
// provider's tasks don't stampede back at once.
func jitteredRequeueDelay(base, maxDelay time.Duration, retryAfterSeconds int) time.Duration {
	if retryAfterSeconds > 0 {
		suggested := time.Duration(retryAfterSeconds) * time.Second
		if suggested > base {
			base = suggested
		}
	}
	if base > maxDelay {
		base = maxDelay
	}
	jitterMs := rand.Int64N(base.Milliseconds() + 1) // #nosec G404 -- non-cryptographic jitter is appropriate here
	return time.Duration(jitterMs) * time.Millisecond
}
