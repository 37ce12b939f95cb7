// Package errors defines the error taxonomy for provider operations.
// Errors are classified into retryable and non-retryable kinds so the
// coordinator can decide between retrying with backoff, failing fast,
// and flagging a provider as degraded.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorType categorizes provider operation failures for retry classification.
// Types determine whether operations should be retried and with what backoff
// strategy, enabling resilient handling of transient vs. permanent failures.
type ErrorType string

const (
	// ErrorTypeTimeout indicates request timeout or deadline exceeded (retryable).
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeRateLimit indicates rate limit exceeded, retry with backoff (retryable).
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeNetwork indicates network connectivity issues (retryable).
	ErrorTypeNetwork ErrorType = "network"

	// ErrorTypeProvider indicates provider service unavailable (retryable).
	ErrorTypeProvider ErrorType = "provider_unavailable"

	// ErrorTypeCircuitBreaker indicates circuit breaker protection activated (retryable).
	ErrorTypeCircuitBreaker ErrorType = "circuit_breaker"

	// ErrorTypeAuth indicates authentication failed (non-retryable).
	ErrorTypeAuth ErrorType = "authentication"

	// ErrorTypePermission indicates insufficient permissions (non-retryable).
	ErrorTypePermission ErrorType = "permission_denied"

	// ErrorTypeValidation indicates input validation failed (non-retryable).
	ErrorTypeValidation ErrorType = "validation_failed"

	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = "unknown"
)

// Common provider operation errors for consistent error handling.
var (
	// ErrProviderUnavailable indicates the provider service is down or unreachable.
	ErrProviderUnavailable = errors.New("provider service unavailable")

	// ErrRateLimitExceeded indicates rate limit has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrCircuitBreakerOpen indicates the circuit breaker is open.
	ErrCircuitBreakerOpen = errors.New("circuit breaker open")

	// ErrCacheMiss indicates the requested item was not found in cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrUnknownProvider indicates an unknown or unsupported provider.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrInvalidResponse indicates the provider returned an invalid response.
	ErrInvalidResponse = errors.New("invalid provider response")

	// ErrMaxAttemptsExceeded indicates maximum retry attempts exceeded.
	ErrMaxAttemptsExceeded = errors.New("maximum attempts exceeded")
)

// ProviderError captures structured error responses from model providers.
// Includes HTTP status codes, provider-specific error codes, and retry timing
// to enable appropriate retry behavior and error diagnosis.
type ProviderError struct {
	Provider   string    `json:"provider"`    // Provider name
	StatusCode int       `json:"status_code"` // HTTP status code
	Message    string    `json:"message"`     // Error message
	Code       string    `json:"code"`        // Provider error code
	Type       ErrorType `json:"type"`        // Classified error type
	RetryAfter int       `json:"retry_after"` // Retry-After header value in seconds
}

// Error returns the formatted provider error with status code context.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsRetryable reports whether the provider error warrants a retry attempt.
func (e *ProviderError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeNetwork, ErrorTypeProvider:
		return true
	default:
		return false
	}
}

// IsFatal reports whether the error must not be retried and should flag the
// provider as degraded for operator visibility.
func (e *ProviderError) IsFatal() bool {
	return e.Type == ErrorTypeAuth || e.Type == ErrorTypePermission
}

// GetRetryAfter implements the RetryAfterProvider interface.
func (e *ProviderError) GetRetryAfter() time.Duration {
	if e.RetryAfter > 0 {
		return time.Duration(e.RetryAfter) * time.Second
	}
	return 0
}

// RateLimitError provides detailed rate limit context for backoff calculation.
// Distinguishes local token-bucket limits from remote provider limits so the
// coordinator can requeue instead of burning a retry attempt on local limits.
type RateLimitError struct {
	Provider   string `json:"provider"`
	RetryAfter int    `json:"retry_after"` // Seconds to wait before retry
	Limit      int    `json:"limit"`       // Rate limit
	LocalLimit bool   `json:"local_limit"` // Whether this is a local limit
}

// Error returns the formatted rate limit error with retry guidance.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded for %s, retry after %d seconds", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded for %s", e.Provider)
}

// GetRetryAfter implements the RetryAfterProvider interface.
func (e *RateLimitError) GetRetryAfter() time.Duration {
	if e.RetryAfter > 0 {
		return time.Duration(e.RetryAfter) * time.Second
	}
	return 0
}

// CircuitBreakerError indicates circuit breaker activation for provider
// protection. Provides breaker state and reset timing to enable proper
// fail-fast behavior during provider outages.
type CircuitBreakerError struct {
	Provider string `json:"provider"`
	State    string `json:"state"`    // "open" or "half-open"
	ResetAt  int64  `json:"reset_at"` // Unix timestamp when breaker might close
}

// Error returns the formatted circuit breaker error with state context.
func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker %s for %s", e.State, e.Provider)
}

// IsRetryableError reports whether an error warrants a retry attempt.
// Examines error types, HTTP status codes, and sentinel errors to provide
// consistent retry decisions across all provider operations.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.IsRetryable()
	}

	var rlErr *RateLimitError
	if errors.As(err, &rlErr) {
		return true
	}

	var cbErr *CircuitBreakerError
	if errors.As(err, &cbErr) {
		return true
	}

	if errors.Is(err, ErrRateLimitExceeded) ||
		errors.Is(err, ErrCircuitBreakerOpen) ||
		errors.Is(err, ErrProviderUnavailable) {
		return true
	}

	type statusCoder interface {
		StatusCode() int
	}
	if sc, ok := err.(statusCoder); ok {
		code := sc.StatusCode()
		return code == http.StatusTooManyRequests ||
			code == http.StatusRequestTimeout ||
			code == http.StatusGatewayTimeout ||
			code >= 500
	}

	// Conservative default - avoid retry loops for unknown errors.
	return false
}

// IsAuthError reports whether an error is a fatal credential failure.
// Auth failures are never retried and flag the provider as degraded.
func IsAuthError(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.IsFatal()
	}
	return false
}

// IsTimeoutError reports whether an error represents a deadline expiry,
// either classified by a provider adapter or raised by the context package.
func IsTimeoutError(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Type == ErrorTypeTimeout
	}
	return false
}

// GetRetryAfter extracts retry-after guidance in seconds from rate limit
// errors, or 0 if no specific guidance is available.
func GetRetryAfter(err error) int {
	if err == nil {
		return 0
	}

	var rlErr *RateLimitError
	if errors.As(err, &rlErr) {
		return rlErr.RetryAfter
	}

	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.RetryAfter
	}

	return 0
}
