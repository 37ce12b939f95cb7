package errors

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
)

// ServerErrorStatusThreshold defines the HTTP status code threshold for server errors.
const ServerErrorStatusThreshold = 500

// ClassifyStatus determines the ErrorType from an HTTP status and an optional
// provider error code. Provider-specific codes take precedence over status
// codes since providers sometimes return misleading statuses.
func ClassifyStatus(statusCode int, errorCode string) ErrorType {
	lowerCode := strings.ToLower(errorCode)
	switch {
	case strings.Contains(lowerCode, "rate") || strings.Contains(lowerCode, "limit"):
		return ErrorTypeRateLimit
	case strings.Contains(lowerCode, "timeout"):
		return ErrorTypeTimeout
	case strings.Contains(lowerCode, "auth") || strings.Contains(lowerCode, "unauthorized"):
		return ErrorTypeAuth
	case strings.Contains(lowerCode, "permission") || strings.Contains(lowerCode, "forbidden"):
		return ErrorTypePermission
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case http.StatusUnauthorized:
		return ErrorTypeAuth
	case http.StatusForbidden:
		return ErrorTypePermission
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ErrorTypeTimeout
	case http.StatusBadRequest:
		return ErrorTypeValidation
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return ErrorTypeProvider
	default:
		if statusCode >= ServerErrorStatusThreshold {
			return ErrorTypeProvider
		}
		return ErrorTypeUnknown
	}
}

// ClassifyTransportError converts low-level HTTP client failures into the
// taxonomy. Context expiry maps to timeout; everything else from the network
// stack is a retryable network error.
func ClassifyTransportError(provider string, err error) *ProviderError {
	errType := ErrorTypeNetwork
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		errType = ErrorTypeTimeout
	case errors.Is(err, context.Canceled):
		errType = ErrorTypeUnknown
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			errType = ErrorTypeTimeout
		}
	}

	return &ProviderError{
		Provider: provider,
		Message:  err.Error(),
		Type:     errType,
	}
}
