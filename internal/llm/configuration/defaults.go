package configuration

import "time"

// Default resilience parameters, aligned with the published rate limits and
// latency characteristics of the hosted providers.
const (
	DefaultHTTPTimeout = 60 * time.Second

	DefaultRetryInitialInterval = 500 * time.Millisecond
	DefaultRetryMaxInterval     = 30 * time.Second
	DefaultRetryMultiplier      = 2.0

	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 1
	DefaultOpenTimeout      = 30 * time.Second
	DefaultHalfOpenProbes   = 1

	DefaultRequestsPerSecond = 10.0
	DefaultBurstSize         = 20

	DefaultCacheTTL = 15 * time.Minute
)

// Default returns a configuration with production-ready defaults.
// Providers must still be populated by the caller.
func Default() Config {
	return Config{
		HTTPTimeout: DefaultHTTPTimeout,
		Providers:   make(map[string]ProviderConfig),
		Retry: RetryConfig{
			InitialInterval: DefaultRetryInitialInterval,
			MaxInterval:     DefaultRetryMaxInterval,
			Multiplier:      DefaultRetryMultiplier,
			UseJitter:       true,
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: DefaultFailureThreshold,
			SuccessThreshold: DefaultSuccessThreshold,
			OpenTimeout:      DefaultOpenTimeout,
			HalfOpenProbes:   DefaultHalfOpenProbes,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: DefaultRequestsPerSecond,
			BurstSize:         DefaultBurstSize,
		},
		Cache: CacheConfig{
			Enabled: false,
			TTL:     DefaultCacheTTL,
		},
	}
}
