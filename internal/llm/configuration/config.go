// Package configuration holds client configuration for provider access.
// Includes provider credentials, resilience parameters, and cache options,
// with struct-tag validation so misconfiguration fails at startup instead
// of mid-run.
package configuration

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds comprehensive configuration for the provider client.
type Config struct {
	// HTTPTimeout bounds the shared HTTP client; per-attempt deadlines
	// are enforced separately on the request context.
	HTTPTimeout time.Duration `json:"http_timeout" yaml:"http_timeout" validate:"gt=0"`

	// Providers maps provider names to their configuration.
	Providers map[string]ProviderConfig `json:"providers" yaml:"providers" validate:"required,min=1,dive"`

	// Retry controls backoff timing for the coordinator's retry loop.
	Retry RetryConfig `json:"retry" yaml:"retry"`

	// CircuitBreaker controls per-provider breaker behavior.
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`

	// RateLimit is the default per-provider bucket configuration.
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`

	// RateLimitOverrides customizes buckets for specific providers.
	RateLimitOverrides map[string]RateLimitConfig `json:"rate_limit_overrides,omitempty" yaml:"rate_limit_overrides,omitempty"`

	// Cache controls the optional Redis response cache.
	Cache CacheConfig `json:"cache" yaml:"cache"`
}

// ProviderConfig holds provider-specific configuration and authentication.
type ProviderConfig struct {
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// APIKey is resolved from APIKeyEnv at load time; never serialized.
	APIKey    string `json:"-" yaml:"-"`
	APIKeyEnv string `json:"api_key_env" yaml:"api_key_env"`

	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// RetryConfig controls backoff timing for failed provider attempts.
type RetryConfig struct {
	InitialInterval time.Duration `json:"initial_interval" yaml:"initial_interval" validate:"gt=0"`
	MaxInterval     time.Duration `json:"max_interval" yaml:"max_interval" validate:"gt=0"`
	Multiplier      float64       `json:"multiplier" yaml:"multiplier" validate:"gte=1"`
	UseJitter       bool          `json:"use_jitter" yaml:"use_jitter"`
}

// CircuitBreakerConfig controls breaker thresholds and recovery timing.
type CircuitBreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold" yaml:"failure_threshold" validate:"gt=0"`
	SuccessThreshold int           `json:"success_threshold" yaml:"success_threshold" validate:"gt=0"`
	OpenTimeout      time.Duration `json:"open_timeout" yaml:"open_timeout" validate:"gt=0"`
	HalfOpenProbes   int           `json:"half_open_probes" yaml:"half_open_probes" validate:"gt=0"`
}

// RateLimitConfig sizes a provider's token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" validate:"gt=0"`
	BurstSize         int     `json:"burst_size" yaml:"burst_size" validate:"gt=0"`
}

// CacheConfig controls Redis-based response caching.
type CacheConfig struct {
	Enabled       bool          `json:"enabled" yaml:"enabled"`
	TTL           time.Duration `json:"ttl" yaml:"ttl"`
	RedisAddr     string        `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword string        `json:"-" yaml:"-"`
	RedisDB       int           `json:"redis_db" yaml:"redis_db"`
}

var validate = validator.New()

// Validate checks configuration invariants, returning the first violation.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Cache.Enabled && c.Cache.RedisAddr == "" {
		return fmt.Errorf("invalid configuration: cache enabled without redis_addr")
	}
	return nil
}

// ResolveAPIKeys loads provider API keys from the environment variables
// named in each provider's APIKeyEnv. Missing variables leave the key
// empty; the provider will fail with an auth error on first use, which is
// visible and attributable rather than a silent config gap.
func (c *Config) ResolveAPIKeys() {
	for name, pc := range c.Providers {
		if pc.APIKeyEnv != "" && pc.APIKey == "" {
			pc.APIKey = os.Getenv(pc.APIKeyEnv)
			c.Providers[name] = pc
		}
	}
}
