package configuration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Default()
	cfg.Providers["openai"] = ProviderConfig{APIKeyEnv: "OPENAI_API_KEY"}
	return cfg
}

func TestConfig_ValidateDefaults(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestConfig_ValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no providers", func(c *Config) { c.Providers = map[string]ProviderConfig{} }},
		{"zero http timeout", func(c *Config) { c.HTTPTimeout = 0 }},
		{"zero retry interval", func(c *Config) { c.Retry.InitialInterval = 0 }},
		{"multiplier below one", func(c *Config) { c.Retry.Multiplier = 0.5 }},
		{"zero failure threshold", func(c *Config) { c.CircuitBreaker.FailureThreshold = 0 }},
		{"zero rate limit", func(c *Config) { c.RateLimit.RequestsPerSecond = 0 }},
		{"cache without redis addr", func(c *Config) { c.Cache.Enabled = true; c.Cache.RedisAddr = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_ResolveAPIKeys(t *testing.T) {
	t.Setenv("GAUNTLET_TEST_KEY", "sk-from-env")

	cfg := Default()
	cfg.Providers["openai"] = ProviderConfig{APIKeyEnv: "GAUNTLET_TEST_KEY"}
	cfg.Providers["anthropic"] = ProviderConfig{APIKeyEnv: "GAUNTLET_TEST_MISSING"}
	cfg.Providers["local"] = ProviderConfig{}

	cfg.ResolveAPIKeys()
	assert.Equal(t, "sk-from-env", cfg.Providers["openai"].APIKey)
	// Missing variables stay empty; the failure surfaces on first use.
	assert.Empty(t, cfg.Providers["anthropic"].APIKey)
	assert.Empty(t, cfg.Providers["local"].APIKey)
}

func TestConfig_ResolveAPIKeysDoesNotOverwrite(t *testing.T) {
	t.Setenv("GAUNTLET_TEST_KEY", "sk-from-env")

	cfg := Default()
	cfg.Providers["openai"] = ProviderConfig{APIKey: "sk-explicit", APIKeyEnv: "GAUNTLET_TEST_KEY"}
	cfg.ResolveAPIKeys()
	assert.Equal(t, "sk-explicit", cfg.Providers["openai"].APIKey)
}

func TestDefault_Values(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg.Providers)
	assert.Equal(t, 60*time.Second, cfg.HTTPTimeout)
	assert.True(t, cfg.Retry.UseJitter)
	assert.Equal(t, 5, cfg.CircuitBreaker.FailureThreshold)
	assert.False(t, cfg.Cache.Enabled)
}
