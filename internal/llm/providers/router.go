// Package providers implements adapters for heterogeneous model backends.
// Each adapter translates the normalized transport request into its
// provider's wire format and maps error responses into the shared taxonomy.
package providers

import (
	"fmt"

	"github.com/ahrav/go-gauntlet/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-gauntlet/internal/llm/errors"
	"github.com/ahrav/go-gauntlet/internal/llm/transport"
)

// Supported provider identifiers.
// These constants must match the provider names used in configuration.
const (
	ProviderOpenAI    = "openai"    // OpenAI GPT models
	ProviderAnthropic = "anthropic" // Anthropic Claude models
	ProviderGoogle    = "google"    // Google Gemini models
	ProviderTogether  = "together"  // Together hosted open models
	ProviderLocal     = "local"     // Locally managed model-serving process
)

// NewRouter creates a router with configured provider adapters.
func NewRouter(configs map[string]configuration.ProviderConfig) (transport.Router, error) {
	adapters := make(map[string]transport.ProviderAdapter)

	for name, cfg := range configs {
		var adapter transport.ProviderAdapter
		switch name {
		case ProviderOpenAI:
			adapter = NewOpenAIAdapter(cfg)
		case ProviderAnthropic:
			adapter = NewAnthropicAdapter(cfg)
		case ProviderGoogle:
			adapter = NewGoogleAdapter(cfg)
		case ProviderTogether:
			adapter = NewTogetherAdapter(cfg)
		case ProviderLocal:
			adapter = NewLocalAdapter(cfg)
		default:
			return nil, fmt.Errorf("%w: %s", llmerrors.ErrUnknownProvider, name)
		}
		adapters[name] = adapter
	}

	return &router{adapters: adapters}, nil
}

// router implements transport.Router with a provider adapter registry.
type router struct {
	adapters map[string]transport.ProviderAdapter
}

// Pick selects the adapter for the given provider name.
// Returns an error if the provider is not configured or unknown.
func (r *router) Pick(provider string) (transport.ProviderAdapter, error) {
	adapter, ok := r.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", llmerrors.ErrUnknownProvider, provider)
	}
	return adapter, nil
}
