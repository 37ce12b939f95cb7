package providers

import (
	"github.com/ahrav/go-gauntlet/internal/llm/configuration"
)

// NewTogetherAdapter creates an adapter for Together's hosted open models.
// Together exposes an OpenAI-compatible chat/completions API, so the adapter
// reuses the OpenAI request and response handling with Together's endpoint
// and provider identity.
func NewTogetherAdapter(cfg configuration.ProviderConfig) *OpenAIAdapter {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.together.xyz/v1"
	}
	return &OpenAIAdapter{name: ProviderTogether, config: cfg}
}
