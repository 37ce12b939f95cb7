package domain

// ModelTarget identifies one evaluatable model behind a provider.
// Targets are looked up by the coordinator and never mutated by the core.
type ModelTarget struct {
	ID string `json:"id" validate:"required"`

	// Provider names the adapter ("openai", "anthropic", "google",
	// "together", "local").
	Provider string `json:"provider" validate:"required"`

	// Model is the provider-side model identifier.
	Model string `json:"model" validate:"required"`

	// DisplayName is the human-readable name for leaderboards.
	DisplayName string `json:"display_name,omitempty"`

	// SupportsStructuredOutput marks targets with native JSON-schema
	// output mode.
	SupportsStructuredOutput bool `json:"supports_structured_output"`

	// MaxContext is the target's context window in tokens.
	MaxContext int `json:"max_context,omitempty"`

	// InputCostPer1K and OutputCostPer1K are USD prices per thousand
	// tokens, used for advisory cost estimates.
	InputCostPer1K  float64 `json:"input_cost_per_1k,omitempty"`
	OutputCostPer1K float64 `json:"output_cost_per_1k,omitempty"`
}

// EstimateCost computes the advisory USD cost of a completion from token
// counts and the target's published prices. Returns 0 when pricing is
// unknown rather than guessing.
func (t *ModelTarget) EstimateCost(promptTokens, completionTokens int64) float64 {
	if t.InputCostPer1K == 0 && t.OutputCostPer1K == 0 {
		return 0
	}
	return float64(promptTokens)/1000*t.InputCostPer1K +
		float64(completionTokens)/1000*t.OutputCostPer1K
}
