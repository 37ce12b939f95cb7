package transport

import "net/http"

// NormalizedUsage holds token accounting normalized across providers.
type NormalizedUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`

	// Estimated marks usage derived from the character-length heuristic
	// rather than provider-reported counts. Advisory only.
	Estimated bool `json:"estimated,omitempty"`
}

// Response is a normalized provider response produced by adapter parsing.
type Response struct {
	// Content is the raw completion text.
	Content string `json:"content"`

	// Usage holds normalized token accounting.
	Usage NormalizedUsage `json:"usage"`

	// LatencyMs is the observed round-trip latency in milliseconds.
	LatencyMs int64 `json:"latency_ms"`

	// ProviderRequestID is the provider-assigned request identifier, when
	// the provider reports one, kept for failure timeline reconstruction.
	ProviderRequestID string `json:"provider_request_id,omitempty"`

	// FinishReason is the provider's normalized stop reason.
	FinishReason string `json:"finish_reason,omitempty"`

	// FromCache marks responses served by the cache middleware.
	FromCache bool `json:"from_cache,omitempty"`

	// Headers carries response headers for middleware inspection.
	Headers http.Header `json:"-"`
}
