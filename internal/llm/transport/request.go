// Package transport provides the request pipeline for provider communication.
// It defines normalized request/response types and a composable middleware
// chain so cross-cutting concerns (rate limiting, circuit breaking, caching,
// logging) stay independent of provider-specific wire formats.
package transport

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Request is a normalized completion request routed to a provider adapter.
// Adapters translate it into their provider's wire format.
type Request struct {
	// Provider selects the adapter ("openai", "anthropic", "google",
	// "together", "local").
	Provider string `json:"provider"`

	// Model is the provider-side model identifier.
	Model string `json:"model"`

	// Prompt is the user prompt to complete.
	Prompt string `json:"prompt"`

	// SystemPrompt is an optional system instruction.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Temperature controls sampling randomness.
	Temperature float64 `json:"temperature"`

	// MaxTokens bounds the completion length.
	MaxTokens int `json:"max_tokens"`

	// JSONSchema requests native structured output when the provider
	// supports it. Advisory: adapters without structured mode ignore it.
	JSONSchema map[string]any `json:"json_schema,omitempty"`

	// Timeout is the per-attempt deadline enforced at the call boundary.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// CacheKey derives a deterministic cache key from the request fields that
// affect the completion. Two requests with the same key are interchangeable.
func (r *Request) CacheKey() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%.4f|%d", r.Provider, r.Model, r.Prompt, r.SystemPrompt, r.Temperature, r.MaxTokens)
	if r.JSONSchema != nil {
		if b, err := json.Marshal(r.JSONSchema); err == nil {
			h.Write(b)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
