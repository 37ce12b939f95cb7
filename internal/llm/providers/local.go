package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ahrav/go-gauntlet/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-gauntlet/internal/llm/errors"
	"github.com/ahrav/go-gauntlet/internal/llm/transport"
)

// LocalAdapter implements ProviderAdapter for a locally managed
// model-serving process. The serving process exposes a single inference
// endpoint: {model_id, prompt, temperature, max_tokens, json_schema?} in,
// {output, usage, latency_ms} out, with HTTP-style status classes for errors.
type LocalAdapter struct {
	config configuration.ProviderConfig
}

// NewLocalAdapter creates an adapter proxying to a local serving process.
func NewLocalAdapter(cfg configuration.ProviderConfig) *LocalAdapter {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:8001"
	}
	return &LocalAdapter{config: cfg}
}

// Name returns the provider name.
func (a *LocalAdapter) Name() string {
	return ProviderLocal
}

// Build constructs the inference request for the local serving process.
func (a *LocalAdapter) Build(ctx context.Context, req *transport.Request) (*http.Request, error) {
	endpoint := fmt.Sprintf("%s/v1/inference", a.config.Endpoint)

	body := map[string]any{
		"model_id":    req.Model,
		"prompt":      req.Prompt,
		"temperature": req.Temperature,
	}

	if req.SystemPrompt != "" {
		body["system_prompt"] = req.SystemPrompt
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	if req.JSONSchema != nil {
		body["json_schema"] = req.JSONSchema
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if a.config.APIKey != "" {
		httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", a.config.APIKey))
	}

	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	return httpReq, nil
}

// Parse extracts normalized data from the local serving process response.
// The process reports success inline; failed inferences surface the error
// field even on 200 responses.
func (a *LocalAdapter) Parse(httpResp *http.Response) (*transport.Response, error) {
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, &llmerrors.ProviderError{
			Provider:   ProviderLocal,
			StatusCode: httpResp.StatusCode,
			Message:    string(body),
			Type:       llmerrors.ClassifyStatus(httpResp.StatusCode, ""),
		}
	}

	var resp struct {
		Success bool   `json:"success"`
		Output  string `json:"output"`
		Error   string `json:"error"`
		Usage   struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
		LatencyMs int64 `json:"latency_ms"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if !resp.Success {
		return nil, &llmerrors.ProviderError{
			Provider:   ProviderLocal,
			StatusCode: httpResp.StatusCode,
			Message:    resp.Error,
			Type:       llmerrors.ErrorTypeProvider,
		}
	}

	total := resp.Usage.PromptTokens + resp.Usage.CompletionTokens

	return &transport.Response{
		Content:   resp.Output,
		LatencyMs: resp.LatencyMs,
		Usage: transport.NormalizedUsage{
			PromptTokens:     int64(resp.Usage.PromptTokens),
			CompletionTokens: int64(resp.Usage.CompletionTokens),
			TotalTokens:      int64(total),
		},
		Headers: httpResp.Header,
	}, nil
}
