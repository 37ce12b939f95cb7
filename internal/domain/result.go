package domain

import "time"

// Verdict classifies the outcome of a scored evaluation.
type Verdict string

const (
	// VerdictPassed means the response met the strategy's bar.
	VerdictPassed Verdict = "passed"

	// VerdictFailed means the model responded but the response was
	// wrong: schema violations and unparseable output land here, not in
	// error, because the model did answer.
	VerdictFailed Verdict = "failed"

	// VerdictError means no valid score could be produced: provider,
	// network, or judge failures after exhausting the retry budget.
	VerdictError Verdict = "error"

	// VerdictTimeout means every attempt exceeded its deadline.
	VerdictTimeout Verdict = "timeout"
)

// TokenUsage holds the token accounting for one completion.
type TokenUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// EvaluationResult is the immutable terminal record of a completed task.
// Written exactly once per task with idempotency key (RunID, TargetID);
// never overwritten. Score is nil for error/timeout verdicts where no
// score could be produced.
type EvaluationResult struct {
	ID       string `json:"id"`
	RunID    string `json:"run_id"`
	TargetID string `json:"target_id"`

	// ModelID and Category denormalize the aggregation dimensions so the
	// aggregator needs no lookups at merge time.
	ModelID  string `json:"model_id"`
	Category string `json:"category"`

	Verdict Verdict `json:"verdict"`

	// Score is the normalized score in [0,1], nil when no score could
	// be produced.
	Score *float64 `json:"score,omitempty"`

	// RawOutput is the unmodified model response text.
	RawOutput string `json:"raw_output,omitempty"`

	// ParsedOutput is the output after the parsing pipeline, when any
	// stage succeeded.
	ParsedOutput any `json:"parsed_output,omitempty"`

	// Diagnostic records why a failed verdict was reached (missing
	// fields, mismatches) or the terminal error for error verdicts.
	Diagnostic string `json:"diagnostic,omitempty"`

	// Attempts is the dispatch count recorded from the task.
	Attempts int `json:"attempts"`

	LatencyMs int64      `json:"latency_ms"`
	Usage     TokenUsage `json:"usage"`

	// CostEstimate is the advisory USD cost from target pricing.
	CostEstimate float64 `json:"cost_estimate"`

	// ProviderRequestID supports cross-referencing provider logs.
	ProviderRequestID string `json:"provider_request_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ScoreValue returns the score or 0 when absent.
func (r *EvaluationResult) ScoreValue() float64 {
	if r.Score == nil {
		return 0
	}
	return *r.Score
}

// Scored reports whether the result carries a usable score.
func (r *EvaluationResult) Scored() bool {
	return r.Verdict == VerdictPassed || r.Verdict == VerdictFailed
}
