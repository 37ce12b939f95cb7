// Package domain provides the core types for the evaluation system.
// It defines test cases, model targets, runs, tasks, results, and rolling
// aggregates, along with the state machines that govern their lifecycles.
// The types are designed for reproducible, auditable evaluations.
package domain

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// EvaluationStrategy identifies how a model response is scored.
// The strategy set is closed; adding a strategy is a deliberate schema
// change, not an extension point.
type EvaluationStrategy string

const (
	// StrategyExactMatch compares normalized output to an expected value.
	StrategyExactMatch EvaluationStrategy = "exact_match"

	// StrategyStructuredMatch validates parsed output against a schema
	// with per-field tolerance rules.
	StrategyStructuredMatch EvaluationStrategy = "structured_match"

	// StrategyLLMJudge grades the response with a designated judge model.
	StrategyLLMJudge EvaluationStrategy = "llm_judge"
)

// Valid reports whether the strategy is a known member of the closed set.
func (s EvaluationStrategy) Valid() bool {
	switch s {
	case StrategyExactMatch, StrategyStructuredMatch, StrategyLLMJudge:
		return true
	default:
		return false
	}
}

// FieldSpec declares one required field for structured matching.
type FieldSpec struct {
	// Name is the JSON field name.
	Name string `json:"name" validate:"required"`

	// Type constrains the field's JSON type: "string", "number",
	// "boolean", "array", or "object". Empty means any type.
	Type string `json:"type,omitempty"`

	// Expected is the value to compare against, when set.
	Expected any `json:"expected,omitempty"`

	// Ordered marks array fields whose element order is significant.
	// Unordered arrays compare as multisets.
	Ordered bool `json:"ordered,omitempty"`
}

// StrategyConfig carries the per-strategy scoring parameters.
type StrategyConfig struct {
	// CaseInsensitive relaxes exact_match comparison. Comparison is
	// case-sensitive by default.
	CaseInsensitive bool `json:"case_insensitive,omitempty"`

	// NumericTolerance is the absolute tolerance for numeric comparison
	// in structured_match.
	NumericTolerance float64 `json:"numeric_tolerance,omitempty" validate:"gte=0"`

	// RequiredFields lists the checks for structured_match.
	RequiredFields []FieldSpec `json:"required_fields,omitempty" validate:"dive"`

	// PassThreshold is the minimum structured_match score for a passed
	// verdict. Defaults to 1.0: every check must pass. The continuous
	// score is recorded regardless of the threshold outcome.
	PassThreshold float64 `json:"pass_threshold,omitempty" validate:"gte=0,lte=1"`

	// JudgeProvider and JudgeModel designate the judge for llm_judge.
	JudgeProvider string `json:"judge_provider,omitempty"`
	JudgeModel    string `json:"judge_model,omitempty"`

	// JudgeRubric is the grading rubric sent to the judge model.
	JudgeRubric string `json:"judge_rubric,omitempty"`
}

// TestCase is an immutable test definition created by the authoring
// workflow. The core only reads it.
type TestCase struct {
	ID       string `json:"id" validate:"required"`
	Name     string `json:"name"`
	Category string `json:"category" validate:"required"`

	// Prompt is the prompt template sent to each target.
	Prompt string `json:"prompt" validate:"required"`

	// SystemPrompt is an optional system instruction.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Strategy selects the scoring strategy.
	Strategy EvaluationStrategy `json:"strategy" validate:"required"`

	// Expected describes the expected output. For exact_match this is
	// the expected string or JSON value; for structured_match the
	// RequiredFields in Config drive comparison.
	Expected any `json:"expected,omitempty"`

	// Config holds strategy-specific parameters.
	Config StrategyConfig `json:"config"`

	// OutputSchema optionally requests native structured output from
	// providers that support it.
	OutputSchema map[string]any `json:"output_schema,omitempty"`
}

var validate = validator.New()

// Validate checks the test case for structural and strategy consistency.
func (tc *TestCase) Validate() error {
	if err := validate.Struct(tc); err != nil {
		return fmt.Errorf("invalid test case: %w", err)
	}
	if !tc.Strategy.Valid() {
		return fmt.Errorf("invalid test case: unknown strategy %q", tc.Strategy)
	}
	switch tc.Strategy {
	case StrategyExactMatch:
		if tc.Expected == nil {
			return fmt.Errorf("invalid test case: exact_match requires an expected value")
		}
	case StrategyStructuredMatch:
		if len(tc.Config.RequiredFields) == 0 {
			return fmt.Errorf("invalid test case: structured_match requires required_fields")
		}
	case StrategyLLMJudge:
		if tc.Config.JudgeProvider == "" || tc.Config.JudgeModel == "" {
			return fmt.Errorf("invalid test case: llm_judge requires a judge provider and model")
		}
		if tc.Config.JudgeRubric == "" {
			return fmt.Errorf("invalid test case: llm_judge requires a rubric")
		}
	}
	return nil
}

// EffectivePassThreshold returns the configured pass threshold, defaulting
// to 1.0 when unset.
func (c StrategyConfig) EffectivePassThreshold() float64 {
	if c.PassThreshold <= 0 {
		return 1.0
	}
	return c.PassThreshold
}
