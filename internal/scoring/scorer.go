package scoring

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ahrav/go-gauntlet/internal/domain"
	"github.com/ahrav/go-gauntlet/internal/llm"
)

// Scorer evaluates raw model responses against a test case's declared
// strategy. The strategy set is closed: dispatch is an exhaustive switch,
// and adding a strategy is a schema change.
type Scorer struct {
	client llm.Client
}

// NewScorer creates a scorer. The client is only used for llm_judge.
func NewScorer(client llm.Client) *Scorer {
	return &Scorer{client: client}
}

// Score converts a raw response into an outcome for the test case's
// strategy. A non-nil error means no valid verdict could be produced
// (judge unavailable); wrong answers return a failed outcome, not an
// error.
func (s *Scorer) Score(ctx context.Context, tc *domain.TestCase, raw string) (*Outcome, error) {
	parsed, structured := ParseResponse(raw)

	switch tc.Strategy {
	case domain.StrategyExactMatch:
		return scoreExactMatch(tc, parsed), nil
	case domain.StrategyStructuredMatch:
		return scoreStructuredMatch(tc, parsed, structured), nil
	case domain.StrategyLLMJudge:
		return s.scoreWithJudge(ctx, tc, raw, parsed)
	default:
		return nil, fmt.Errorf("unknown evaluation strategy: %s", tc.Strategy)
	}
}

// scoreExactMatch compares the parsed output against the expected value.
// Score is 1.0 or 0.0 only. Comparison is on normalized string forms when
// the expectation is a string, structural equality otherwise.
func scoreExactMatch(tc *domain.TestCase, parsed any) *Outcome {
	caseInsensitive := tc.Config.CaseInsensitive

	if expectedStr, ok := tc.Expected.(string); ok {
		actual := normalizeScalar(parsed)
		expected := strings.TrimSpace(expectedStr)
		if caseInsensitive {
			actual = strings.ToLower(actual)
			expected = strings.ToLower(expected)
		}
		if actual == expected {
			return &Outcome{Verdict: domain.VerdictPassed, Score: 1.0, Parsed: parsed}
		}
		return failed(parsed, fmt.Sprintf("expected %q, got %q", expected, actual))
	}

	if valuesEqual(parsed, tc.Expected, 0) {
		return &Outcome{Verdict: domain.VerdictPassed, Score: 1.0, Parsed: parsed}
	}
	return failed(parsed, fmt.Sprintf("expected %v, got %v", tc.Expected, parsed))
}

// scoreStructuredMatch validates parsed output against the declared
// required fields. Score is the fraction of checks satisfied; verdict is
// passed only at or above the configured threshold.
func scoreStructuredMatch(tc *domain.TestCase, parsed any, structured bool) *Outcome {
	obj, ok := parsed.(map[string]any)
	if !ok || !structured {
		return failed(parsed, "response is not a JSON object")
	}

	total := len(tc.Config.RequiredFields)
	satisfied := 0
	var failures []string

	for _, field := range tc.Config.RequiredFields {
		value, present := obj[field.Name]
		if !present {
			failures = append(failures, fmt.Sprintf("missing field %q", field.Name))
			continue
		}
		if field.Type != "" && !typeMatches(value, field.Type) {
			failures = append(failures, fmt.Sprintf("field %q has wrong type", field.Name))
			continue
		}
		if field.Expected != nil {
			if !fieldValueMatches(value, field, tc.Config.NumericTolerance) {
				failures = append(failures, fmt.Sprintf("field %q value mismatch", field.Name))
				continue
			}
		}
		satisfied++
	}

	score := 1.0
	if total > 0 {
		score = float64(satisfied) / float64(total)
	}

	if score >= tc.Config.EffectivePassThreshold() {
		return &Outcome{Verdict: domain.VerdictPassed, Score: score, Parsed: parsed}
	}
	return &Outcome{
		Verdict:    domain.VerdictFailed,
		Score:      score,
		Parsed:     parsed,
		Diagnostic: strings.Join(failures, "; "),
	}
}

// fieldValueMatches compares one field value against its expectation,
// honoring numeric tolerance and array ordering rules.
func fieldValueMatches(value any, field domain.FieldSpec, tolerance float64) bool {
	if arr, ok := field.Expected.([]any); ok && !field.Ordered {
		actual, ok := value.([]any)
		if !ok {
			return false
		}
		return unorderedEqual(actual, arr, tolerance)
	}
	return valuesEqual(value, field.Expected, tolerance)
}

// valuesEqual compares two JSON values structurally. Numbers compare
// within tolerance; objects and arrays recurse.
func valuesEqual(actual, expected any, tolerance float64) bool {
	if an, aok := toFloat(actual); aok {
		en, eok := toFloat(expected)
		if !eok {
			return false
		}
		return math.Abs(an-en) <= tolerance
	}

	switch e := expected.(type) {
	case string:
		a, ok := actual.(string)
		return ok && a == e
	case bool:
		a, ok := actual.(bool)
		return ok && a == e
	case nil:
		return actual == nil
	case []any:
		a, ok := actual.([]any)
		if !ok || len(a) != len(e) {
			return false
		}
		for i := range e {
			if !valuesEqual(a[i], e[i], tolerance) {
				return false
			}
		}
		return true
	case map[string]any:
		a, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for k, ev := range e {
			av, present := a[k]
			if !present || !valuesEqual(av, ev, tolerance) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// unorderedEqual compares arrays as multisets using greedy matching.
func unorderedEqual(actual, expected []any, tolerance float64) bool {
	if len(actual) != len(expected) {
		return false
	}
	used := make([]bool, len(actual))
	for _, ev := range expected {
		found := false
		for i, av := range actual {
			if used[i] {
				continue
			}
			if valuesEqual(av, ev, tolerance) {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// typeMatches checks a JSON value against a declared type name.
func typeMatches(value any, typeName string) bool {
	switch typeName {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := toFloat(value)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}

// toFloat normalizes JSON numeric representations.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// normalizeScalar renders a parsed value as a normalized string for
// exact_match comparison. Numbers render without trailing zeros so a
// model answering `42` matches the expectation "42".
func normalizeScalar(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case nil:
		return "null"
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}
