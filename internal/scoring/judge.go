package scoring

import (
	"context"
	"fmt"

	"github.com/ahrav/go-gauntlet/internal/domain"
	"github.com/ahrav/go-gauntlet/internal/llm/transport"
)

// judgeSystemPrompt instructs the judge model to emit a machine-readable
// verdict. The judge's own output goes back through the same parsing
// pipeline as candidate responses.
const judgeSystemPrompt = `You are an impartial evaluator. Grade the candidate response against the rubric.
Respond with a JSON object only: {"score": <0.0-1.0>, "pass": <true|false>, "rationale": "<short explanation>"}`

// judgeMaxTokens bounds judge completions; verdicts are short.
const judgeMaxTokens = 512

// judgeVerdict is the structured verdict expected from the judge model.
type judgeVerdict struct {
	Score     float64 `json:"score"`
	Pass      bool    `json:"pass"`
	Rationale string  `json:"rationale"`
}

// scoreWithJudge grades a response using the designated judge model.
// Judge-call failures and missing verdicts return errors rather than
// failed outcomes: an unavailable judge says nothing about the candidate.
func (s *Scorer) scoreWithJudge(ctx context.Context, tc *domain.TestCase, raw string, parsed any) (*Outcome, error) {
	prompt := fmt.Sprintf(
		"Rubric:\n%s\n\nOriginal prompt:\n%s\n\nCandidate response:\n%s",
		tc.Config.JudgeRubric, tc.Prompt, raw)

	resp, err := s.client.Complete(ctx, &transport.Request{
		Provider:     tc.Config.JudgeProvider,
		Model:        tc.Config.JudgeModel,
		Prompt:       prompt,
		SystemPrompt: judgeSystemPrompt,
		Temperature:  0,
		MaxTokens:    judgeMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("judge call failed: %w", err)
	}

	verdict, err := parseJudgeVerdict(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("judge verdict unusable: %w", err)
	}

	outcome := &Outcome{
		Score:     verdict.Score,
		Parsed:    parsed,
		Rationale: verdict.Rationale,
	}
	if verdict.Pass {
		outcome.Verdict = domain.VerdictPassed
	} else {
		outcome.Verdict = domain.VerdictFailed
		outcome.Diagnostic = verdict.Rationale
	}
	return outcome, nil
}

// parseJudgeVerdict extracts and validates the judge's structured verdict.
func parseJudgeVerdict(content string) (*judgeVerdict, error) {
	parsed, structured := ParseResponse(content)
	if !structured {
		return nil, fmt.Errorf("judge response is not structured: %.80q", content)
	}

	obj, ok := parsed.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("judge response is not a JSON object")
	}

	scoreRaw, ok := toFloat(obj["score"])
	if !ok {
		return nil, fmt.Errorf("judge response missing numeric score")
	}
	if scoreRaw < 0 || scoreRaw > 1 {
		return nil, fmt.Errorf("judge score %v outside [0,1]", scoreRaw)
	}

	pass, ok := obj["pass"].(bool)
	if !ok {
		return nil, fmt.Errorf("judge response missing pass flag")
	}

	rationale, _ := obj["rationale"].(string)

	return &judgeVerdict{Score: scoreRaw, Pass: pass, Rationale: rationale}, nil
}
