package scoring

import (
	"github.com/ahrav/go-gauntlet/internal/domain"
)

// Outcome is the normalized result of scoring one model response.
// Scoring always produces an outcome for responses that arrived; only
// judge/provider unavailability surfaces as an error instead.
type Outcome struct {
	// Verdict is passed or failed. Error and timeout verdicts are
	// assigned by the coordinator, never by the scorer.
	Verdict domain.Verdict

	// Score is the continuous score in [0,1]. Recorded even when the
	// verdict is failed so analytics can use partial credit.
	Score float64

	// Parsed is the output of the parsing pipeline.
	Parsed any

	// Diagnostic explains failed verdicts: missing fields, mismatches,
	// or unparseable output.
	Diagnostic string

	// Rationale carries the judge's explanation under llm_judge.
	Rationale string
}

// failed builds a failed outcome with a diagnostic.
func failed(parsed any, diagnostic string) *Outcome {
	return &Outcome{
		Verdict:    domain.VerdictFailed,
		Score:      0,
		Parsed:     parsed,
		Diagnostic: diagnostic,
	}
}
