package domain

import (
	"fmt"
	"time"
)

// BucketKey identifies one rolling statistics bucket.
// Buckets are per (model, category, UTC day); older buckets are never
// deleted, only superseded by newer ones.
type BucketKey struct {
	ModelID  string    `json:"model_id"`
	Category string    `json:"category"`
	Day      time.Time `json:"day"`
}

// NewBucketKey builds the key for a result observed at ts.
func NewBucketKey(modelID, category string, ts time.Time) BucketKey {
	return BucketKey{
		ModelID:  modelID,
		Category: category,
		Day:      ts.UTC().Truncate(24 * time.Hour),
	}
}

// String renders the key for map indexing and diagnostics.
func (k BucketKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.ModelID, k.Category, k.Day.Format("2006-01-02"))
}

// AggregateStat holds the rolling counters for one bucket.
// Counters are additive and idempotent per result id; sums of squares
// support mean/variance derivation without raw-data rescans.
type AggregateStat struct {
	Key BucketKey `json:"key"`

	Total   int64 `json:"total"`
	Passed  int64 `json:"passed"`
	Failed  int64 `json:"failed"`
	Errored int64 `json:"errored"`

	ScoreSum   float64 `json:"score_sum"`
	ScoreSumSq float64 `json:"score_sum_sq"`

	LatencySumMs   float64 `json:"latency_sum_ms"`
	LatencySumSqMs float64 `json:"latency_sum_sq_ms"`

	// LatencyHistogram carries the fixed-bound histogram counters so
	// percentile state survives restarts. Populated on persisted
	// snapshots by the aggregator; derivation methods ignore it.
	LatencyHistogram []int64 `json:"latency_histogram,omitempty"`
	LatencyMaxMs     int64   `json:"latency_max_ms,omitempty"`

	CostSum float64 `json:"cost_sum"`
}

// ScoredCount returns the number of results contributing scores
// (passed + failed; error/timeout results carry no score).
func (s *AggregateStat) ScoredCount() int64 {
	return s.Passed + s.Failed
}

// MeanScore returns the mean score across scored results.
func (s *AggregateStat) MeanScore() float64 {
	n := s.ScoredCount()
	if n == 0 {
		return 0
	}
	return s.ScoreSum / float64(n)
}

// ScoreVariance returns the population variance of scores.
func (s *AggregateStat) ScoreVariance() float64 {
	n := s.ScoredCount()
	if n == 0 {
		return 0
	}
	mean := s.ScoreSum / float64(n)
	variance := s.ScoreSumSq/float64(n) - mean*mean
	if variance < 0 {
		// Floating point drift can push tiny variances below zero.
		return 0
	}
	return variance
}

// PassRate returns the fraction of scored results that passed.
func (s *AggregateStat) PassRate() float64 {
	n := s.ScoredCount()
	if n == 0 {
		return 0
	}
	return float64(s.Passed) / float64(n)
}

// MeanLatencyMs returns the mean latency across scored results.
func (s *AggregateStat) MeanLatencyMs() float64 {
	n := s.ScoredCount()
	if n == 0 {
		return 0
	}
	return s.LatencySumMs / float64(n)
}

// CostPerEvaluation returns the mean advisory cost across all results.
func (s *AggregateStat) CostPerEvaluation() float64 {
	if s.Total == 0 {
		return 0
	}
	return s.CostSum / float64(s.Total)
}
