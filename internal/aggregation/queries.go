package aggregation

import (
	"sort"
	"time"

	"github.com/ahrav/go-gauntlet/internal/domain"
)

// StatsFilter narrows aggregate queries. Zero values match everything;
// From and To bound the bucket day inclusively.
type StatsFilter struct {
	ModelID  string
	Category string
	From     time.Time
	To       time.Time
}

// matches reports whether a bucket key satisfies the filter.
func (f StatsFilter) matches(key domain.BucketKey) bool {
	if f.ModelID != "" && key.ModelID != f.ModelID {
		return false
	}
	if f.Category != "" && key.Category != f.Category {
		return false
	}
	if !f.From.IsZero() && key.Day.Before(f.From.UTC().Truncate(24*time.Hour)) {
		return false
	}
	if !f.To.IsZero() && key.Day.After(f.To.UTC().Truncate(24*time.Hour)) {
		return false
	}
	return true
}

// BucketStats is one bucket's derived statistics, including latency
// percentile estimates from its histogram.
type BucketStats struct {
	Key         domain.BucketKey `json:"key"`
	Total       int64            `json:"total"`
	Passed      int64            `json:"passed"`
	Failed      int64            `json:"failed"`
	Errored     int64            `json:"errored"`
	MeanScore   float64          `json:"mean_score"`
	Variance    float64          `json:"score_variance"`
	PassRate    float64          `json:"pass_rate"`
	MeanLatency float64          `json:"mean_latency_ms"`
	P50Latency  float64          `json:"p50_latency_ms"`
	P95Latency  float64          `json:"p95_latency_ms"`
	P99Latency  float64          `json:"p99_latency_ms"`
	CostPerEval float64          `json:"cost_per_evaluation"`
}

// Stats returns derived statistics for every bucket matching the filter,
// ordered by bucket key.
func (a *Aggregator) Stats(filter StatsFilter) []BucketStats {
	snapshots := a.snapshotBuckets(filter.matches)

	out := make([]BucketStats, 0, len(snapshots))
	for _, snap := range snapshots {
		s := snap.stat
		out = append(out, BucketStats{
			Key:         s.Key,
			Total:       s.Total,
			Passed:      s.Passed,
			Failed:      s.Failed,
			Errored:     s.Errored,
			MeanScore:   s.MeanScore(),
			Variance:    s.ScoreVariance(),
			PassRate:    s.PassRate(),
			MeanLatency: s.MeanLatencyMs(),
			P50Latency:  snap.latency.Quantile(0.50),
			P95Latency:  snap.latency.Quantile(0.95),
			P99Latency:  snap.latency.Quantile(0.99),
			CostPerEval: s.CostPerEvaluation(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

// LeaderboardQuery selects and sizes a leaderboard.
type LeaderboardQuery struct {
	// Category narrows the board to one category; empty spans all.
	Category string

	// From and To bound the bucket days included, inclusive.
	From time.Time
	To   time.Time

	// MinEvaluations excludes models with too few scored results to
	// rank meaningfully. Defaults to 1.
	MinEvaluations int64

	// Limit caps the number of entries; 0 means unlimited.
	Limit int
}

// LeaderboardEntry is one model's row on a leaderboard.
type LeaderboardEntry struct {
	Rank          int     `json:"rank"`
	ModelID       string  `json:"model_id"`
	Evaluations   int64   `json:"evaluations"`
	MeanScore     float64 `json:"mean_score"`
	PassRate      float64 `json:"pass_rate"`
	MeanLatencyMs float64 `json:"mean_latency_ms"`
	P95LatencyMs  float64 `json:"p95_latency_ms"`
	TotalCost     float64 `json:"total_cost"`
}

// Leaderboard ranks models by mean score, breaking ties with mean
// latency (faster wins). Models below the evaluation cutoff are omitted.
func (a *Aggregator) Leaderboard(query LeaderboardQuery) []LeaderboardEntry {
	minEvals := query.MinEvaluations
	if minEvals <= 0 {
		minEvals = 1
	}
	filter := StatsFilter{Category: query.Category, From: query.From, To: query.To}

	type rollup struct {
		stat    domain.AggregateStat
		latency *Histogram
	}
	byModel := make(map[string]*rollup)

	for _, snap := range a.snapshotBuckets(filter.matches) {
		r, ok := byModel[snap.stat.Key.ModelID]
		if !ok {
			r = &rollup{latency: NewHistogram()}
			r.stat.Key = domain.BucketKey{ModelID: snap.stat.Key.ModelID}
			byModel[snap.stat.Key.ModelID] = r
		}
		r.stat.Total += snap.stat.Total
		r.stat.Passed += snap.stat.Passed
		r.stat.Failed += snap.stat.Failed
		r.stat.Errored += snap.stat.Errored
		r.stat.ScoreSum += snap.stat.ScoreSum
		r.stat.ScoreSumSq += snap.stat.ScoreSumSq
		r.stat.LatencySumMs += snap.stat.LatencySumMs
		r.stat.LatencySumSqMs += snap.stat.LatencySumSqMs
		r.stat.CostSum += snap.stat.CostSum
		r.latency.Merge(snap.latency)
	}

	entries := make([]LeaderboardEntry, 0, len(byModel))
	for modelID, r := range byModel {
		if r.stat.ScoredCount() < minEvals {
			continue
		}
		entries = append(entries, LeaderboardEntry{
			ModelID:       modelID,
			Evaluations:   r.stat.ScoredCount(),
			MeanScore:     r.stat.MeanScore(),
			PassRate:      r.stat.PassRate(),
			MeanLatencyMs: r.stat.MeanLatencyMs(),
			P95LatencyMs:  r.latency.Quantile(0.95),
			TotalCost:     r.stat.CostSum,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].MeanScore != entries[j].MeanScore {
			return entries[i].MeanScore > entries[j].MeanScore
		}
		if entries[i].MeanLatencyMs != entries[j].MeanLatencyMs {
			return entries[i].MeanLatencyMs < entries[j].MeanLatencyMs
		}
		return entries[i].ModelID < entries[j].ModelID
	})

	if query.Limit > 0 && len(entries) > query.Limit {
		entries = entries[:query.Limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// TrendPoint is one day of a model's performance series.
type TrendPoint struct {
	Day           time.Time `json:"day"`
	Evaluations   int64     `json:"evaluations"`
	MeanScore     float64   `json:"mean_score"`
	PassRate      float64   `json:"pass_rate"`
	MeanLatencyMs float64   `json:"mean_latency_ms"`
}

// Trends returns the per-day series for one model, optionally narrowed to
// a category, ordered by day ascending. Days with no results are absent
// rather than zero-filled.
func (a *Aggregator) Trends(modelID, category string, from, to time.Time) []TrendPoint {
	filter := StatsFilter{ModelID: modelID, Category: category, From: from, To: to}

	byDay := make(map[time.Time]*domain.AggregateStat)
	for _, snap := range a.snapshotBuckets(filter.matches) {
		day := snap.stat.Key.Day
		agg, ok := byDay[day]
		if !ok {
			agg = &domain.AggregateStat{Key: domain.BucketKey{ModelID: modelID, Day: day}}
			byDay[day] = agg
		}
		agg.Total += snap.stat.Total
		agg.Passed += snap.stat.Passed
		agg.Failed += snap.stat.Failed
		agg.Errored += snap.stat.Errored
		agg.ScoreSum += snap.stat.ScoreSum
		agg.ScoreSumSq += snap.stat.ScoreSumSq
		agg.LatencySumMs += snap.stat.LatencySumMs
		agg.LatencySumSqMs += snap.stat.LatencySumSqMs
		agg.CostSum += snap.stat.CostSum
	}

	points := make([]TrendPoint, 0, len(byDay))
	for day, agg := range byDay {
		points = append(points, TrendPoint{
			Day:           day,
			Evaluations:   agg.ScoredCount(),
			MeanScore:     agg.MeanScore(),
			PassRate:      agg.PassRate(),
			MeanLatencyMs: agg.MeanLatencyMs(),
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Day.Before(points[j].Day) })
	return points
}
