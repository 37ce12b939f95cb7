package aggregation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-gauntlet/internal/domain"
	"github.com/ahrav/go-gauntlet/internal/storage"
)

func scoreOf(v float64) *float64 { return &v }

func resultAt(id, model, category string, verdict domain.Verdict, score float64, latencyMs int64, ts time.Time) *domain.EvaluationResult {
	r := &domain.EvaluationResult{
		ID:        id,
		RunID:     "run-1",
		TargetID:  "target-" + id,
		ModelID:   model,
		Category:  category,
		Verdict:   verdict,
		LatencyMs: latencyMs,
		CreatedAt: ts,
	}
	if verdict == domain.VerdictPassed || verdict == domain.VerdictFailed {
		r.Score = scoreOf(score)
	}
	return r
}

var day = time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC)

func TestAggregator_IngestIsIdempotent(t *testing.T) {
	agg := New(nil, nil)
	result := resultAt("r1", "gpt-4o", "arithmetic", domain.VerdictPassed, 1.0, 100, day)

	// At-least-once delivery: the same result arriving twice counts once.
	agg.Ingest(result)
	agg.Ingest(result)

	stats := agg.Stats(StatsFilter{ModelID: "gpt-4o"})
	require.Len(t, stats, 1)
	assert.Equal(t, int64(1), stats[0].Total)
	assert.Equal(t, int64(1), stats[0].Passed)
	assert.Equal(t, 1.0, stats[0].MeanScore)
}

func TestAggregator_BucketsByModelCategoryAndDay(t *testing.T) {
	agg := New(nil, nil)

	agg.Ingest(resultAt("r1", "gpt-4o", "arithmetic", domain.VerdictPassed, 1.0, 100, day))
	agg.Ingest(resultAt("r2", "gpt-4o", "extraction", domain.VerdictPassed, 1.0, 100, day))
	agg.Ingest(resultAt("r3", "claude", "arithmetic", domain.VerdictPassed, 1.0, 100, day))
	agg.Ingest(resultAt("r4", "gpt-4o", "arithmetic", domain.VerdictFailed, 0.0, 100, day.Add(24*time.Hour)))

	assert.Len(t, agg.Stats(StatsFilter{}), 4)
	assert.Len(t, agg.Stats(StatsFilter{ModelID: "gpt-4o"}), 3)
	assert.Len(t, agg.Stats(StatsFilter{ModelID: "gpt-4o", Category: "arithmetic"}), 2)
	assert.Len(t, agg.Stats(StatsFilter{From: day.Add(24 * time.Hour)}), 1)
}

func TestAggregator_StatsDerivation(t *testing.T) {
	agg := New(nil, nil)

	agg.Ingest(resultAt("r1", "gpt-4o", "arithmetic", domain.VerdictPassed, 1.0, 100, day))
	agg.Ingest(resultAt("r2", "gpt-4o", "arithmetic", domain.VerdictPassed, 0.5, 300, day))
	agg.Ingest(resultAt("r3", "gpt-4o", "arithmetic", domain.VerdictFailed, 0.0, 200, day))
	agg.Ingest(resultAt("r4", "gpt-4o", "arithmetic", domain.VerdictError, 0, 0, day))

	stats := agg.Stats(StatsFilter{ModelID: "gpt-4o"})
	require.Len(t, stats, 1)
	s := stats[0]

	assert.Equal(t, int64(4), s.Total)
	assert.Equal(t, int64(2), s.Passed)
	assert.Equal(t, int64(1), s.Failed)
	assert.Equal(t, int64(1), s.Errored)
	assert.InDelta(t, 0.5, s.MeanScore, 1e-9)
	// Errored results contribute no latency samples.
	assert.InDelta(t, 200.0, s.MeanLatency, 1e-9)
	assert.InDelta(t, 2.0/3.0, s.PassRate, 1e-9)
}

func TestAggregator_WriteThroughPersistsSnapshots(t *testing.T) {
	store := storage.NewMemoryStore()
	agg := New(store, nil)

	agg.Ingest(resultAt("r1", "gpt-4o", "arithmetic", domain.VerdictPassed, 1.0, 100, day))
	agg.Ingest(resultAt("r2", "gpt-4o", "arithmetic", domain.VerdictFailed, 0.0, 200, day))

	snapshots, err := store.ListAggregates(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, int64(2), snapshots[0].Total)
	assert.Equal(t, "gpt-4o", snapshots[0].Key.ModelID)
}

func TestAggregator_RestoreRebuildsFromSnapshots(t *testing.T) {
	store := storage.NewMemoryStore()

	first := New(store, nil)
	first.Ingest(resultAt("r1", "gpt-4o", "arithmetic", domain.VerdictPassed, 1.0, 100, day))
	first.Ingest(resultAt("r2", "gpt-4o", "arithmetic", domain.VerdictPassed, 0.5, 300, day))
	first.Ingest(resultAt("r3", "claude", "arithmetic", domain.VerdictFailed, 0.0, 200, day))

	// A fresh process over the same store picks up where the first left off.
	second := New(store, nil)
	require.NoError(t, second.Restore(context.Background()))

	stats := second.Stats(StatsFilter{ModelID: "gpt-4o"})
	require.Len(t, stats, 1)
	assert.Equal(t, int64(2), stats[0].Total)
	assert.InDelta(t, 0.75, stats[0].MeanScore, 1e-9)
	// Percentile state survives the restart via the persisted histogram.
	assert.Greater(t, stats[0].P95Latency, 100.0)

	entries := second.Leaderboard(LeaderboardQuery{})
	require.Len(t, entries, 2)
	assert.Equal(t, "gpt-4o", entries[0].ModelID)

	// New results merge on top of the restored state.
	second.Ingest(resultAt("r4", "gpt-4o", "arithmetic", domain.VerdictFailed, 0.0, 200, day))
	stats = second.Stats(StatsFilter{ModelID: "gpt-4o"})
	require.Len(t, stats, 1)
	assert.Equal(t, int64(3), stats[0].Total)
	assert.InDelta(t, 0.5, stats[0].MeanScore, 1e-9)
}

func TestAggregator_RestoreWithoutStoreIsNoOp(t *testing.T) {
	agg := New(nil, nil)
	require.NoError(t, agg.Restore(context.Background()))
	assert.Empty(t, agg.Stats(StatsFilter{}))
}

func TestRestoreHistogram(t *testing.T) {
	h := NewHistogram()
	h.Observe(80)
	h.Observe(120)
	h.Observe(450)

	restored := RestoreHistogram(h.Counts(), h.Max())
	assert.Equal(t, h.Count(), restored.Count())
	assert.Equal(t, h.Quantile(0.95), restored.Quantile(0.95))

	// Counts from an incompatible layout are discarded.
	empty := RestoreHistogram([]int64{1, 2, 3}, 450)
	assert.Zero(t, empty.Count())
}

func TestLeaderboard_RanksByScoreThenLatency(t *testing.T) {
	agg := New(nil, nil)

	// claude: mean 0.9; gpt-4o: mean 0.8 but faster; slowpoke: mean 0.8, slower.
	agg.Ingest(resultAt("c1", "claude", "arithmetic", domain.VerdictPassed, 0.9, 400, day))
	agg.Ingest(resultAt("g1", "gpt-4o", "arithmetic", domain.VerdictPassed, 0.8, 100, day))
	agg.Ingest(resultAt("s1", "slowpoke", "arithmetic", domain.VerdictPassed, 0.8, 900, day))

	entries := agg.Leaderboard(LeaderboardQuery{})
	require.Len(t, entries, 3)
	assert.Equal(t, "claude", entries[0].ModelID)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "gpt-4o", entries[1].ModelID)
	assert.Equal(t, "slowpoke", entries[2].ModelID)
}

func TestLeaderboard_MinEvaluationsCutoff(t *testing.T) {
	agg := New(nil, nil)

	for i := 0; i < 5; i++ {
		agg.Ingest(resultAt(string(rune('a'+i)), "veteran", "arithmetic", domain.VerdictPassed, 0.7, 100, day))
	}
	// One lucky evaluation should not top the board.
	agg.Ingest(resultAt("lucky", "newcomer", "arithmetic", domain.VerdictPassed, 1.0, 100, day))

	entries := agg.Leaderboard(LeaderboardQuery{MinEvaluations: 3})
	require.Len(t, entries, 1)
	assert.Equal(t, "veteran", entries[0].ModelID)
	assert.Equal(t, int64(5), entries[0].Evaluations)
}

func TestLeaderboard_CategoryFilterAndLimit(t *testing.T) {
	agg := New(nil, nil)

	agg.Ingest(resultAt("r1", "gpt-4o", "arithmetic", domain.VerdictPassed, 1.0, 100, day))
	agg.Ingest(resultAt("r2", "claude", "arithmetic", domain.VerdictPassed, 0.5, 100, day))
	agg.Ingest(resultAt("r3", "claude", "writing", domain.VerdictPassed, 1.0, 100, day))

	entries := agg.Leaderboard(LeaderboardQuery{Category: "arithmetic"})
	require.Len(t, entries, 2)
	assert.Equal(t, "gpt-4o", entries[0].ModelID)

	limited := agg.Leaderboard(LeaderboardQuery{Limit: 1})
	require.Len(t, limited, 1)
}

func TestTrends_PerDaySeries(t *testing.T) {
	agg := New(nil, nil)

	agg.Ingest(resultAt("r1", "gpt-4o", "arithmetic", domain.VerdictPassed, 1.0, 100, day))
	agg.Ingest(resultAt("r2", "gpt-4o", "arithmetic", domain.VerdictFailed, 0.0, 100, day))
	agg.Ingest(resultAt("r3", "gpt-4o", "arithmetic", domain.VerdictPassed, 1.0, 100, day.Add(48*time.Hour)))
	agg.Ingest(resultAt("r4", "claude", "arithmetic", domain.VerdictPassed, 1.0, 100, day))

	points := agg.Trends("gpt-4o", "arithmetic", time.Time{}, time.Time{})
	require.Len(t, points, 2)

	assert.True(t, points[0].Day.Before(points[1].Day))
	assert.Equal(t, int64(2), points[0].Evaluations)
	assert.InDelta(t, 0.5, points[0].MeanScore, 1e-9)
	assert.Equal(t, int64(1), points[1].Evaluations)
	assert.Equal(t, 1.0, points[1].MeanScore)
}

func TestTrends_WindowFilter(t *testing.T) {
	agg := New(nil, nil)

	agg.Ingest(resultAt("r1", "gpt-4o", "arithmetic", domain.VerdictPassed, 1.0, 100, day))
	agg.Ingest(resultAt("r2", "gpt-4o", "arithmetic", domain.VerdictPassed, 1.0, 100, day.Add(72*time.Hour)))

	points := agg.Trends("gpt-4o", "", day.Add(24*time.Hour), day.Add(96*time.Hour))
	require.Len(t, points, 1)
	assert.Equal(t, day.Add(72*time.Hour).Truncate(24*time.Hour), points[0].Day)
}

func TestHistogram_Quantiles(t *testing.T) {
	h := NewHistogram()
	for _, ms := range []int64{10, 20, 30, 40, 50, 100, 200, 300, 400, 5000} {
		h.Observe(ms)
	}

	assert.Equal(t, int64(10), h.Count())

	p50 := h.Quantile(0.50)
	assert.Greater(t, p50, 0.0)
	assert.Less(t, p50, 250.0)

	p99 := h.Quantile(0.99)
	assert.Greater(t, p99, 400.0)

	// Quantiles are monotone.
	assert.LessOrEqual(t, h.Quantile(0.5), h.Quantile(0.9))
	assert.LessOrEqual(t, h.Quantile(0.9), h.Quantile(0.99))
}

func TestHistogram_Empty(t *testing.T) {
	h := NewHistogram()
	assert.Equal(t, 0.0, h.Quantile(0.95))
}

func TestHistogram_Merge(t *testing.T) {
	a, b := NewHistogram(), NewHistogram()
	a.Observe(100)
	b.Observe(900)

	a.Merge(b)
	assert.Equal(t, int64(2), a.Count())
	assert.Greater(t, a.Quantile(0.99), a.Quantile(0.01))
}

func TestAggregator_ConcurrentIngest(t *testing.T) {
	agg := New(nil, nil)

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 100; i++ {
				id := string(rune('a'+g)) + "-" + string(rune('0'+i%10)) + string(rune('0'+i/10))
				agg.Ingest(resultAt(id, "gpt-4o", "arithmetic", domain.VerdictPassed, 1.0, 50, day))
			}
		}(g)
	}
	for g := 0; g < 8; g++ {
		<-done
	}

	stats := agg.Stats(StatsFilter{ModelID: "gpt-4o"})
	require.Len(t, stats, 1)
	assert.Equal(t, int64(800), stats[0].Total)
}
