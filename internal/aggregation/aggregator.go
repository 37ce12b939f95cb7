// Package aggregation maintains rolling per-(model, category, day)
// statistics over evaluation results. Ingestion is idempotent per result
// id so at-least-once delivery from the coordinator never double-counts,
// and contention is bounded by sharding plus per-bucket locking.
package aggregation

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/ahrav/go-gauntlet/internal/domain"
	"github.com/ahrav/go-gauntlet/internal/storage"
)

// shardCount bounds lock contention across concurrent ingestion.
const shardCount = 16

// bucket holds the live state for one (model, category, day) key.
type bucket struct {
	mu      sync.Mutex
	stat    domain.AggregateStat
	applied map[string]struct{} // result ids already merged
	latency *Histogram
}

// shard is one partition of the bucket map.
type shard struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
}

// Aggregator merges evaluation results into rolling statistics buckets
// and answers leaderboard, stats, and trend queries over them.
type Aggregator struct {
	shards [shardCount]*shard

	// store receives snapshot write-through after each merge; nil
	// disables persistence.
	store  storage.Store
	logger *slog.Logger
}

// New creates an aggregator. store may be nil for purely in-memory use.
func New(store storage.Store, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Aggregator{store: store, logger: logger}
	for i := range a.shards {
		a.shards[i] = &shard{buckets: make(map[string]*bucket)}
	}
	return a
}

// Restore seeds the live buckets from persisted snapshots. Call once at
// startup, before ingestion begins. Replay protection for results merged
// by a previous process comes from the snapshots themselves: a restored
// bucket already contains them, and recovered runs are terminal and never
// re-executed.
func (a *Aggregator) Restore(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	stats, err := a.store.ListAggregates(ctx)
	if err != nil {
		return fmt.Errorf("failed to load aggregate snapshots: %w", err)
	}

	for _, stat := range stats {
		b := a.bucketFor(stat.Key)
		b.mu.Lock()
		restored := *stat
		b.latency = RestoreHistogram(restored.LatencyHistogram, restored.LatencyMaxMs)
		// Histogram state lives outside the in-memory stat; it is
		// reattached on each persisted snapshot.
		restored.LatencyHistogram = nil
		restored.LatencyMaxMs = 0
		b.stat = restored
		b.mu.Unlock()
	}
	if len(stats) > 0 {
		a.logger.Info("restored aggregate snapshots", "buckets", len(stats))
	}
	return nil
}

// Ingest merges one result into its bucket. Safe for concurrent use and
// idempotent: re-delivery of a result id already applied is a no-op.
func (a *Aggregator) Ingest(result *domain.EvaluationResult) {
	key := domain.NewBucketKey(result.ModelID, result.Category, result.CreatedAt)
	b := a.bucketFor(key)

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, seen := b.applied[result.ID]; seen {
		a.logger.Debug("skipping already-applied result",
			"result_id", result.ID, "bucket", key.String())
		return
	}
	b.applied[result.ID] = struct{}{}

	b.stat.Total++
	switch result.Verdict {
	case domain.VerdictPassed:
		b.stat.Passed++
	case domain.VerdictFailed:
		b.stat.Failed++
	default:
		b.stat.Errored++
	}
	b.stat.CostSum += result.CostEstimate

	if result.Scored() {
		score := result.ScoreValue()
		b.stat.ScoreSum += score
		b.stat.ScoreSumSq += score * score

		latency := float64(result.LatencyMs)
		b.stat.LatencySumMs += latency
		b.stat.LatencySumSqMs += latency * latency
		b.latency.Observe(result.LatencyMs)
	}

	if a.store != nil {
		snapshot := b.stat
		snapshot.LatencyHistogram = b.latency.Counts()
		snapshot.LatencyMaxMs = b.latency.Max()
		if err := a.store.MergeAggregate(context.Background(), &snapshot); err != nil {
			a.logger.Error("failed to persist aggregate snapshot",
				"bucket", key.String(), "error", err)
		}
	}
}

// bucketFor returns the live bucket for a key, creating it on first use.
func (a *Aggregator) bucketFor(key domain.BucketKey) *bucket {
	ks := key.String()
	s := a.shards[shardIndex(ks)]

	s.mu.RLock()
	b, ok := s.buckets[ks]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.buckets[ks]; ok {
		return b
	}
	b = &bucket{
		stat:    domain.AggregateStat{Key: key},
		applied: make(map[string]struct{}),
		latency: NewHistogram(),
	}
	s.buckets[ks] = b
	return b
}

// shardIndex maps a bucket key to its shard.
func shardIndex(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % shardCount)
}

// snapshotBuckets copies every bucket matching the filter under its lock.
func (a *Aggregator) snapshotBuckets(match func(domain.BucketKey) bool) []bucketSnapshot {
	var out []bucketSnapshot
	for _, s := range a.shards {
		s.mu.RLock()
		buckets := make([]*bucket, 0, len(s.buckets))
		for _, b := range s.buckets {
			buckets = append(buckets, b)
		}
		s.mu.RUnlock()

		for _, b := range buckets {
			b.mu.Lock()
			if match == nil || match(b.stat.Key) {
				hist := NewHistogram()
				hist.Merge(b.latency)
				out = append(out, bucketSnapshot{stat: b.stat, latency: hist})
			}
			b.mu.Unlock()
		}
	}
	return out
}

// bucketSnapshot is a consistent point-in-time copy of one bucket.
type bucketSnapshot struct {
	stat    domain.AggregateStat
	latency *Histogram
}
