// Package storage defines the persistence contract consumed by the core.
// Engine internals are out of scope: any transactional key/value or
// relational backend can satisfy this interface. The in-memory
// implementation serves tests and single-process deployments.
package storage

import (
	"context"

	"github.com/ahrav/go-gauntlet/internal/domain"
)

// Store is the persistence contract for runs, tasks, results, and
// aggregate snapshots. Implementations must make PutResult idempotent on
// (run_id, target_id) and MergeAggregate an atomic increment-merge.
type Store interface {
	// Test case and target catalogs, read by the coordinator and
	// written by the external authoring workflow.
	PutTestCase(ctx context.Context, tc *domain.TestCase) error
	GetTestCase(ctx context.Context, id string) (*domain.TestCase, error)
	PutTarget(ctx context.Context, target *domain.ModelTarget) error
	GetTarget(ctx context.Context, id string) (*domain.ModelTarget, error)

	// Run and task lifecycle. Updates must be durable across restarts
	// so an interrupted run can be marked partially_failed on recovery.
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, id string) (*domain.Run, error)
	UpdateRun(ctx context.Context, run *domain.Run) error
	ListActiveRuns(ctx context.Context) ([]*domain.Run, error)

	CreateTasks(ctx context.Context, tasks []*domain.EvaluationTask) error
	UpdateTask(ctx context.Context, task *domain.EvaluationTask) error
	ListTasks(ctx context.Context, runID string) ([]*domain.EvaluationTask, error)

	// PutResult writes a result exactly once per (run_id, target_id).
	// Re-delivery of the same result is a silent no-op; a conflicting
	// write for the pair returns domain.ErrResultExists and never
	// overwrites.
	PutResult(ctx context.Context, result *domain.EvaluationResult) error
	GetResult(ctx context.Context, runID, targetID string) (*domain.EvaluationResult, error)
	ListResults(ctx context.Context, runID string) ([]*domain.EvaluationResult, error)

	// MergeAggregate atomically replaces the snapshot for a bucket.
	// Callers serialize per bucket, so implementations only need
	// per-key atomicity.
	MergeAggregate(ctx context.Context, stat *domain.AggregateStat) error
	ListAggregates(ctx context.Context) ([]*domain.AggregateStat, error)
}
