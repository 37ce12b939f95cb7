// Package service exposes the evaluation system's outward API: run
// submission and lifecycle, catalog registration, and analytics queries.
// It composes the coordinator, aggregator, and store behind one surface
// so transports (CLI today, HTTP later) stay thin.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/ahrav/go-gauntlet/internal/aggregation"
	"github.com/ahrav/go-gauntlet/internal/coordinator"
	"github.com/ahrav/go-gauntlet/internal/domain"
	"github.com/ahrav/go-gauntlet/internal/storage"
)

// Service is the application facade over the evaluation core.
type Service struct {
	store       storage.Store
	coordinator *coordinator.Coordinator
	aggregator  *aggregation.Aggregator
	logger      *slog.Logger
}

// New assembles the service from its components.
func New(
	store storage.Store,
	coord *coordinator.Coordinator,
	agg *aggregation.Aggregator,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, coordinator: coord, aggregator: agg, logger: logger}
}

// RegisterTestCase validates and stores a test case definition.
func (s *Service) RegisterTestCase(ctx context.Context, tc *domain.TestCase) error {
	if err := tc.Validate(); err != nil {
		return err
	}
	return s.store.PutTestCase(ctx, tc)
}

// RegisterTarget stores a model target definition.
func (s *Service) RegisterTarget(ctx context.Context, target *domain.ModelTarget) error {
	return s.store.PutTarget(ctx, target)
}

// SubmitRun starts evaluating a test case against the given targets and
// returns the run ID.
func (s *Service) SubmitRun(ctx context.Context, testCaseID string, targetIDs []string) (string, error) {
	return s.coordinator.SubmitRun(ctx, testCaseID, targetIDs)
}

// RunStatus is the poller's view of a run: overall progress plus the
// per-target task breakdown.
type RunStatus struct {
	Run     *domain.Run    `json:"run"`
	Targets []TargetStatus `json:"targets"`
}

// TargetStatus reports one target's task state within a run.
type TargetStatus struct {
	TargetID  string            `json:"target_id"`
	Status    domain.TaskStatus `json:"status"`
	Attempts  int               `json:"attempts"`
	LastError string            `json:"last_error,omitempty"`
}

// GetRunStatus returns the current state of a run and every target's task
// status, so pollers can see which targets are still queued or running
// mid-run.
func (s *Service) GetRunStatus(ctx context.Context, runID string) (*RunStatus, error) {
	run, err := s.coordinator.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTasks(ctx, runID)
	if err != nil {
		return nil, err
	}

	targets := make([]TargetStatus, 0, len(tasks))
	for _, task := range tasks {
		targets = append(targets, TargetStatus{
			TargetID:  task.TargetID,
			Status:    task.Status,
			Attempts:  task.Attempts,
			LastError: task.LastError,
		})
	}
	return &RunStatus{Run: run, Targets: targets}, nil
}

// CancelRun requests cooperative cancellation of a run.
func (s *Service) CancelRun(ctx context.Context, runID string) error {
	return s.coordinator.CancelRun(ctx, runID)
}

// ListResults returns the persisted results for a run.
func (s *Service) ListResults(ctx context.Context, runID string) ([]*domain.EvaluationResult, error) {
	return s.store.ListResults(ctx, runID)
}

// WaitForRun polls until the run reaches a terminal status or ctx
// expires. Poll interval is fixed and short; this exists for CLI use.
func (s *Service) WaitForRun(ctx context.Context, runID string) (*domain.Run, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		run, err := s.coordinator.GetRun(ctx, runID)
		if err != nil {
			return nil, err
		}
		if run.Status.Terminal() {
			return run, nil
		}
		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-ticker.C:
		}
	}
}

// GetAggregateStats returns derived bucket statistics matching the filter.
func (s *Service) GetAggregateStats(filter aggregation.StatsFilter) []aggregation.BucketStats {
	return s.aggregator.Stats(filter)
}

// Leaderboard ranks models over the queried window.
func (s *Service) Leaderboard(query aggregation.LeaderboardQuery) []aggregation.LeaderboardEntry {
	return s.aggregator.Leaderboard(query)
}

// Trends returns a model's per-day performance series.
func (s *Service) Trends(modelID, category string, from, to time.Time) []aggregation.TrendPoint {
	return s.aggregator.Trends(modelID, category, from, to)
}

// DegradedProviders lists providers flagged by fatal auth failures.
func (s *Service) DegradedProviders() []string {
	return s.coordinator.DegradedProviders()
}
