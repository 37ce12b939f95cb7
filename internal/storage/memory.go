package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/ahrav/go-gauntlet/internal/domain"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs tests and
// single-process deployments where durability is not required.
type MemoryStore struct {
	mu         sync.RWMutex
	testCases  map[string]*domain.TestCase
	targets    map[string]*domain.ModelTarget
	runs       map[string]*domain.Run
	tasks      map[string]map[string]*domain.EvaluationTask // run ID -> target ID -> task
	results    map[string]map[string]*domain.EvaluationResult
	aggregates map[string]*domain.AggregateStat
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		testCases:  make(map[string]*domain.TestCase),
		targets:    make(map[string]*domain.ModelTarget),
		runs:       make(map[string]*domain.Run),
		tasks:      make(map[string]map[string]*domain.EvaluationTask),
		results:    make(map[string]map[string]*domain.EvaluationResult),
		aggregates: make(map[string]*domain.AggregateStat),
	}
}

var _ Store = (*MemoryStore)(nil)

// PutTestCase registers or replaces a test case.
func (m *MemoryStore) PutTestCase(_ context.Context, tc *domain.TestCase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tc
	m.testCases[tc.ID] = &cp
	return nil
}

// GetTestCase retrieves a test case by ID.
func (m *MemoryStore) GetTestCase(_ context.Context, id string) (*domain.TestCase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tc, ok := m.testCases[id]
	if !ok {
		return nil, domain.ErrTestCaseNotFound
	}
	cp := *tc
	return &cp, nil
}

// PutTarget registers or replaces a model target.
func (m *MemoryStore) PutTarget(_ context.Context, target *domain.ModelTarget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *target
	m.targets[target.ID] = &cp
	return nil
}

// GetTarget retrieves a model target by ID.
func (m *MemoryStore) GetTarget(_ context.Context, id string) (*domain.ModelTarget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.targets[id]
	if !ok {
		return nil, domain.ErrTargetNotFound
	}
	cp := *t
	return &cp, nil
}

// CreateRun stores a new run.
func (m *MemoryStore) CreateRun(_ context.Context, run *domain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

// GetRun retrieves a run by ID.
func (m *MemoryStore) GetRun(_ context.Context, id string) (*domain.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	cp := *run
	return &cp, nil
}

// UpdateRun replaces a stored run.
func (m *MemoryStore) UpdateRun(_ context.Context, run *domain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		return domain.ErrRunNotFound
	}
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

// ListActiveRuns returns runs not yet in a terminal status.
func (m *MemoryStore) ListActiveRuns(_ context.Context) ([]*domain.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var active []*domain.Run
	for _, run := range m.runs {
		if !run.Status.Terminal() {
			cp := *run
			active = append(active, &cp)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].CreatedAt.Before(active[j].CreatedAt) })
	return active, nil
}

// CreateTasks stores the tasks for a run.
func (m *MemoryStore) CreateTasks(_ context.Context, tasks []*domain.EvaluationTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, task := range tasks {
		byTarget, ok := m.tasks[task.RunID]
		if !ok {
			byTarget = make(map[string]*domain.EvaluationTask)
			m.tasks[task.RunID] = byTarget
		}
		cp := *task
		byTarget[task.TargetID] = &cp
	}
	return nil
}

// UpdateTask replaces a stored task.
func (m *MemoryStore) UpdateTask(_ context.Context, task *domain.EvaluationTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byTarget, ok := m.tasks[task.RunID]
	if !ok {
		return domain.ErrRunNotFound
	}
	cp := *task
	byTarget[task.TargetID] = &cp
	return nil
}

// ListTasks returns all tasks for a run.
func (m *MemoryStore) ListTasks(_ context.Context, runID string) ([]*domain.EvaluationTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byTarget := m.tasks[runID]
	tasks := make([]*domain.EvaluationTask, 0, len(byTarget))
	for _, task := range byTarget {
		cp := *task
		tasks = append(tasks, &cp)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].TargetID < tasks[j].TargetID })
	return tasks, nil
}

// PutResult stores a result, once. Re-delivery of the same result is a
// no-op; a different result for an already-recorded (run, target) pair is
// an exactly-once violation and is rejected without overwriting.
func (m *MemoryStore) PutResult(_ context.Context, result *domain.EvaluationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byTarget, ok := m.results[result.RunID]
	if !ok {
		byTarget = make(map[string]*domain.EvaluationResult)
		m.results[result.RunID] = byTarget
	}
	if existing, exists := byTarget[result.TargetID]; exists {
		if existing.ID == result.ID {
			return nil
		}
		return domain.ErrResultExists
	}
	cp := *result
	byTarget[result.TargetID] = &cp
	return nil
}

// GetResult retrieves the result for one (run, target) pair.
func (m *MemoryStore) GetResult(_ context.Context, runID, targetID string) (*domain.EvaluationResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result, ok := m.results[runID][targetID]
	if !ok {
		return nil, domain.ErrResultNotFound
	}
	cp := *result
	return &cp, nil
}

// ListResults returns all results recorded for a run.
func (m *MemoryStore) ListResults(_ context.Context, runID string) ([]*domain.EvaluationResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byTarget := m.results[runID]
	results := make([]*domain.EvaluationResult, 0, len(byTarget))
	for _, result := range byTarget {
		cp := *result
		results = append(results, &cp)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].TargetID < results[j].TargetID })
	return results, nil
}

// MergeAggregate replaces the stored snapshot for the stat's bucket.
func (m *MemoryStore) MergeAggregate(_ context.Context, stat *domain.AggregateStat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *stat
	cp.LatencyHistogram = append([]int64(nil), stat.LatencyHistogram...)
	m.aggregates[stat.Key.String()] = &cp
	return nil
}

// ListAggregates returns all stored aggregate snapshots.
func (m *MemoryStore) ListAggregates(_ context.Context) ([]*domain.AggregateStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := make([]*domain.AggregateStat, 0, len(m.aggregates))
	for _, stat := range m.aggregates {
		cp := *stat
		cp.LatencyHistogram = append([]int64(nil), stat.LatencyHistogram...)
		stats = append(stats, &cp)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Key.String() < stats[j].Key.String() })
	return stats, nil
}
