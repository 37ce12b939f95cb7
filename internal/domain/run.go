package domain

import (
	"time"
)

// RunStatus represents the lifecycle state of a Run.
// The state machine is queued → running → {completed, partially_failed,
// cancelled}. All three end states are terminal; no transition leaves a
// terminal state.
type RunStatus string

const (
	// RunQueued means the run is accepted but no task has started.
	RunQueued RunStatus = "queued"

	// RunRunning means at least one task has been dispatched.
	RunRunning RunStatus = "running"

	// RunCompleted means every task passed or failed cleanly.
	RunCompleted RunStatus = "completed"

	// RunPartiallyFailed means at least one task ended in error or
	// timeout after exhausting its retry budget.
	RunPartiallyFailed RunStatus = "partially_failed"

	// RunCancelled means the caller requested cancellation before
	// natural completion.
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunPartiallyFailed, RunCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the state machine permits moving from s
// to next.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case RunQueued:
		return next == RunRunning || next == RunCancelled
	case RunRunning:
		return next.Terminal()
	default:
		return false
	}
}

// RunSummary holds aggregate statistics computed at run finalization.
type RunSummary struct {
	MeanScore     float64 `json:"mean_score"`
	MeanLatencyMs float64 `json:"mean_latency_ms"`
	TotalCost     float64 `json:"total_cost"`
}

// Run is one request to evaluate a TestCase against a set of targets.
// The coordinator owns the Run exclusively during execution; it becomes
// read-only once terminal.
type Run struct {
	ID         string    `json:"id"`
	TestCaseID string    `json:"test_case_id"`
	TargetIDs  []string  `json:"target_ids"`
	Status     RunStatus `json:"status"`

	// Progress counters, updated as tasks reach terminal states.
	TotalTasks     int `json:"total_tasks"`
	CompletedTasks int `json:"completed_tasks"`
	SucceededTasks int `json:"succeeded_tasks"`
	FailedTasks    int `json:"failed_tasks"`
	ErroredTasks   int `json:"errored_tasks"`

	// Cancelled is the cooperative cancellation flag, checked at task
	// dequeue and before each retry.
	Cancelled bool `json:"cancelled"`

	Summary *RunSummary `json:"summary,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// DeriveStatus computes the terminal status implied by the run's task
// counters, honoring the precedence cancelled > partially_failed >
// completed.
func (r *Run) DeriveStatus() RunStatus {
	if r.Cancelled {
		return RunCancelled
	}
	if r.ErroredTasks > 0 {
		return RunPartiallyFailed
	}
	return RunCompleted
}
