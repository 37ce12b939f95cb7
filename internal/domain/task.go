package domain

import "time"

// TaskStatus represents the lifecycle state of an EvaluationTask.
// The state machine is queued → running → {passed, failed, error, timeout}.
// running → queued is permitted internally for a retry attempt and is not
// an externally visible regression.
type TaskStatus string

const (
	// TaskQueued means the task awaits a worker.
	TaskQueued TaskStatus = "queued"

	// TaskRunning means an attempt is in flight.
	TaskRunning TaskStatus = "running"

	// TaskPassed means the model responded and the scorer accepted it.
	TaskPassed TaskStatus = "passed"

	// TaskFailed means the model responded and the scorer rejected it.
	TaskFailed TaskStatus = "failed"

	// TaskError means no valid score could be produced after exhausting
	// the retry budget, or a fatal provider error occurred.
	TaskError TaskStatus = "error"

	// TaskTimeout means every attempt exceeded its deadline.
	TaskTimeout TaskStatus = "timeout"
)

// Terminal reports whether the status is an end state.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskPassed, TaskFailed, TaskError, TaskTimeout:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the state machine permits moving from s
// to next. The running → queued edge supports internal retries.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case TaskQueued:
		return next == TaskRunning
	case TaskRunning:
		return next == TaskQueued || next.Terminal()
	default:
		return false
	}
}

// EvaluationTask is the unit of work for one (Run, target) pairing.
// Created when a Run starts; status transitions are its only mutations.
type EvaluationTask struct {
	ID       string     `json:"id"`
	RunID    string     `json:"run_id"`
	TargetID string     `json:"target_id"`
	Status   TaskStatus `json:"status"`

	// Attempts counts dispatches including retries.
	Attempts int `json:"attempts"`

	// LastError records the most recent attempt failure for timeline
	// reconstruction.
	LastError string `json:"last_error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
