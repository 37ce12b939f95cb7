package domain

import "errors"

// Sentinel errors for entity lookups and lifecycle violations.
var (
	// ErrRunNotFound indicates an unknown run id.
	ErrRunNotFound = errors.New("run not found")

	// ErrTestCaseNotFound indicates an unknown test case id.
	ErrTestCaseNotFound = errors.New("test case not found")

	// ErrTargetNotFound indicates an unknown model target id.
	ErrTargetNotFound = errors.New("model target not found")

	// ErrInvalidTransition indicates a state machine violation.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrRunTerminal indicates a mutation attempt on a terminal run.
	ErrRunTerminal = errors.New("run is in a terminal state")

	// ErrResultExists indicates a conflicting result write for a
	// (run, target) pair that already holds a different result.
	ErrResultExists = errors.New("evaluation result already recorded")

	// ErrResultNotFound indicates no result recorded for a
	// (run, target) pair.
	ErrResultNotFound = errors.New("evaluation result not found")
)
