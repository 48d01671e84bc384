package models

import "time"

// ExecutionStatus is the lifecycle state of a single test execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusRetrying  ExecutionStatus = "retrying"
	ExecutionStatusPassed    ExecutionStatus = "passed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status has no outgoing transitions.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionStatusPassed, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo enforces the execution state machine:
//
//	pending → running → {passed, failed, cancelled}
//	running → retrying → running (retry sub-loop)
//
// Cancelled and failed are additionally reachable from retrying (external
// cancellation and timeout supervision hit sleeping executions too).
// Terminal states never transition.
func (s ExecutionStatus) CanTransitionTo(next ExecutionStatus) bool {
	if s.Terminal() {
		return false
	}

	switch s {
	case ExecutionStatusPending:
		return next == ExecutionStatusRunning || next == ExecutionStatusCancelled
	case ExecutionStatusRunning:
		return next == ExecutionStatusPassed ||
			next == ExecutionStatusFailed ||
			next == ExecutionStatusCancelled ||
			next == ExecutionStatusRetrying
	case ExecutionStatusRetrying:
		return next == ExecutionStatusRunning ||
			next == ExecutionStatusFailed ||
			next == ExecutionStatusCancelled
	default:
		return false
	}
}

// Execution is one attempt-sequence of a single test case within a run. It
// is owned exclusively by the executor until it reaches a terminal status,
// after which it is handed to the analyzer as an immutable record.
type Execution struct {
	ID           string          `json:"id"`
	TestID       string          `json:"test_id"`
	TestName     string          `json:"test_name"`
	Status       ExecutionStatus `json:"status"`
	Environment  string          `json:"environment"`
	RetryAttempt int             `json:"retry_attempt"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      time.Time       `json:"end_time"`
	Duration     time.Duration   `json:"duration"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Logs         []string        `json:"logs,omitempty"`
}

// RunnerResult is the outcome reported by the test-runner collaborator for
// one attempt.
type RunnerResult struct {
	Success      bool   `json:"success"`
	ReturnCode   int    `json:"return_code"`
	Stdout       string `json:"stdout,omitempty"`
	Stderr       string `json:"stderr,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}
