package models

import "time"

// ExecutionPlan is the resolved schedule for one suite run: the ordered test
// ids to execute and the concurrency window to run them under. Created once
// by the planner and never mutated afterwards.
type ExecutionPlan struct {
	SuiteName         string        `json:"suite_name"`
	Environment       string        `json:"environment"`
	TestIDs           []string      `json:"test_ids"`
	ConcurrencyWidth  int           `json:"concurrency_width"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
}
