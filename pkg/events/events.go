// Package events defines the lifecycle notifications emitted while a suite
// run progresses.
package events

import (
	"time"

	"github.com/dukex/testpilot/pkg/models"
)

type EventType string

// Topic carries every run and execution lifecycle event.
const Topic = "testpilot.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Suite run lifecycle.
	RunStartedEvent  EventType = "run.started"
	RunFinishedEvent EventType = "run.finished"

	// Per-execution lifecycle.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionRetryingEvent  EventType = "execution.retrying"
	ExecutionPassedEvent    EventType = "execution.passed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"
	ExecutionTimedOutEvent  EventType = "execution.timed_out"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	SuiteName string         `json:"suite_name"`
	RunID     string         `json:"run_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type RunStarted struct {
	BaseEvent

	Environment string `json:"environment"`
	TotalTests  int    `json:"total_tests"`
	Concurrency int    `json:"concurrency"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunFinished struct {
	BaseEvent

	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

func (e RunFinished) GetType() EventType {
	return RunFinishedEvent
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	TestID      string `json:"test_id"`
	TestName    string `json:"test_name"`
	Environment string `json:"environment"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionRetrying struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	TestID      string        `json:"test_id"`
	Attempt     int           `json:"attempt"`
	Delay       time.Duration `json:"delay"`
	Error       string        `json:"error,omitempty"`
}

func (e ExecutionRetrying) GetType() EventType {
	return ExecutionRetryingEvent
}

// ExecutionFinished is the shared shape of every terminal execution event.
type ExecutionFinished struct {
	BaseEvent

	ExecutionID  string                 `json:"execution_id"`
	TestID       string                 `json:"test_id"`
	TestName     string                 `json:"test_name"`
	Status       models.ExecutionStatus `json:"status"`
	RetryAttempt int                    `json:"retry_attempt"`
	Duration     time.Duration          `json:"duration"`
	Error        string                 `json:"error,omitempty"`
}

type ExecutionPassed struct{ ExecutionFinished }

func (e ExecutionPassed) GetType() EventType {
	return ExecutionPassedEvent
}

type ExecutionFailed struct{ ExecutionFinished }

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionCancelled struct{ ExecutionFinished }

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

type ExecutionTimedOut struct{ ExecutionFinished }

func (e ExecutionTimedOut) GetType() EventType {
	return ExecutionTimedOutEvent
}
