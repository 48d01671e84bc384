// Package executor runs execution plans: a semaphore-gated worker pool with
// per-test retry loops, cooperative cancellation and timeout supervision.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/dukex/testpilot/pkg/eventbus"
	"github.com/dukex/testpilot/pkg/events"
	"github.com/dukex/testpilot/pkg/models"
	"github.com/dukex/testpilot/pkg/otelhelper"
	"github.com/dukex/testpilot/pkg/registry"
	"github.com/dukex/testpilot/pkg/retry"
	"github.com/dukex/testpilot/pkg/runner"
)

// HistorySink receives every terminal execution record for persistence.
type HistorySink interface {
	SaveExecution(ctx context.Context, execution *models.Execution) error
}

// Executor drives one plan at a time through a bounded worker pool. Width
// comes from the plan; each worker owns exactly one test's retry loop, so
// attempts of the same test never interleave.
type Executor struct {
	registry   *registry.Registry
	testRunner runner.Runner
	policy     *retry.Policy
	tracker    *Tracker
	publisher  eventbus.EventPublisher
	history    HistorySink
	tracer     trace.Tracer
	logger     *slog.Logger

	mu        sync.Mutex
	cancelRun context.CancelFunc
}

func NewExecutor(
	reg *registry.Registry,
	testRunner runner.Runner,
	policy *retry.Policy,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		registry:   reg,
		testRunner: testRunner,
		policy:     policy,
		tracker:    NewTracker(),
		publisher:  publisher,
		logger:     logger.With("module", "executor"),
	}
}

// SetHistory wires an optional persistence sink for terminal executions.
func (e *Executor) SetHistory(history HistorySink) {
	e.history = history
}

// SetTracer enables per-execution tracing spans.
func (e *Executor) SetTracer(tracer trace.Tracer) {
	e.tracer = tracer
}

// Tracker exposes the in-flight set for timeout supervision and status
// queries.
func (e *Executor) Tracker() *Tracker {
	return e.tracker
}

// ExecutePlan runs every test named by the plan and returns one terminal
// execution record per test id. Tests the registry cannot resolve produce
// synthetic failed records; tests never started because the run was
// cancelled produce cancelled records. No test is silently dropped.
func (e *Executor) ExecutePlan(
	ctx context.Context,
	suite *models.TestSuite,
	plan *models.ExecutionPlan,
	runID string,
) ([]*models.Execution, error) {
	if plan.ConcurrencyWidth < 1 {
		return nil, fmt.Errorf("execution plan for suite %q has invalid concurrency width %d", plan.SuiteName, plan.ConcurrencyWidth)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	e.cancelRun = cancel
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.cancelRun = nil
		e.mu.Unlock()
	}()

	e.logger.Info("Starting plan execution",
		"suite", plan.SuiteName,
		"environment", plan.Environment,
		"tests", len(plan.TestIDs),
		"concurrency", plan.ConcurrencyWidth)

	sem := semaphore.NewWeighted(int64(plan.ConcurrencyWidth))
	results := make([]*models.Execution, len(plan.TestIDs))

	var wg sync.WaitGroup

	seen := make(map[string]bool, len(plan.TestIDs))

	for i, testID := range plan.TestIDs {
		if seen[testID] {
			results[i] = e.syntheticRecord(suite, plan, testID, models.ExecutionStatusFailed,
				fmt.Sprintf("Duplicate test id %q in execution plan", testID))
			e.publishTerminal(ctx, suite, runID, results[i])

			continue
		}

		seen[testID] = true

		testCase, err := e.registry.Get(testID)
		if err != nil {
			results[i] = e.syntheticRecord(suite, plan, testID, models.ExecutionStatusFailed,
				fmt.Sprintf("Test %q not found in registry: %v", testID, err))
			e.publishTerminal(ctx, suite, runID, results[i])

			continue
		}

		if err := sem.Acquire(runCtx, 1); err != nil {
			// Run was cancelled before this test could start.
			results[i] = e.syntheticRecord(suite, plan, testID, models.ExecutionStatusCancelled,
				"Run cancelled before execution started")
			e.publishTerminal(ctx, suite, runID, results[i])

			continue
		}

		wg.Add(1)

		go func(slot int, tc *models.TestCase) {
			defer wg.Done()
			defer sem.Release(1)

			results[slot] = e.executeTest(runCtx, suite, plan, tc, runID)
		}(i, testCase)
	}

	wg.Wait()

	return results, nil
}

// CancelRun cancels the in-progress plan: in-flight executions are marked
// cancelled and not-yet-started tests never begin.
func (e *Executor) CancelRun(reason string) {
	e.tracker.CancelAll(reason)

	e.mu.Lock()
	cancel := e.cancelRun
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// CancelExecution cancels a single in-flight execution by id. Returns false
// when the execution is unknown or already terminal.
func (e *Executor) CancelExecution(executionID, reason string) bool {
	return e.tracker.Cancel(executionID, reason)
}

// ExecutionStatus returns a copy of an in-flight execution, or nil when the
// id is not currently tracked.
func (e *Executor) ExecutionStatus(executionID string) *models.Execution {
	return e.tracker.Get(executionID)
}

// executeTest owns the full retry loop for one test case. The returned
// record is always terminal.
func (e *Executor) executeTest(
	ctx context.Context,
	suite *models.TestSuite,
	plan *models.ExecutionPlan,
	testCase *models.TestCase,
	runID string,
) *models.Execution {
	execution := &models.Execution{
		ID:          uuid.New().String(),
		TestID:      testCase.ID,
		TestName:    testCase.Name,
		Status:      models.ExecutionStatusPending,
		Environment: plan.Environment,
		StartTime:   time.Now(),
	}

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.tracker.Add(execution, cancel)

	spanCtx := execCtx

	var span trace.Span

	if e.tracer != nil {
		spanCtx, span = otelhelper.StartSpan(execCtx, e.tracer, "executor.execute_test",
			attribute.String(otelhelper.SuiteNameKey, suite.Name),
			attribute.String(otelhelper.RunIDKey, runID),
			attribute.String(otelhelper.TestIDKey, testCase.ID),
			attribute.String(otelhelper.TestNameKey, testCase.Name),
			attribute.String(otelhelper.FrameworkKey, testCase.Framework),
			attribute.String(otelhelper.EnvironmentKey, plan.Environment),
			attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		)
	}

	e.publish(ctx, suite.Name, events.ExecutionStarted{
		BaseEvent:   e.baseEvent(events.ExecutionStartedEvent, suite.Name, runID),
		ExecutionID: execution.ID,
		TestID:      testCase.ID,
		TestName:    testCase.Name,
		Environment: plan.Environment,
	})

	e.runAttempts(spanCtx, suite, runID, testCase, execution)

	final := e.tracker.Remove(execution.ID)
	if final == nil {
		final = execution
	}

	e.finalize(ctx, suite, runID, testCase, final)

	if span != nil {
		if final.Status == models.ExecutionStatusFailed {
			otelhelper.SetError(span, errors.New(final.ErrorMessage),
				attribute.Int(otelhelper.AttemptKey, final.RetryAttempt))
		}

		span.End()
	}

	return final
}

// runAttempts loops attempts until the execution reaches a terminal status.
// The tracker arbitrates every transition, so a timeout or cancellation
// landed by another goroutine wins over this worker's own outcome.
func (e *Executor) runAttempts(
	ctx context.Context,
	suite *models.TestSuite,
	runID string,
	testCase *models.TestCase,
	execution *models.Execution,
) {
	for attempt := 0; ; attempt++ {
		if !e.tracker.Transition(execution.ID, models.ExecutionStatusRunning, "") {
			return
		}

		result, err := e.testRunner.Run(ctx, testCase, execution.Environment, execution.ID)

		if ctx.Err() != nil {
			// Supervisor or cancellation already settled this execution, or
			// the run context was torn down around it.
			e.tracker.Transition(execution.ID, models.ExecutionStatusCancelled, "Execution cancelled")

			return
		}

		if err != nil {
			// Runner-level failure (binary missing, spawn error). Never
			// retried: the environment is broken, not the test.
			e.tracker.Transition(execution.ID, models.ExecutionStatusFailed,
				fmt.Sprintf("Test runner error: %v", err))

			return
		}

		e.captureOutput(execution.ID, attempt, result)

		if result.Success {
			e.tracker.Transition(execution.ID, models.ExecutionStatusPassed, "")

			return
		}

		errorDetail := result.ErrorMessage
		if errorDetail == "" {
			errorDetail = fmt.Sprintf("Test exited with code %d", result.ReturnCode)
		}

		if !e.policy.ShouldRetry(ctx, testCase, errorDetail, attempt) {
			e.tracker.Transition(execution.ID, models.ExecutionStatusFailed, errorDetail)

			return
		}

		delay := e.policy.RetryDelay(attempt)

		if !e.tracker.MarkRetrying(execution.ID, attempt+1) {
			return
		}

		e.logger.Warn("Retrying test",
			"test_id", testCase.ID,
			"attempt", attempt+1,
			"delay", delay,
			"error", errorDetail)

		e.publish(ctx, testCase.ID, events.ExecutionRetrying{
			BaseEvent:   e.baseEvent(events.ExecutionRetryingEvent, suite.Name, runID),
			ExecutionID: execution.ID,
			TestID:      testCase.ID,
			Attempt:     attempt + 1,
			Delay:       delay,
			Error:       errorDetail,
		})

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			e.tracker.Transition(execution.ID, models.ExecutionStatusCancelled,
				"Execution cancelled while waiting to retry")

			return
		}
	}
}

func (e *Executor) captureOutput(executionID string, attempt int, result *models.RunnerResult) {
	lines := []string{fmt.Sprintf("--- attempt %d (exit %d) ---", attempt, result.ReturnCode)}

	if result.Stdout != "" {
		lines = append(lines, "STDOUT: "+result.Stdout)
	}

	if result.Stderr != "" {
		lines = append(lines, "STDERR: "+result.Stderr)
	}

	e.tracker.AppendLogs(executionID, lines...)
}

// finalize updates rolling statistics, persists the record and publishes the
// terminal lifecycle event.
func (e *Executor) finalize(
	ctx context.Context,
	suite *models.TestSuite,
	runID string,
	testCase *models.TestCase,
	execution *models.Execution,
) {
	if execution.EndTime.IsZero() {
		execution.EndTime = time.Now()
		execution.Duration = execution.EndTime.Sub(execution.StartTime)
	}

	if _, err := e.registry.UpdateStatistics(testCase.ID, execution); err != nil {
		e.logger.Error("Failed to update test statistics", "test_id", testCase.ID, "error", err)
	}

	if e.history != nil {
		if err := e.history.SaveExecution(ctx, execution); err != nil {
			e.logger.Error("Failed to persist execution", "execution_id", execution.ID, "error", err)
		}
	}

	e.logger.Info("Test finished",
		"test_id", execution.TestID,
		"status", execution.Status,
		"retry_attempt", execution.RetryAttempt,
		"duration", execution.Duration)

	e.publishTerminal(ctx, suite, runID, execution)
}

func (e *Executor) publishTerminal(ctx context.Context, suite *models.TestSuite, runID string, execution *models.Execution) {
	finished := events.ExecutionFinished{
		BaseEvent:    e.baseEvent("", suite.Name, runID),
		ExecutionID:  execution.ID,
		TestID:       execution.TestID,
		TestName:     execution.TestName,
		Status:       execution.Status,
		RetryAttempt: execution.RetryAttempt,
		Duration:     execution.Duration,
		Error:        execution.ErrorMessage,
	}

	var event eventbus.Event

	switch execution.Status {
	case models.ExecutionStatusPassed:
		finished.Type = events.ExecutionPassedEvent
		event = events.ExecutionPassed{ExecutionFinished: finished}
	case models.ExecutionStatusCancelled:
		finished.Type = events.ExecutionCancelledEvent
		event = events.ExecutionCancelled{ExecutionFinished: finished}
	default:
		finished.Type = events.ExecutionFailedEvent
		event = events.ExecutionFailed{ExecutionFinished: finished}
	}

	e.publish(ctx, execution.TestID, event)
}

func (e *Executor) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, key, event); err != nil {
		e.logger.Error("Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func (e *Executor) baseEvent(eventType events.EventType, suiteName, runID string) events.BaseEvent {
	return events.BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		SuiteName: suiteName,
		RunID:     runID,
	}
}

func (e *Executor) syntheticRecord(
	suite *models.TestSuite,
	plan *models.ExecutionPlan,
	testID string,
	status models.ExecutionStatus,
	message string,
) *models.Execution {
	now := time.Now()

	return &models.Execution{
		ID:           uuid.New().String(),
		TestID:       testID,
		Status:       status,
		Environment:  plan.Environment,
		StartTime:    now,
		EndTime:      now,
		ErrorMessage: message,
	}
}
