// Package orchestrator coordinates a full suite run: load, filter,
// prioritize, plan, execute, analyze, report.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dukex/testpilot/pkg/analyzer"
	"github.com/dukex/testpilot/pkg/eventbus"
	"github.com/dukex/testpilot/pkg/events"
	"github.com/dukex/testpilot/pkg/executor"
	"github.com/dukex/testpilot/pkg/models"
	"github.com/dukex/testpilot/pkg/persistence"
	"github.com/dukex/testpilot/pkg/planner"
	"github.com/dukex/testpilot/pkg/prioritizer"
	"github.com/dukex/testpilot/pkg/registry"
	"github.com/dukex/testpilot/pkg/report"
)

// Version is stamped into report metadata.
const Version = "1.0.0"

// Run-level failures callers are expected to branch on.
var (
	ErrSuiteNotFound = errors.New("test suite not found")
	ErrNoTestsMatch  = errors.New("no tests match the given filters")
	ErrInvalidSuite  = errors.New("test suite definition is invalid")
)

// Orchestrator owns the run pipeline and the engine-level metrics.
type Orchestrator struct {
	store       persistence.Persistence
	registry    *registry.Registry
	prioritizer *prioritizer.Prioritizer
	executor    *executor.Executor
	publisher   eventbus.EventPublisher
	sink        report.Sink
	validate    *validator.Validate
	metrics     *Metrics
	scorerOn    bool
	logger      *slog.Logger

	// Supervisor cadence, shortened in tests.
	SupervisorInterval time.Duration
}

func New(
	store persistence.Persistence,
	reg *registry.Registry,
	prio *prioritizer.Prioritizer,
	exec *executor.Executor,
	publisher eventbus.EventPublisher,
	sink report.Sink,
	scorerOn bool,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:              store,
		registry:           reg,
		prioritizer:        prio,
		executor:           exec,
		publisher:          publisher,
		sink:               sink,
		validate:           validator.New(),
		metrics:            &Metrics{},
		scorerOn:           scorerOn,
		logger:             logger.With("module", "orchestrator"),
		SupervisorInterval: executor.DefaultSupervisorInterval,
	}
}

// RunSuite executes one suite end to end and returns its report. The report
// is produced even when tests fail; the error is reserved for run-level
// failures (unknown suite, invalid definition, nothing to run).
func (o *Orchestrator) RunSuite(ctx context.Context, suiteName, environment string, filter prioritizer.Filter) (*report.Report, error) {
	suite, err := o.loadSuite(ctx, suiteName, environment)
	if err != nil {
		return nil, err
	}

	o.hydrateRegistry(ctx, suite)

	selected := filter.Apply(suite.TestCases)
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: suite %q, environment %q", ErrNoTestsMatch, suiteName, environment)
	}

	ordered := o.prioritizer.Prioritize(ctx, selected)
	plan := planner.BuildPlan(suite, environment, ordered)

	runID := uuid.New().String()
	startTime := time.Now()

	o.logger.Info("Starting suite run",
		"run_id", runID,
		"suite", suiteName,
		"environment", environment,
		"tests", len(plan.TestIDs),
		"concurrency", plan.ConcurrencyWidth,
		"estimated_duration", plan.EstimatedDuration)

	o.publish(ctx, runID, events.RunStarted{
		BaseEvent:   o.baseEvent(events.RunStartedEvent, suiteName, runID),
		Environment: environment,
		TotalTests:  len(plan.TestIDs),
		Concurrency: plan.ConcurrencyWidth,
	})

	supervisorCtx, stopSupervisor := context.WithCancel(ctx)
	defer stopSupervisor()

	supervisor := executor.NewSupervisor(
		o.executor.Tracker(), suite.Timeout,
		supervisorInterval(o.SupervisorInterval, suite.Timeout), o.publisher, o.logger)
	go supervisor.Start(supervisorCtx)

	results, err := o.executor.ExecutePlan(ctx, suite, plan, runID)
	if err != nil {
		return nil, fmt.Errorf("plan execution failed: %w", err)
	}

	endTime := time.Now()
	analysis := analyzer.Analyze(results, endTime.Sub(startTime))

	o.metrics.Update(results)
	o.saveStatistics(ctx, plan)

	runReport := &report.Report{
		SuiteName:     suiteName,
		RunID:         runID,
		Environment:   environment,
		StartTime:     startTime,
		EndTime:       endTime,
		ExecutionTime: endTime.Sub(startTime),
		Analysis:      analysis,
		Results:       results,
		Metadata: report.Metadata{
			EngineVersion:     Version,
			ScorerEnabled:     o.scorerOn,
			ParallelExecution: plan.ConcurrencyWidth > 1,
		},
	}

	if o.sink != nil {
		if err := o.sink.Save(ctx, runReport); err != nil {
			o.logger.Error("Failed to save run report", "run_id", runID, "error", err)
		}
	}

	o.publish(ctx, runID, events.RunFinished{
		BaseEvent: o.baseEvent(events.RunFinishedEvent, suiteName, runID),
		Passed:    analysis.Summary.Passed,
		Failed:    analysis.Summary.Failed,
		Duration:  runReport.ExecutionTime,
	})

	o.logger.Info("Suite run finished",
		"run_id", runID,
		"passed", analysis.Summary.Passed,
		"failed", analysis.Summary.Failed,
		"duration", runReport.ExecutionTime)

	return runReport, nil
}

// CancelRun aborts the in-progress run.
func (o *Orchestrator) CancelRun(reason string) {
	o.executor.CancelRun(reason)
}

// CancelExecution cancels one in-flight execution by id.
func (o *Orchestrator) CancelExecution(executionID, reason string) bool {
	return o.executor.CancelExecution(executionID, reason)
}

// ExecutionStatus returns a copy of an in-flight execution, or nil.
func (o *Orchestrator) ExecutionStatus(executionID string) *models.Execution {
	return o.executor.ExecutionStatus(executionID)
}

// ActiveExecutionIDs lists the ids of every in-flight execution.
func (o *Orchestrator) ActiveExecutionIDs() []string {
	return o.executor.Tracker().IDs()
}

// Metrics returns the engine-level rolling metrics.
func (o *Orchestrator) Metrics() MetricsSnapshot {
	snapshot := o.metrics.snapshot()
	snapshot.ActiveExecutions = o.executor.Tracker().Len()
	snapshot.TotalTestCases = o.registry.Len()

	return snapshot
}

// supervisorInterval keeps the polling cadence under the suite timeout so
// short suites are swept before their deadline passes unnoticed.
func supervisorInterval(configured, suiteTimeout time.Duration) time.Duration {
	if half := suiteTimeout / 2; half > 0 && configured > half {
		return half
	}

	return configured
}

func (o *Orchestrator) loadSuite(ctx context.Context, suiteName, environment string) (*models.TestSuite, error) {
	suite, err := o.store.TestSuiteByName(ctx, suiteName)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrSuiteNotFound, suiteName)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load suite %q: %w", suiteName, err)
	}

	if err := o.validate.Struct(suite); err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidSuite, suiteName, err)
	}

	if !suite.SupportsEnvironment(environment) {
		return nil, fmt.Errorf("%w: suite %q does not support environment %q", ErrInvalidSuite, suiteName, environment)
	}

	return suite, nil
}

// hydrateRegistry registers the suite's tests and overlays persisted rolling
// statistics so estimates survive restarts.
func (o *Orchestrator) hydrateRegistry(ctx context.Context, suite *models.TestSuite) {
	for _, testCase := range suite.TestCases {
		history, err := o.store.TestHistoryByID(ctx, testCase.ID)
		if err == nil {
			history.ApplyTo(testCase)
		} else if !errors.Is(err, persistence.ErrNotFound) {
			o.logger.Warn("Failed to load test history", "test_id", testCase.ID, "error", err)
		}

		o.registry.Register(testCase)
	}
}

// saveStatistics persists the post-run rolling statistics of every planned
// test.
func (o *Orchestrator) saveStatistics(ctx context.Context, plan *models.ExecutionPlan) {
	for _, testID := range plan.TestIDs {
		testCase, err := o.registry.Get(testID)
		if err != nil {
			continue
		}

		if err := o.store.SaveTestHistory(ctx, models.NewTestHistory(testCase)); err != nil {
			o.logger.Error("Failed to save test history", "test_id", testID, "error", err)
		}
	}
}

func (o *Orchestrator) publish(ctx context.Context, key string, event eventbus.Event) {
	if o.publisher == nil {
		return
	}

	if err := o.publisher.Publish(ctx, key, event); err != nil {
		o.logger.Error("Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func (o *Orchestrator) baseEvent(eventType events.EventType, suiteName, runID string) events.BaseEvent {
	return events.BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		SuiteName: suiteName,
		RunID:     runID,
	}
}
