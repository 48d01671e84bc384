package main

import (
	"context"
	"fmt"
	"log/slog"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/testpilot/pkg/cmd"
	"github.com/dukex/testpilot/pkg/eventbus"
	"github.com/dukex/testpilot/pkg/executor"
	"github.com/dukex/testpilot/pkg/models"
	"github.com/dukex/testpilot/pkg/orchestrator"
	"github.com/dukex/testpilot/pkg/otelhelper"
	"github.com/dukex/testpilot/pkg/persistence"
	"github.com/dukex/testpilot/pkg/prioritizer"
	"github.com/dukex/testpilot/pkg/registry"
	"github.com/dukex/testpilot/pkg/report"
	"github.com/dukex/testpilot/pkg/retry"
	"github.com/dukex/testpilot/pkg/runner"
	"github.com/dukex/testpilot/pkg/scorer"
)

// engine bundles the wired components behind one suite run.
type engine struct {
	orchestrator *orchestrator.Orchestrator
	store        persistence.Persistence
	eventBus     eventbus.EventBus
	logger       *slog.Logger
}

// historyAdapter lets the executor persist terminal executions through the
// persistence layer.
type historyAdapter struct {
	store persistence.Persistence
}

func (a historyAdapter) SaveExecution(ctx context.Context, execution *models.Execution) error {
	return a.store.SaveExecution(ctx, execution)
}

func newEngine(ctx context.Context, command *cli.Command, logger *slog.Logger) (*engine, error) {
	store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return nil, err
	}

	eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
	reg := registry.NewRegistry(logger)

	var (
		prioritizationScorer scorer.PrioritizationScorer
		retryScorer          scorer.RetryScorer
	)

	if scorerURL := command.String("scorer-url"); scorerURL != "" {
		httpScorer := scorer.NewHTTPScorer(scorerURL)
		prioritizationScorer = httpScorer
		retryScorer = httpScorer
	}

	policy := retry.NewPolicy(models.DefaultRetryConfig(), retryScorer, logger)
	testRunner := runner.NewProcessRunner(runner.DefaultFrameworks(), command.String("workdir"), logger)

	exec := executor.NewExecutor(reg, testRunner, policy, eventBus, logger)
	exec.SetHistory(historyAdapter{store: store})

	if command.Bool("tracing") {
		tracer, err := otelhelper.NewTracer(ctx, "testpilot")
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}

		exec.SetTracer(tracer)
	}

	prio := prioritizer.NewPrioritizer(prioritizationScorer, logger)
	sink := report.NewFileSink(command.String("reports-dir"))

	o := orchestrator.New(store, reg, prio, exec, eventBus, sink, prioritizationScorer != nil, logger)

	return &engine{
		orchestrator: o,
		store:        store,
		eventBus:     eventBus,
		logger:       logger,
	}, nil
}

func (e *engine) close(ctx context.Context) {
	if err := e.eventBus.Close(); err != nil {
		e.logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
	}

	if err := e.store.Close(ctx); err != nil {
		e.logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
	}
}
