// Package main provides the TestPilot status API server.
package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/testpilot/pkg/cmd"
	"github.com/dukex/testpilot/pkg/executor"
	"github.com/dukex/testpilot/pkg/log"
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

type historyAdapter struct {
	store persistence.Persistence
}

func (a historyAdapter) SaveExecution(ctx context.Context, execution *models.Execution) error {
	return a.store.SaveExecution(ctx, execution)
}

func main() {
	command := &cli.Command{
		Name:                  "testpilot-api",
		Usage:                 "Serve the TestPilot status and run-control API",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Usage:   "HTTP port to listen on",
				Value:   9091,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Persistence URL (file path, postgres:// or redis://)",
				Value:   "./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "scorer-url",
				Usage:   "Base URL of an external prioritization/retry scorer",
				Sources: cli.EnvVars("SCORER_URL"),
			},
			&cli.StringFlag{
				Name:    "reports-dir",
				Usage:   "Directory for run reports",
				Value:   "pipeline-reports",
				Sources: cli.EnvVars("REPORTS_DIR"),
			},
			&cli.StringFlag{
				Name:    "workdir",
				Usage:   "Working directory for framework commands",
				Value:   ".",
				Sources: cli.EnvVars("TESTPILOT_WORKDIR"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export execution spans over OTLP",
				Sources: cli.EnvVars("OTEL_TRACING_ENABLED"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))
			logger := log.WithModule("testpilot-api")

			store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

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
				tracer, err := otelhelper.NewTracer(ctx, "testpilot-api")
				if err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}

				exec.SetTracer(tracer)
			}

			prio := prioritizer.NewPrioritizer(prioritizationScorer, logger)
			sink := report.NewFileSink(command.String("reports-dir"))

			o := orchestrator.New(store, reg, prio, exec, eventBus, sink, prioritizationScorer != nil, logger)

			api := NewAPI(logger, o, store)

			logger.InfoContext(ctx, "Starting TestPilot API", "port", command.Int("port"))

			return api.Start(command.Int("port"))
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule("testpilot-api").Error("Command failed", "error", err)
		os.Exit(1)
	}
}
