package main

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	cli "github.com/urfave/cli/v3"

	"github.com/dukex/testpilot/pkg/log"
	"github.com/dukex/testpilot/pkg/prioritizer"
)

func scheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Run a suite on a recurring cron schedule",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "suite",
				Usage:    "Test suite name",
				Required: true,
				Sources:  cli.EnvVars("TESTPILOT_SUITE"),
			},
			&cli.StringFlag{
				Name:    "env",
				Usage:   "Target environment",
				Value:   "staging",
				Sources: cli.EnvVars("TESTPILOT_ENV"),
			},
			&cli.StringFlag{
				Name:     "cron",
				Usage:    "Cron expression (e.g. '0 2 * * *' for 02:00 nightly)",
				Required: true,
				Sources:  cli.EnvVars("TESTPILOT_CRON"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))
			logger := log.WithModule("testpilot_scheduler")

			cronExpr := command.String("cron")
			if _, err := cron.ParseStandard(cronExpr); err != nil {
				return fmt.Errorf("invalid cron expression: %w", err)
			}

			e, err := newEngine(ctx, command, logger)
			if err != nil {
				return err
			}
			defer e.close(ctx)

			suiteName := command.String("suite")
			environment := command.String("env")

			scheduler := cron.New()

			_, err = scheduler.AddFunc(cronExpr, func() {
				logger.Info("Scheduled run starting", "suite", suiteName, "environment", environment)

				runReport, err := e.orchestrator.RunSuite(ctx, suiteName, environment, prioritizer.Filter{})
				if err != nil {
					logger.Error("Scheduled run failed", "suite", suiteName, "error", err)

					return
				}

				logger.Info("Scheduled run finished",
					"suite", suiteName,
					"passed", runReport.Analysis.Summary.Passed,
					"failed", runReport.Analysis.Summary.Failed)
			})
			if err != nil {
				return fmt.Errorf("failed to schedule suite: %w", err)
			}

			logger.Info("Scheduler started", "suite", suiteName, "cron", cronExpr)
			scheduler.Start()

			<-ctx.Done()
			<-scheduler.Stop().Done()

			return nil
		},
	}
}
