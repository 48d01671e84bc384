package main

import (
	"context"
	"fmt"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/testpilot/pkg/log"
	"github.com/dukex/testpilot/pkg/models"
	"github.com/dukex/testpilot/pkg/prioritizer"
	"github.com/dukex/testpilot/pkg/report"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Run a test suite",
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
			&cli.StringSliceFlag{
				Name:  "tags",
				Usage: "Only run tests carrying at least one of these tags",
			},
			&cli.StringFlag{
				Name:  "priority",
				Usage: "Minimum priority (critical, high, medium, low)",
			},
			&cli.DurationFlag{
				Name:  "max-duration",
				Usage: "Skip tests estimated to run longer than this",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))
			logger := log.WithModule("testpilot")

			e, err := newEngine(ctx, command, logger)
			if err != nil {
				return err
			}
			defer e.close(ctx)

			filter := prioritizer.Filter{
				Tags:        command.StringSlice("tags"),
				MinPriority: models.Priority(command.String("priority")),
				MaxDuration: command.Duration("max-duration"),
			}

			runReport, err := e.orchestrator.RunSuite(ctx, command.String("suite"), command.String("env"), filter)
			if err != nil {
				return err
			}

			printSummary(runReport)

			if runReport.Analysis.Summary.Failed > 0 {
				return cli.Exit(fmt.Sprintf("%d test(s) failed", runReport.Analysis.Summary.Failed), 1)
			}

			return nil
		},
	}
}

func printSummary(runReport *report.Report) {
	summary := runReport.Analysis.Summary

	fmt.Printf("\nSuite: %s (%s)\n", runReport.SuiteName, runReport.Environment)
	fmt.Printf("  Total:     %d\n", summary.TotalTests)
	fmt.Printf("  Passed:    %d\n", summary.Passed)
	fmt.Printf("  Failed:    %d\n", summary.Failed)

	if summary.Cancelled > 0 {
		fmt.Printf("  Cancelled: %d\n", summary.Cancelled)
	}

	fmt.Printf("  Pass rate: %.1f%%\n", summary.PassRate*100)
	fmt.Printf("  Duration:  %s (wall clock %s)\n",
		summary.TotalDuration.Round(time.Millisecond),
		runReport.ExecutionTime.Round(time.Millisecond))

	if quality := runReport.Analysis.Quality; quality.FlakyTests > 0 {
		fmt.Printf("  Flaky:     %d (retry success rate %.1f%%)\n",
			quality.FlakyTests, quality.RetrySuccessRate*100)
	}

	for _, pattern := range runReport.Analysis.Quality.CommonFailurePatterns {
		fmt.Printf("  Failure pattern (%dx): %s\n", pattern.Count, pattern.Pattern)
	}
}
