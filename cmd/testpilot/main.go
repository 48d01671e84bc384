// Package main provides the testpilot CLI: run suites, list and validate
// definitions, schedule recurring runs.
package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/testpilot/pkg/log"
)

func main() {
	command := &cli.Command{
		Name:                  "testpilot",
		Usage:                 "Orchestrate end-to-end test suite runs",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
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
		Commands: []*cli.Command{
			runCommand(),
			listCommand(),
			validateCommand(),
			scheduleCommand(),
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule("testpilot").Error("Command failed", "error", err)
		os.Exit(1)
	}
}
