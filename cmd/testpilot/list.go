package main

import (
	"context"
	"fmt"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/testpilot/pkg/cmd"
	"github.com/dukex/testpilot/pkg/log"
)

func listCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List test suites and their registered tests",
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))
			logger := log.WithModule("testpilot")

			store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			suites, err := store.TestSuites(ctx)
			if err != nil {
				return err
			}

			if len(suites) == 0 {
				fmt.Println("No test suites found.")

				return nil
			}

			for _, suite := range suites {
				fmt.Printf("%s (%d tests, timeout %s)\n", suite.Name, len(suite.TestCases), suite.Timeout)

				for _, testCase := range suite.TestCases {
					estimate := testCase.DurationEstimate().Round(time.Second)
					fmt.Printf("  %-30s %-8s ~%-8s %s\n",
						testCase.Name, testCase.Priority, estimate, testCase.FilePath)
				}
			}

			return nil
		},
	}
}
