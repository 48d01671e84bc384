package main

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	cli "github.com/urfave/cli/v3"

	"github.com/dukex/testpilot/pkg/cmd"
	"github.com/dukex/testpilot/pkg/log"
)

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Validate every stored suite and test definition",
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

			validate := validator.New(validator.WithRequiredStructEnabled())
			invalid := 0

			for _, suite := range suites {
				if err := validate.Struct(suite); err != nil {
					invalid++

					fmt.Printf("INVALID %s: %v\n", suite.Name, err)

					continue
				}

				fmt.Printf("OK      %s (%d tests)\n", suite.Name, len(suite.TestCases))
			}

			if invalid > 0 {
				return cli.Exit(fmt.Sprintf("%d invalid suite(s)", invalid), 1)
			}

			return nil
		},
	}
}
