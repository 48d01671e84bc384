package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/dukex/testpilot/pkg/orchestrator"
	"github.com/dukex/testpilot/pkg/persistence"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleRunError maps run-level failures onto problem responses.
func handleRunError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, orchestrator.ErrSuiteNotFound), errors.Is(err, persistence.ErrNotFound):
		return notFound(c, err.Error())
	case errors.Is(err, orchestrator.ErrNoTestsMatch), errors.Is(err, orchestrator.ErrInvalidSuite):
		return badRequest(c, err.Error())
	default:
		return internalError(c, err)
	}
}
