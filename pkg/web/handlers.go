// Package web provides the HTTP surface of the engine: suite listing, run
// triggering, execution status, cancellation and metrics.
package web

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/dukex/testpilot/pkg/models"
	"github.com/dukex/testpilot/pkg/orchestrator"
	"github.com/dukex/testpilot/pkg/persistence"
	"github.com/dukex/testpilot/pkg/prioritizer"
)

type APIHandlers struct {
	orchestrator *orchestrator.Orchestrator
	store        persistence.Persistence
	logger       *slog.Logger
}

func NewAPIHandlers(o *orchestrator.Orchestrator, store persistence.Persistence, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		orchestrator: o,
		store:        store,
		logger:       logger.With("module", "api"),
	}
}

func (h *APIHandlers) GetSuites(c fiber.Ctx) error {
	suites, err := h.store.TestSuites(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"suites": suites})
}

func (h *APIHandlers) GetSuite(c fiber.Ctx) error {
	suite, err := h.store.TestSuiteByName(c.Context(), c.Params("name"))
	if err != nil {
		return handleRunError(c, err)
	}

	return c.JSON(suite)
}

// RunRequest triggers a suite run.
type RunRequest struct {
	Suite       string   `json:"suite"`
	Environment string   `json:"environment"`
	Tags        []string `json:"tags,omitempty"`
	MinPriority string   `json:"min_priority,omitempty"`
	MaxDuration string   `json:"max_duration,omitempty"`
}

// CreateRun starts a suite run in the background and returns immediately.
// Progress is observable through the execution endpoints and the event bus.
func (h *APIHandlers) CreateRun(c fiber.Ctx) error {
	req := &RunRequest{}
	if err := c.Bind().JSON(req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if req.Suite == "" {
		return badRequest(c, "suite is required")
	}

	environment := req.Environment
	if environment == "" {
		environment = "staging"
	}

	filter := prioritizer.Filter{
		Tags:        req.Tags,
		MinPriority: models.Priority(req.MinPriority),
	}

	if req.MaxDuration != "" {
		maxDuration, err := time.ParseDuration(req.MaxDuration)
		if err != nil {
			return badRequest(c, "Invalid max_duration: "+err.Error())
		}

		filter.MaxDuration = maxDuration
	}

	// Fail fast on unknown suites; the run itself proceeds in the
	// background.
	if _, err := h.store.TestSuiteByName(c.Context(), req.Suite); err != nil {
		return handleRunError(c, err)
	}

	go func() {
		if _, err := h.orchestrator.RunSuite(context.Background(), req.Suite, environment, filter); err != nil {
			h.logger.Error("Background suite run failed", "suite", req.Suite, "error", err)
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"suite":       req.Suite,
		"environment": environment,
		"status":      "accepted",
	})
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"active": h.orchestrator.ActiveExecutionIDs()})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution := h.orchestrator.ExecutionStatus(c.Params("id"))
	if execution == nil {
		return notFound(c, "execution not found or already finished")
	}

	return c.JSON(execution)
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	if !h.orchestrator.CancelExecution(c.Params("id"), "cancelled via API") {
		return notFound(c, "execution not found or already finished")
	}

	return c.JSON(fiber.Map{"status": "cancelled"})
}

func (h *APIHandlers) CancelRun(c fiber.Ctx) error {
	h.orchestrator.CancelRun("run cancelled via API")

	return c.JSON(fiber.Map{"status": "cancelled"})
}

func (h *APIHandlers) GetMetrics(c fiber.Ctx) error {
	return c.JSON(h.orchestrator.Metrics())
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	if err := h.store.HealthCheck(c.Context()); err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"status": "ok"})
}
