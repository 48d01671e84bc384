package main

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/dukex/testpilot/pkg/orchestrator"
	"github.com/dukex/testpilot/pkg/persistence"
	"github.com/dukex/testpilot/pkg/web"
)

type API struct {
	logger       *slog.Logger
	orchestrator *orchestrator.Orchestrator
	store        persistence.Persistence
}

func NewAPI(log *slog.Logger, o *orchestrator.Orchestrator, store persistence.Persistence) *API {
	return &API{
		logger:       log,
		orchestrator: o,
		store:        store,
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.orchestrator, a.store, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("TestPilot API")
	})

	s := app.Group("/suites")
	s.Get("/", handlers.GetSuites)
	s.Get("/:name", handlers.GetSuite)

	r := app.Group("/runs")
	r.Post("/", handlers.CreateRun)
	r.Delete("/", handlers.CancelRun)

	e := app.Group("/executions")
	e.Get("/", handlers.GetExecutions)
	e.Get("/:id", handlers.GetExecution)
	e.Delete("/:id", handlers.CancelExecution)

	app.Get("/metrics", handlers.GetMetrics)
	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
