//go:build integration

package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dukex/testpilot/pkg/executor"
	"github.com/dukex/testpilot/pkg/models"
	"github.com/dukex/testpilot/pkg/orchestrator"
	"github.com/dukex/testpilot/pkg/persistence/postgresql"
	"github.com/dukex/testpilot/pkg/prioritizer"
	"github.com/dukex/testpilot/pkg/registry"
	"github.com/dukex/testpilot/pkg/retry"
	"github.com/dukex/testpilot/pkg/web"
)

func setupIntegrationDB(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_DB":       "testpilot_test",
				"POSTGRES_USER":     "testpilot",
				"POSTGRES_PASSWORD": "testpilot",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		},
		Started: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://testpilot:testpilot@%s:%s/testpilot_test?sslmode=disable", host, port.Port())
}

func setupIntegrationApp(t *testing.T, dbURL string) (*fiber.App, *postgresql.Persistence) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := postgresql.NewPersistence(context.Background(), logger, dbURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close(context.Background())
	})

	reg := registry.NewRegistry(logger)

	config := models.DefaultRetryConfig()
	config.BaseDelay = time.Millisecond

	policy := retry.NewPolicy(config, nil, logger)
	exec := executor.NewExecutor(reg, passingRunner{}, policy, nil, logger)
	prio := prioritizer.NewPrioritizer(nil, logger)

	o := orchestrator.New(store, reg, prio, exec, nil, nil, false, logger)

	handlers := web.NewAPIHandlers(o, store, logger)

	app := fiber.New()
	app.Get("/suites", handlers.GetSuites)
	app.Post("/runs", handlers.CreateRun)
	app.Get("/metrics", handlers.GetMetrics)
	app.Get("/health", handlers.HealthCheck)

	return app, store
}

func TestRunSuiteAgainstPostgres(t *testing.T) {
	dbURL := setupIntegrationDB(t)
	app, store := setupIntegrationApp(t, dbURL)

	ctx := context.Background()
	require.NoError(t, store.SaveTestSuite(ctx, webSuite()))

	payload, err := json.Marshal(web.RunRequest{Suite: "checkout", Environment: "staging"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/runs", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	// The run executes in the background; statistics land in test_history
	// once it finishes.
	require.Eventually(t, func() bool {
		history, err := store.TestHistoryByID(ctx, "tc-1")

		return err == nil && history.SuccessRate > 0
	}, 30*time.Second, 100*time.Millisecond)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
