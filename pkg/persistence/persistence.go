// Package persistence provides data storage abstraction for test suites,
// rolling test statistics and execution records.
package persistence

import (
	"context"
	"errors"

	"github.com/dukex/testpilot/pkg/models"
)

// ErrNotFound is returned when a suite or history record does not exist.
var ErrNotFound = errors.New("record not found")

type Persistence interface {
	TestSuites(ctx context.Context) ([]*models.TestSuite, error)
	TestSuiteByName(ctx context.Context, name string) (*models.TestSuite, error)
	SaveTestSuite(ctx context.Context, suite *models.TestSuite) error

	TestHistories(ctx context.Context) ([]*models.TestHistory, error)
	TestHistoryByID(ctx context.Context, testID string) (*models.TestHistory, error)
	SaveTestHistory(ctx context.Context, history *models.TestHistory) error

	SaveExecution(ctx context.Context, execution *models.Execution) error
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
