// Package runner defines the test-runner collaborator boundary: the engine
// hands a test case to a Runner and gets back a pass/fail outcome with
// captured output. Anything beyond that contract (frameworks, browsers,
// devices) is the runner's own business.
package runner

import (
	"context"

	"github.com/dukex/testpilot/pkg/models"
)

// Runner executes one attempt of a test case. Implementations must be safe
// for concurrent use across different test ids.
//
// A returned error means the runner itself could not be invoked (transport
// or process failure); a test that ran and failed is reported through
// RunnerResult with Success=false and a nil error.
type Runner interface {
	Run(ctx context.Context, testCase *models.TestCase, environment, executionID string) (*models.RunnerResult, error)
}
