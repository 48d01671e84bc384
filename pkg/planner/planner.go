// Package planner computes bounded-parallelism execution plans from suite
// constraints and per-test duration estimates.
package planner

import (
	"time"

	"github.com/dukex/testpilot/pkg/models"
)

// BuildPlan derives the execution plan for the given suite, environment and
// already-ordered test cases. Pure function of its inputs.
//
// The concurrency width never exceeds the suite's declared cap or the number
// of selected tests, and scales up when the serial estimate would overrun
// half the suite timeout. A suite with parallel execution disabled always
// plans width 1.
func BuildPlan(suite *models.TestSuite, environment string, ordered []*models.TestCase) *models.ExecutionPlan {
	testIDs := make([]string, 0, len(ordered))

	var serialEstimate time.Duration

	for _, testCase := range ordered {
		testIDs = append(testIDs, testCase.ID)
		serialEstimate += testCase.DurationEstimate()
	}

	width := concurrencyWidth(suite, len(ordered), serialEstimate)

	estimated := serialEstimate
	if width > 0 {
		estimated = serialEstimate / time.Duration(width)
	}

	return &models.ExecutionPlan{
		SuiteName:         suite.Name,
		Environment:       environment,
		TestIDs:           testIDs,
		ConcurrencyWidth:  width,
		EstimatedDuration: estimated,
	}
}

func concurrencyWidth(suite *models.TestSuite, selected int, serialEstimate time.Duration) int {
	if !suite.ParallelExecution {
		return 1
	}

	halfTimeout := suite.Timeout / 2

	byEstimate := 1
	if halfTimeout > 0 {
		byEstimate = max(1, int(serialEstimate/halfTimeout))
	}

	return min(suite.MaxConcurrency, min(selected, byEstimate))
}
