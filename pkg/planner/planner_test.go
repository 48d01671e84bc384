package planner

import (
	"fmt"
	"testing"
	"time"

	"github.com/dukex/testpilot/pkg/models"
	"github.com/stretchr/testify/assert"
)

func suite(parallel bool, maxConcurrency int, timeout time.Duration) *models.TestSuite {
	return &models.TestSuite{
		Name:              "smoke",
		ParallelExecution: parallel,
		MaxConcurrency:    maxConcurrency,
		Timeout:           timeout,
	}
}

func casesWithEstimate(count int, estimate time.Duration) []*models.TestCase {
	cases := make([]*models.TestCase, 0, count)
	for i := 0; i < count; i++ {
		cases = append(cases, &models.TestCase{
			ID:                fmt.Sprintf("tc-%d", i),
			EstimatedDuration: estimate,
		})
	}

	return cases
}

func TestBuildPlan_SequentialSuiteForcesWidthOne(t *testing.T) {
	plan := BuildPlan(suite(false, 8, time.Minute), "staging", casesWithEstimate(10, time.Minute))

	assert.Equal(t, 1, plan.ConcurrencyWidth)
	assert.Len(t, plan.TestIDs, 10)
}

func TestBuildPlan_CappedByMaxConcurrency(t *testing.T) {
	// 20 tests x 1m against a 4m timeout: the estimate alone would ask for
	// 10 workers, the suite cap wins.
	plan := BuildPlan(suite(true, 4, 4*time.Minute), "staging", casesWithEstimate(20, time.Minute))

	assert.Equal(t, 4, plan.ConcurrencyWidth)
}

func TestBuildPlan_CappedByTestCount(t *testing.T) {
	plan := BuildPlan(suite(true, 16, time.Minute), "staging", casesWithEstimate(2, 10*time.Minute))

	assert.Equal(t, 2, plan.ConcurrencyWidth)
}

func TestBuildPlan_ScalesWithSerialEstimate(t *testing.T) {
	// 10 tests x 1m = 10m serial against half of a 4m timeout: 10/2 = 5.
	plan := BuildPlan(suite(true, 16, 4*time.Minute), "staging", casesWithEstimate(10, time.Minute))

	assert.Equal(t, 5, plan.ConcurrencyWidth)
}

func TestBuildPlan_ShortSerialEstimateStaysNarrow(t *testing.T) {
	// Serial estimate far below half the timeout: no reason to parallelize.
	plan := BuildPlan(suite(true, 8, 30*time.Minute), "staging", casesWithEstimate(3, 10*time.Second))

	assert.Equal(t, 1, plan.ConcurrencyWidth)
}

func TestBuildPlan_PrefersRollingAverageEstimate(t *testing.T) {
	cases := casesWithEstimate(2, time.Minute)
	cases[0].AvgDuration = 10 * time.Minute
	cases[1].AvgDuration = 10 * time.Minute

	plan := BuildPlan(suite(true, 8, 10*time.Minute), "staging", cases)

	// 20m serial / 5m half-timeout = 4, capped by 2 tests.
	assert.Equal(t, 2, plan.ConcurrencyWidth)
	assert.Equal(t, 10*time.Minute, plan.EstimatedDuration)
}

func TestBuildPlan_PreservesOrderAndMetadata(t *testing.T) {
	cases := casesWithEstimate(3, time.Second)

	plan := BuildPlan(suite(true, 2, time.Hour), "production", cases)

	assert.Equal(t, "smoke", plan.SuiteName)
	assert.Equal(t, "production", plan.Environment)
	assert.Equal(t, []string{"tc-0", "tc-1", "tc-2"}, plan.TestIDs)
}
