package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/testpilot/pkg/models"
	"github.com/dukex/testpilot/pkg/registry"
)

func TestSupervisor_ForceFailsOverdueExecution(t *testing.T) {
	hung := executorTestCase("tc-hung", 0)
	healthy := executorTestCase("tc-healthy", 0)
	suite := suiteFor(hung, healthy)
	exec, stub, reg := newHarness(t, hung, healthy)

	stub.on("tc-hung", stubResult{block: true})

	supervisor := NewSupervisor(exec.Tracker(), 30*time.Millisecond, 10*time.Millisecond, nil, testLogger())

	supervisorCtx, stopSupervisor := context.WithCancel(context.Background())
	defer stopSupervisor()

	go supervisor.Start(supervisorCtx)

	results, err := exec.ExecutePlan(context.Background(), suite, planFor(suite, 1), "run-1")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, models.ExecutionStatusFailed, results[0].Status)
	assert.Contains(t, results[0].ErrorMessage, "timed out")

	// The hung test's slot came back, so the second test still ran.
	assert.Equal(t, models.ExecutionStatusPassed, results[1].Status)
	assert.Equal(t, 1, stub.callCount("tc-healthy"))

	assertStatisticsRecorded(t, reg, "tc-hung")
}

func TestSupervisor_SweepSparesHealthyExecutions(t *testing.T) {
	tracker := NewTracker()

	fresh := &models.Execution{ID: "exec-fresh", Status: models.ExecutionStatusRunning, StartTime: time.Now()}
	stale := &models.Execution{ID: "exec-stale", Status: models.ExecutionStatusRunning, StartTime: time.Now().Add(-time.Hour)}
	settled := &models.Execution{ID: "exec-done", Status: models.ExecutionStatusPassed, StartTime: time.Now().Add(-time.Hour)}

	tracker.Add(fresh, nil)
	tracker.Add(stale, nil)
	tracker.Add(settled, nil)

	supervisor := NewSupervisor(tracker, time.Minute, time.Minute, nil, testLogger())

	expired := supervisor.Sweep(context.Background())
	require.Len(t, expired, 1)
	assert.Equal(t, "exec-stale", expired[0].ID)

	assert.Equal(t, models.ExecutionStatusRunning, tracker.Status("exec-fresh"))
	assert.Equal(t, models.ExecutionStatusFailed, tracker.Status("exec-stale"))
	assert.Equal(t, models.ExecutionStatusPassed, tracker.Status("exec-done"))
}

func TestSupervisor_RetryingExecutionsAreSupervised(t *testing.T) {
	tracker := NewTracker()

	sleeping := &models.Execution{
		ID:        "exec-retrying",
		Status:    models.ExecutionStatusRetrying,
		StartTime: time.Now().Add(-time.Hour),
	}
	tracker.Add(sleeping, nil)

	supervisor := NewSupervisor(tracker, time.Minute, time.Minute, nil, testLogger())

	expired := supervisor.Sweep(context.Background())
	require.Len(t, expired, 1)
	assert.Equal(t, models.ExecutionStatusFailed, tracker.Status("exec-retrying"))
}

func assertStatisticsRecorded(t *testing.T, reg *registry.Registry, testID string) {
	t.Helper()

	testCase, err := reg.Get(testID)
	require.NoError(t, err)
	require.NotNil(t, testCase.LastExecution)
	assert.Less(t, testCase.SuccessRate, 1.0, "timed-out execution counts as a failure")
}
