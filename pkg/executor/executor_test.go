package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/testpilot/pkg/models"
	"github.com/dukex/testpilot/pkg/registry"
	"github.com/dukex/testpilot/pkg/retry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

// stubRunner scripts per-test outcomes. Each call consumes the next scripted
// result; the last one repeats. A blocking test holds until its context is
// cancelled.
type stubRunner struct {
	mu       sync.Mutex
	script   map[string][]stubResult
	calls    map[string]int
	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
}

type stubResult struct {
	success bool
	message string
	err     error
	block   bool
}

func newStubRunner() *stubRunner {
	return &stubRunner{
		script: make(map[string][]stubResult),
		calls:  make(map[string]int),
	}
}

func (r *stubRunner) on(testID string, results ...stubResult) {
	r.script[testID] = results
}

func (r *stubRunner) callCount(testID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.calls[testID]
}

func (r *stubRunner) Run(ctx context.Context, testCase *models.TestCase, environment, executionID string) (*models.RunnerResult, error) {
	current := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)

	for {
		peak := r.peak.Load()
		if current <= peak || r.peak.CompareAndSwap(peak, current) {
			break
		}
	}

	r.mu.Lock()
	index := r.calls[testCase.ID]
	r.calls[testCase.ID]++

	results := r.script[testCase.ID]
	r.mu.Unlock()

	if len(results) == 0 {
		return &models.RunnerResult{Success: true}, nil
	}

	if index >= len(results) {
		index = len(results) - 1
	}

	result := results[index]

	if result.block {
		<-ctx.Done()

		return nil, ctx.Err()
	}

	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if result.err != nil {
		return nil, result.err
	}

	return &models.RunnerResult{
		Success:      result.success,
		ReturnCode:   map[bool]int{true: 0, false: 1}[result.success],
		ErrorMessage: result.message,
	}, nil
}

func fastRetryConfig() models.RetryConfig {
	config := models.DefaultRetryConfig()
	config.BaseDelay = time.Millisecond

	return config
}

func newHarness(t *testing.T, testCases ...*models.TestCase) (*Executor, *stubRunner, *registry.Registry) {
	t.Helper()

	reg := registry.NewRegistry(testLogger())
	for _, testCase := range testCases {
		reg.Register(testCase)
	}

	stub := newStubRunner()
	policy := retry.NewPolicy(fastRetryConfig(), nil, testLogger())

	return NewExecutor(reg, stub, policy, nil, testLogger()), stub, reg
}

func planFor(suite *models.TestSuite, width int) *models.ExecutionPlan {
	ids := make([]string, 0, len(suite.TestCases))
	for _, testCase := range suite.TestCases {
		ids = append(ids, testCase.ID)
	}

	return &models.ExecutionPlan{
		SuiteName:        suite.Name,
		Environment:      "staging",
		TestIDs:          ids,
		ConcurrencyWidth: width,
	}
}

func executorTestCase(id string, maxRetries int) *models.TestCase {
	return &models.TestCase{
		ID:          id,
		Name:        "test " + id,
		FilePath:    "tests/" + id + ".spec.ts",
		Framework:   "playwright",
		Priority:    models.PriorityMedium,
		MaxRetries:  maxRetries,
		SuccessRate: 1.0,
	}
}

func suiteFor(testCases ...*models.TestCase) *models.TestSuite {
	return &models.TestSuite{
		Name:              "checkout",
		TestCases:         testCases,
		ParallelExecution: true,
		MaxConcurrency:    5,
		Timeout:           time.Minute,
	}
}

func TestExecutor_AllPassConcurrently(t *testing.T) {
	testCases := make([]*models.TestCase, 0, 8)
	for i := range 8 {
		testCases = append(testCases, executorTestCase(fmt.Sprintf("tc-%d", i), 2))
	}

	suite := suiteFor(testCases...)
	exec, stub, _ := newHarness(t, testCases...)
	stub.delay = 20 * time.Millisecond

	results, err := exec.ExecutePlan(context.Background(), suite, planFor(suite, 3), "run-1")
	require.NoError(t, err)
	require.Len(t, results, 8)

	for _, execution := range results {
		assert.Equal(t, models.ExecutionStatusPassed, execution.Status)
		assert.Equal(t, 0, execution.RetryAttempt)
	}

	assert.LessOrEqual(t, stub.peak.Load(), int32(3), "concurrency width exceeded")
	assert.Equal(t, 0, exec.Tracker().Len(), "in-flight set should drain")
}

func TestExecutor_FlakyTestPassesAfterRetries(t *testing.T) {
	testCase := executorTestCase("tc-flaky", 2)
	suite := suiteFor(testCase)
	exec, stub, reg := newHarness(t, testCase)

	stub.on("tc-flaky",
		stubResult{message: "TimeoutError: locator not visible"},
		stubResult{message: "TimeoutError: locator not visible"},
		stubResult{success: true},
	)

	results, err := exec.ExecutePlan(context.Background(), suite, planFor(suite, 1), "run-1")
	require.NoError(t, err)
	require.Len(t, results, 1)

	execution := results[0]
	assert.Equal(t, models.ExecutionStatusPassed, execution.Status)
	assert.Equal(t, 2, execution.RetryAttempt)
	assert.Equal(t, 3, stub.callCount("tc-flaky"))

	updated, err := reg.Get("tc-flaky")
	require.NoError(t, err)
	assert.InDelta(t, 0.1, updated.FlakinessScore, 1e-9, "passing after retries raises flakiness")
}

func TestExecutor_AttemptBudgetExhausted(t *testing.T) {
	testCase := executorTestCase("tc-doomed", 2)
	suite := suiteFor(testCase)
	exec, stub, _ := newHarness(t, testCase)

	stub.on("tc-doomed", stubResult{message: "NetworkError: connection refused"})

	results, err := exec.ExecutePlan(context.Background(), suite, planFor(suite, 1), "run-1")
	require.NoError(t, err)

	execution := results[0]
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Equal(t, 3, stub.callCount("tc-doomed"), "maxRetries+1 attempts")
	assert.Contains(t, execution.ErrorMessage, "NetworkError")
}

func TestExecutor_DeterministicFailureNotRetried(t *testing.T) {
	testCase := executorTestCase("tc-assert", 3)
	suite := suiteFor(testCase)
	exec, stub, _ := newHarness(t, testCase)

	stub.on("tc-assert", stubResult{message: "AssertionError: expected 3 items, got 2"})

	results, err := exec.ExecutePlan(context.Background(), suite, planFor(suite, 1), "run-1")
	require.NoError(t, err)

	execution := results[0]
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Equal(t, 0, execution.RetryAttempt)
	assert.Equal(t, 1, stub.callCount("tc-assert"))
}

func TestExecutor_RunnerErrorNeverRetried(t *testing.T) {
	testCase := executorTestCase("tc-broken", 3)
	suite := suiteFor(testCase)
	exec, stub, _ := newHarness(t, testCase)

	stub.on("tc-broken", stubResult{err: errors.New("exec: \"playwright\": executable file not found in $PATH")})

	results, err := exec.ExecutePlan(context.Background(), suite, planFor(suite, 1), "run-1")
	require.NoError(t, err)

	execution := results[0]
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Equal(t, 1, stub.callCount("tc-broken"))
	assert.Contains(t, execution.ErrorMessage, "Test runner error")
}

func TestExecutor_UnknownTestProducesSyntheticFailure(t *testing.T) {
	testCase := executorTestCase("tc-known", 1)
	suite := suiteFor(testCase)
	exec, _, _ := newHarness(t, testCase)

	plan := planFor(suite, 2)
	plan.TestIDs = append(plan.TestIDs, "tc-ghost")

	results, err := exec.ExecutePlan(context.Background(), suite, plan, "run-1")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, models.ExecutionStatusPassed, results[0].Status)
	assert.Equal(t, models.ExecutionStatusFailed, results[1].Status)
	assert.Contains(t, results[1].ErrorMessage, "not found in registry")
}

func TestExecutor_CancelRunStopsPendingTests(t *testing.T) {
	blocked := executorTestCase("tc-blocked", 0)
	waiting := executorTestCase("tc-waiting", 0)
	suite := suiteFor(blocked, waiting)
	exec, stub, _ := newHarness(t, blocked, waiting)

	stub.on("tc-blocked", stubResult{block: true})

	done := make(chan []*models.Execution, 1)

	go func() {
		results, err := exec.ExecutePlan(context.Background(), suite, planFor(suite, 1), "run-1")
		require.NoError(t, err)
		done <- results
	}()

	require.Eventually(t, func() bool {
		return exec.Tracker().Len() == 1
	}, time.Second, 5*time.Millisecond)

	exec.CancelRun("operator requested cancellation")

	select {
	case results := <-done:
		require.Len(t, results, 2)
		assert.Equal(t, models.ExecutionStatusCancelled, results[0].Status)
		assert.Equal(t, models.ExecutionStatusCancelled, results[1].Status)
		assert.Equal(t, 0, stub.callCount("tc-waiting"), "pending test must never start")
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled run did not drain")
	}
}

func TestExecutor_CancelSingleExecution(t *testing.T) {
	blocked := executorTestCase("tc-blocked", 0)
	suite := suiteFor(blocked)
	exec, stub, _ := newHarness(t, blocked)

	stub.on("tc-blocked", stubResult{block: true})

	done := make(chan []*models.Execution, 1)

	go func() {
		results, err := exec.ExecutePlan(context.Background(), suite, planFor(suite, 1), "run-1")
		require.NoError(t, err)
		done <- results
	}()

	var executionID string

	require.Eventually(t, func() bool {
		ids := exec.Tracker().IDs()
		if len(ids) == 0 {
			return false
		}

		executionID = ids[0]

		return true
	}, time.Second, 5*time.Millisecond)

	require.True(t, exec.CancelExecution(executionID, "cancelled via API"))
	assert.False(t, exec.CancelExecution(executionID, "second cancel is a no-op"))

	results := <-done
	assert.Equal(t, models.ExecutionStatusCancelled, results[0].Status)
	assert.Equal(t, "cancelled via API", results[0].ErrorMessage)
}

func TestExecutor_TerminalStateNeverReverts(t *testing.T) {
	tracker := NewTracker()
	execution := &models.Execution{
		ID:        "exec-1",
		Status:    models.ExecutionStatusRunning,
		StartTime: time.Now(),
	}
	tracker.Add(execution, nil)

	require.True(t, tracker.Transition("exec-1", models.ExecutionStatusPassed, ""))

	assert.False(t, tracker.Transition("exec-1", models.ExecutionStatusRunning, ""))
	assert.False(t, tracker.Transition("exec-1", models.ExecutionStatusFailed, "late failure"))
	assert.False(t, tracker.MarkRetrying("exec-1", 1))
	assert.Equal(t, models.ExecutionStatusPassed, tracker.Status("exec-1"))
}
