// Package registry holds the test cases known to the engine together with
// their rolling execution statistics.
package registry

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/testpilot/pkg/fingerprint"
	"github.com/dukex/testpilot/pkg/models"
)

// ErrNotFound is returned when a test case id is not registered.
var ErrNotFound = errors.New("test case not found")

// EMA weights and flakiness adjustments. These match the statistics the
// engine has always tracked, so persisted history stays comparable.
const (
	durationWeight     = 0.2
	successRateWeight  = 0.1
	flakinessIncrease  = 0.1
	flakinessDecrease  = 0.05
	maxFailurePatterns = 10
)

type entry struct {
	mu       sync.Mutex
	testCase *models.TestCase
}

// Registry is the in-memory store of test cases for one engine lifetime.
// Statistics updates for the same id are serialized; different ids update
// independently.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		logger:  logger.With("module", "registry"),
	}
}

// Register inserts the test case, replacing any previous registration with
// the same id. A test with no execution history starts fully trusted: its
// success rate seeds at 1.0, so the first clean pass keeps it there instead
// of averaging up from zero.
func (r *Registry) Register(testCase *models.TestCase) {
	r.mu.Lock()
	defer r.mu.Unlock()

	registered := snapshot(testCase)
	if registered.LastExecution == nil && registered.SuccessRate == 0 {
		registered.SuccessRate = 1.0
	}

	r.entries[testCase.ID] = &entry{testCase: registered}
}

// Get returns a snapshot of the test case, or ErrNotFound.
func (r *Registry) Get(id string) (*models.TestCase, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return snapshot(e.testCase), nil
}

// All returns snapshots of every registered test case.
func (r *Registry) All() []*models.TestCase {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cases := make([]*models.TestCase, 0, len(r.entries))
	for _, e := range r.entries {
		e.mu.Lock()
		cases = append(cases, snapshot(e.testCase))
		e.mu.Unlock()
	}

	return cases
}

// Len returns the number of registered test cases.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

// UpdateStatistics folds a completed execution into the test case's rolling
// statistics and returns the updated snapshot. The update is atomic per test
// id: concurrent updates for different ids proceed in parallel.
func (r *Registry) UpdateStatistics(id string, execution *models.Execution) (*models.TestCase, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	testCase := e.testCase

	if execution.Duration > 0 {
		if testCase.AvgDuration == 0 {
			testCase.AvgDuration = execution.Duration
		} else {
			testCase.AvgDuration = time.Duration(
				float64(testCase.AvgDuration)*(1-durationWeight) +
					float64(execution.Duration)*durationWeight)
		}
	}

	switch execution.Status {
	case models.ExecutionStatusPassed:
		testCase.SuccessRate = testCase.SuccessRate*(1-successRateWeight) + successRateWeight
	case models.ExecutionStatusFailed:
		testCase.SuccessRate *= 1 - successRateWeight
	}

	if execution.RetryAttempt > 0 {
		switch execution.Status {
		case models.ExecutionStatusPassed:
			// Passed only after retrying: the test is flaky.
			testCase.FlakinessScore = min(1.0, testCase.FlakinessScore+flakinessIncrease)
		case models.ExecutionStatusFailed:
			// Retries exhausted without success: likely a real failure.
			testCase.FlakinessScore = max(0.0, testCase.FlakinessScore-flakinessDecrease)
		}
	}

	if execution.Status == models.ExecutionStatusFailed && execution.ErrorMessage != "" {
		r.recordFailurePattern(testCase, execution.ErrorMessage)
	}

	now := execution.EndTime
	if now.IsZero() {
		now = time.Now()
	}

	testCase.LastExecution = &now

	r.logger.Debug("Updated test statistics",
		"test_id", id,
		"status", execution.Status,
		"success_rate", testCase.SuccessRate,
		"flakiness_score", testCase.FlakinessScore,
	)

	return snapshot(testCase), nil
}

// recordFailurePattern appends the fingerprint of the error message to the
// bounded list of recent distinct patterns, evicting the oldest.
func (r *Registry) recordFailurePattern(testCase *models.TestCase, errorMessage string) {
	pattern := fingerprint.Extract(errorMessage)
	if pattern == "" {
		return
	}

	for _, existing := range testCase.FailurePatterns {
		if existing == pattern {
			return
		}
	}

	testCase.FailurePatterns = append(testCase.FailurePatterns, pattern)
	if len(testCase.FailurePatterns) > maxFailurePatterns {
		testCase.FailurePatterns = testCase.FailurePatterns[1:]
	}
}

func snapshot(testCase *models.TestCase) *models.TestCase {
	copied := *testCase

	copied.Tags = append([]string(nil), testCase.Tags...)
	copied.Dependencies = append([]string(nil), testCase.Dependencies...)
	copied.Environments = append([]string(nil), testCase.Environments...)
	copied.FailurePatterns = append([]string(nil), testCase.FailurePatterns...)

	if testCase.LastExecution != nil {
		last := *testCase.LastExecution
		copied.LastExecution = &last
	}

	return &copied
}
