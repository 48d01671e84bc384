package models

import "time"

// TestHistory is the persisted slice of a test case's rolling statistics. It
// is written after every statistics update and read back at startup to
// hydrate the registry, so estimates survive engine restarts.
type TestHistory struct {
	TestID          string        `json:"test_id"            validate:"required"`
	AvgDuration     time.Duration `json:"avg_execution_time"`
	SuccessRate     float64       `json:"success_rate"       validate:"min=0,max=1"`
	FlakinessScore  float64       `json:"flaky_score"        validate:"min=0,max=1"`
	FailurePatterns []string      `json:"failure_patterns,omitempty"`
	LastExecution   *time.Time    `json:"last_execution,omitempty"`
	LastUpdated     time.Time     `json:"last_updated"`
}

// NewTestHistory snapshots the statistics of a test case.
func NewTestHistory(testCase *TestCase) *TestHistory {
	return &TestHistory{
		TestID:          testCase.ID,
		AvgDuration:     testCase.AvgDuration,
		SuccessRate:     testCase.SuccessRate,
		FlakinessScore:  testCase.FlakinessScore,
		FailurePatterns: append([]string(nil), testCase.FailurePatterns...),
		LastExecution:   testCase.LastExecution,
		LastUpdated:     time.Now(),
	}
}

// ApplyTo copies the persisted statistics onto the test case.
func (h *TestHistory) ApplyTo(testCase *TestCase) {
	testCase.AvgDuration = h.AvgDuration
	testCase.SuccessRate = h.SuccessRate
	testCase.FlakinessScore = h.FlakinessScore
	testCase.FailurePatterns = append([]string(nil), h.FailurePatterns...)
	testCase.LastExecution = h.LastExecution
}
