// Package scorer defines the pluggable decision interfaces the engine
// consults for test prioritization and retry judgement. Implementations may
// be backed by any external service; the engine always carries a
// deterministic rule-based fallback, so scorer failures never fail a run.
package scorer

import (
	"context"
	"time"

	"github.com/dukex/testpilot/pkg/models"
)

// RetryConfidenceThreshold gates external retry judgements: a decision at or
// below this confidence is treated as "do not retry" regardless of its
// boolean.
const RetryConfidenceThreshold = 0.6

// TestSummary is the statistics view of a test case shared with external
// prioritization scorers.
type TestSummary struct {
	Name           string          `json:"name"`
	Priority       models.Priority `json:"priority"`
	FlakinessScore float64         `json:"flakiness_score"`
	SuccessRate    float64         `json:"success_rate"`
	AvgDuration    time.Duration   `json:"avg_duration"`
	LastExecution  *time.Time      `json:"last_execution,omitempty"`
	Tags           []string        `json:"tags,omitempty"`
}

func NewTestSummary(testCase *models.TestCase) TestSummary {
	return TestSummary{
		Name:           testCase.Name,
		Priority:       testCase.Priority,
		FlakinessScore: testCase.FlakinessScore,
		SuccessRate:    testCase.SuccessRate,
		AvgDuration:    testCase.AvgDuration,
		LastExecution:  testCase.LastExecution,
		Tags:           testCase.Tags,
	}
}

// PrioritizationScorer proposes an execution order. The proposal may be a
// subset or superset of the given tests; the engine reconciles it against
// the rule-based order.
type PrioritizationScorer interface {
	ProposeOrder(ctx context.Context, tests []TestSummary) ([]string, error)
}

// RetryRequest describes a failed attempt for an external retry judgement.
type RetryRequest struct {
	TestName              string   `json:"test_name"`
	AttemptNumber         int      `json:"attempt_number"`
	MaxRetries            int      `json:"max_retries"`
	FlakinessScore        float64  `json:"flakiness_score"`
	SuccessRate           float64  `json:"success_rate"`
	ErrorDetail           string   `json:"error_detail"`
	RecentFailurePatterns []string `json:"recent_failure_patterns,omitempty"`
}

// RetryDecision is an external scorer's judgement on whether to retry.
type RetryDecision struct {
	ShouldRetry bool    `json:"should_retry"`
	Confidence  float64 `json:"confidence"`
	Reason      string  `json:"reason,omitempty"`
}

// Approved applies the confidence gate to the raw judgement.
func (d *RetryDecision) Approved() bool {
	return d.ShouldRetry && d.Confidence > RetryConfidenceThreshold
}

// RetryScorer judges whether a failed attempt is worth retrying.
type RetryScorer interface {
	JudgeRetry(ctx context.Context, request RetryRequest) (*RetryDecision, error)
}
