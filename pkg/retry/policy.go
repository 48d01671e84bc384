// Package retry decides whether failed executions are retried and with what
// delay.
package retry

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/dukex/testpilot/pkg/models"
	"github.com/dukex/testpilot/pkg/scorer"
)

const jitterFraction = 0.1

// Policy implements the retry decision: deterministic pattern rules with an
// optional external scorer whose judgement is confidence-gated and always
// capped by the test's attempt budget.
type Policy struct {
	config models.RetryConfig
	scorer scorer.RetryScorer
	logger *slog.Logger
}

func NewPolicy(config models.RetryConfig, retryScorer scorer.RetryScorer, logger *slog.Logger) *Policy {
	return &Policy{
		config: config,
		scorer: retryScorer,
		logger: logger.With("module", "retry_policy"),
	}
}

// ShouldRetry reports whether the failed attempt should be retried. The
// attempt budget is enforced before anything else, so no scorer can push a
// test past its declared max retries. Scorer failures fall back to the
// rule-based decision.
func (p *Policy) ShouldRetry(ctx context.Context, testCase *models.TestCase, errorDetail string, attemptCount int) bool {
	if attemptCount >= testCase.MaxRetries {
		return false
	}

	if p.scorer != nil {
		decision, err := p.scorer.JudgeRetry(ctx, scorer.RetryRequest{
			TestName:              testCase.Name,
			AttemptNumber:         attemptCount + 1,
			MaxRetries:            testCase.MaxRetries,
			FlakinessScore:        testCase.FlakinessScore,
			SuccessRate:           testCase.SuccessRate,
			ErrorDetail:           errorDetail,
			RecentFailurePatterns: testCase.FailurePatterns,
		})
		if err == nil {
			p.logger.DebugContext(ctx, "External retry judgement",
				"test", testCase.Name,
				"should_retry", decision.ShouldRetry,
				"confidence", decision.Confidence,
			)

			return decision.Approved()
		}

		p.logger.WarnContext(ctx, "External retry judgement failed, using rule-based decision",
			"test", testCase.Name, "error", err)
	}

	return p.ruleBasedDecision(testCase, errorDetail)
}

// ruleBasedDecision classifies the error by substring match: skip patterns
// are deterministic failures and never retry, retry patterns are transient
// and always do. Unclassified errors retry only for tests with a low
// flakiness score, where a failure is more likely environmental.
func (p *Policy) ruleBasedDecision(testCase *models.TestCase, errorDetail string) bool {
	detail := strings.ToLower(errorDetail)

	for _, pattern := range p.config.SkipOnPatterns {
		if strings.Contains(detail, strings.ToLower(pattern)) {
			return false
		}
	}

	for _, pattern := range p.config.RetryOnPatterns {
		if strings.Contains(detail, strings.ToLower(pattern)) {
			return true
		}
	}

	return testCase.FlakinessScore < 0.3
}

// RetryDelay returns the backoff delay before the given attempt, with ±10%
// symmetric jitter applied to avoid synchronized retry storms.
func (p *Policy) RetryDelay(attemptCount int) time.Duration {
	delay := BackoffDelay(p.config, attemptCount)

	jitter := (rand.Float64()*2 - 1) * jitterFraction

	return time.Duration(float64(delay) * (1 + jitter))
}

// BackoffDelay returns the deterministic delay before the given attempt:
// baseDelay * 2^attempt with exponential backoff enabled, baseDelay
// otherwise. No jitter is applied.
func BackoffDelay(config models.RetryConfig, attemptCount int) time.Duration {
	if !config.ExponentialBackoff {
		return config.BaseDelay
	}

	if attemptCount > 30 {
		attemptCount = 30
	}

	return config.BaseDelay * time.Duration(1<<attemptCount)
}
