package orchestrator

import (
	"sync"
	"time"

	"github.com/dukex/testpilot/pkg/models"
)

const metricsSmoothing = 0.2

// Metrics is the engine-level rolling view across runs.
type Metrics struct {
	mu sync.Mutex

	totalExecutions    int
	totalFailures      int
	avgExecutionTime   time.Duration
	flakyTestsDetected int
	retrySuccessRate   float64
}

// MetricsSnapshot is the queryable copy handed to callers.
type MetricsSnapshot struct {
	TotalExecutions    int           `json:"total_executions"`
	TotalFailures      int           `json:"total_failures"`
	AvgExecutionTime   time.Duration `json:"avg_execution_time"`
	FlakyTestsDetected int           `json:"flaky_tests_detected"`
	RetrySuccessRate   float64       `json:"retry_success_rate"`
	ActiveExecutions   int           `json:"active_executions"`
	TotalTestCases     int           `json:"total_test_cases"`
	Timestamp          time.Time     `json:"timestamp"`
}

// Update folds one run's results into the rolling metrics. Averages use
// exponential smoothing so recent runs dominate.
func (m *Metrics) Update(results []*models.Execution) {
	if len(results) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		totalDuration time.Duration
		retried       int
		recovered     int
	)

	for _, execution := range results {
		totalDuration += execution.Duration

		if execution.Status == models.ExecutionStatusFailed {
			m.totalFailures++
		}

		if execution.RetryAttempt > 0 {
			retried++

			if execution.Status == models.ExecutionStatusPassed {
				recovered++
			}
		}
	}

	m.totalExecutions += len(results)
	m.flakyTestsDetected += recovered

	avgDuration := totalDuration / time.Duration(len(results))
	if m.avgExecutionTime == 0 {
		m.avgExecutionTime = avgDuration
	} else {
		m.avgExecutionTime = time.Duration(
			float64(m.avgExecutionTime)*(1-metricsSmoothing) + float64(avgDuration)*metricsSmoothing)
	}

	if retried > 0 {
		retryRate := float64(recovered) / float64(retried)
		if m.retrySuccessRate == 0 {
			m.retrySuccessRate = retryRate
		} else {
			m.retrySuccessRate = m.retrySuccessRate*(1-metricsSmoothing) + retryRate*metricsSmoothing
		}
	}
}

func (m *Metrics) snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return MetricsSnapshot{
		TotalExecutions:    m.totalExecutions,
		TotalFailures:      m.totalFailures,
		AvgExecutionTime:   m.avgExecutionTime,
		FlakyTestsDetected: m.flakyTestsDetected,
		RetrySuccessRate:   m.retrySuccessRate,
		Timestamp:          time.Now(),
	}
}
