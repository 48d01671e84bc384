// Package analyzer aggregates terminal execution records into run-level
// insights.
package analyzer

import (
	"sort"
	"time"

	"github.com/dukex/testpilot/pkg/fingerprint"
	"github.com/dukex/testpilot/pkg/models"
)

const topPatterns = 5

// Summary holds the headline counts of a run.
type Summary struct {
	TotalTests    int           `json:"total_tests"`
	Passed        int           `json:"passed"`
	Failed        int           `json:"failed"`
	Cancelled     int           `json:"cancelled"`
	PassRate      float64       `json:"pass_rate"`
	AvgDuration   time.Duration `json:"avg_duration"`
	TotalDuration time.Duration `json:"total_duration"`
}

// Performance compares the run's serial cost against its wall-clock time.
type Performance struct {
	ParallelEfficiency float64 `json:"parallel_efficiency"`
	FastestTest        string  `json:"fastest_test,omitempty"`
	SlowestTest        string  `json:"slowest_test,omitempty"`
}

// PatternCount is one entry of the failure-fingerprint histogram.
type PatternCount struct {
	Pattern string `json:"pattern"`
	Count   int    `json:"count"`
}

// Quality reports flakiness observed within the run itself.
type Quality struct {
	FlakyTests            int            `json:"flaky_tests"`
	RetrySuccessRate      float64        `json:"retry_success_rate"`
	CommonFailurePatterns []PatternCount `json:"common_failure_patterns,omitempty"`
}

type Analysis struct {
	Summary     Summary     `json:"summary"`
	Performance Performance `json:"performance"`
	Quality     Quality     `json:"quality"`
}

// Analyze aggregates the run's execution records. wallClock is the observed
// run duration; when zero the longest single execution is used instead, which
// makes the efficiency ratio degenerate to 1.0 for sequential runs.
func Analyze(results []*models.Execution, wallClock time.Duration) *Analysis {
	analysis := &Analysis{}
	if len(results) == 0 {
		return analysis
	}

	var (
		totalDuration time.Duration
		fastest       = results[0]
		slowest       = results[0]
		flaky         int
		retried       int
		patterns      = make(map[string]int)
	)

	for _, execution := range results {
		totalDuration += execution.Duration

		switch execution.Status {
		case models.ExecutionStatusPassed:
			analysis.Summary.Passed++
		case models.ExecutionStatusFailed:
			analysis.Summary.Failed++
		case models.ExecutionStatusCancelled:
			analysis.Summary.Cancelled++
		}

		if execution.Duration < fastest.Duration {
			fastest = execution
		}

		if execution.Duration > slowest.Duration {
			slowest = execution
		}

		if execution.RetryAttempt > 0 {
			retried++

			if execution.Status == models.ExecutionStatusPassed {
				flaky++
			}
		}

		if execution.Status == models.ExecutionStatusFailed && execution.ErrorMessage != "" {
			if pattern := fingerprint.Extract(execution.ErrorMessage); pattern != "" {
				patterns[pattern]++
			}
		}
	}

	total := len(results)
	analysis.Summary.TotalTests = total
	analysis.Summary.PassRate = float64(analysis.Summary.Passed) / float64(total)
	analysis.Summary.TotalDuration = totalDuration
	analysis.Summary.AvgDuration = totalDuration / time.Duration(total)

	if wallClock <= 0 {
		wallClock = slowest.Duration
	}

	if wallClock > 0 {
		analysis.Performance.ParallelEfficiency = float64(totalDuration) / float64(wallClock)
	}

	analysis.Performance.FastestTest = fastest.TestName
	analysis.Performance.SlowestTest = slowest.TestName

	analysis.Quality.FlakyTests = flaky
	if retried > 0 {
		analysis.Quality.RetrySuccessRate = float64(flaky) / float64(retried)
	}

	analysis.Quality.CommonFailurePatterns = topFailurePatterns(patterns)

	return analysis
}

// topFailurePatterns ranks fingerprints by count, alphabetical on ties so
// the histogram is deterministic.
func topFailurePatterns(patterns map[string]int) []PatternCount {
	if len(patterns) == 0 {
		return nil
	}

	ranked := make([]PatternCount, 0, len(patterns))
	for pattern, count := range patterns {
		ranked = append(ranked, PatternCount{Pattern: pattern, Count: count})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}

		return ranked[i].Pattern < ranked[j].Pattern
	})

	if len(ranked) > topPatterns {
		ranked = ranked[:topPatterns]
	}

	return ranked
}
