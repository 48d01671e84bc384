// Package models defines the core domain models for test orchestration.
package models

import "time"

// Priority is the declared business priority of a test case.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank maps a priority to a comparable weight. Unknown priorities rank
// below low so malformed input never outranks declared tests.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// TestCase represents a discovered test with its metadata and the rolling
// statistics accumulated across runs. Metadata comes from the discovery
// collaborator; statistics are mutated only through the registry.
type TestCase struct {
	ID                string         `json:"id"                 validate:"required"`
	Name              string         `json:"name"               validate:"required,min=3"`
	Description       string         `json:"description,omitempty"`
	FilePath          string         `json:"file_path"          validate:"required"`
	Framework         string         `json:"framework"          validate:"required"`
	Tags              []string       `json:"tags,omitempty"`
	Priority          Priority       `json:"priority"           validate:"required,oneof=critical high medium low"`
	EstimatedDuration time.Duration  `json:"estimated_duration" validate:"min=0"`
	Dependencies      []string       `json:"dependencies,omitempty"`
	Environments      []string       `json:"environments,omitempty"`
	MaxRetries        int            `json:"max_retries"        validate:"min=0"`
	Metadata          map[string]any `json:"metadata,omitempty"`

	// Rolling statistics.
	AvgDuration     time.Duration `json:"avg_duration"`
	SuccessRate     float64       `json:"success_rate"    validate:"min=0,max=1"`
	FlakinessScore  float64       `json:"flakiness_score" validate:"min=0,max=1"`
	FailurePatterns []string      `json:"failure_patterns,omitempty"`
	LastExecution   *time.Time    `json:"last_execution,omitempty"`
}

// DurationEstimate returns the best available duration estimate: the rolling
// average when history exists, the declared estimate otherwise.
func (tc *TestCase) DurationEstimate() time.Duration {
	if tc.AvgDuration > 0 {
		return tc.AvgDuration
	}

	return tc.EstimatedDuration
}

// HasAnyTag reports whether the test carries at least one of the given tags.
func (tc *TestCase) HasAnyTag(tags []string) bool {
	for _, want := range tags {
		for _, have := range tc.Tags {
			if want == have {
				return true
			}
		}
	}

	return false
}
