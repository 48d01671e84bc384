package models

import "time"

// TestSuite is an immutable run configuration: which tests to run and under
// which concurrency and timeout constraints.
type TestSuite struct {
	Name              string        `json:"name"               validate:"required,min=3"`
	Description       string        `json:"description,omitempty"`
	TestCases         []*TestCase   `json:"test_cases"         validate:"required,min=1,dive"`
	ParallelExecution bool          `json:"parallel_execution"`
	MaxConcurrency    int           `json:"max_concurrency"    validate:"required,min=1"`
	Timeout           time.Duration `json:"timeout"            validate:"required,min=1"`
	Environments      []string      `json:"environments,omitempty"`
}

// SupportsEnvironment reports whether the suite targets the given
// environment. A suite without declared environments accepts any.
func (s *TestSuite) SupportsEnvironment(env string) bool {
	if len(s.Environments) == 0 {
		return true
	}

	for _, e := range s.Environments {
		if e == env {
			return true
		}
	}

	return false
}
