// Package report assembles and persists run reports.
package report

import (
	"context"
	"time"

	"github.com/dukex/testpilot/pkg/analyzer"
	"github.com/dukex/testpilot/pkg/models"
)

// Report is the durable record of one suite run.
type Report struct {
	SuiteName     string             `json:"suite_name"`
	RunID         string             `json:"run_id"`
	Environment   string             `json:"environment"`
	StartTime     time.Time          `json:"start_time"`
	EndTime       time.Time          `json:"end_time"`
	ExecutionTime time.Duration      `json:"execution_time"`
	Analysis      *analyzer.Analysis `json:"analysis"`
	Results       []*models.Execution `json:"detailed_results"`
	Metadata      Metadata           `json:"metadata"`
}

// Metadata describes how the run was produced.
type Metadata struct {
	EngineVersion     string `json:"engine_version"`
	ScorerEnabled     bool   `json:"scorer_enabled"`
	ParallelExecution bool   `json:"parallel_execution"`
}

// Sink persists reports. Implementations must be safe for use from a single
// run loop; the orchestrator never writes two reports concurrently.
type Sink interface {
	Save(ctx context.Context, report *Report) error
}
