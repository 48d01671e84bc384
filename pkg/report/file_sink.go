package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const timestampLayout = "20060102_150405"

// FileSink writes each report as an indented JSON file named
// run_<suite>_<timestamp>.json under the reports directory.
type FileSink struct {
	dir string
	now func() time.Time
}

func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir, now: time.Now}
}

func (s *FileSink) Save(ctx context.Context, report *Report) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create reports directory: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	name := fmt.Sprintf("run_%s_%s.json", report.SuiteName, s.now().Format(timestampLayout))
	path := filepath.Join(s.dir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}
