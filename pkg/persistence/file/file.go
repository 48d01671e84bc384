// Package file provides file-based persistence: suites and history as JSON
// documents under a root directory.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dukex/testpilot/pkg/models"
	"github.com/dukex/testpilot/pkg/persistence"
)

const (
	suitesDir     = "suites"
	historyDir    = "test_history"
	executionsDir = "executions"
)

// Persistence implements the persistence.Persistence interface using the
// file system. Layout under the root:
//
//	suites/<name>.json
//	test_history/<test_id>.json
//	executions/<execution_id>.json
type Persistence struct {
	root string
}

func NewPersistence(root string) *Persistence {
	return &Persistence{root: strings.Replace(root, "file://", "", 1)}
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (p *Persistence) TestSuites(_ context.Context) ([]*models.TestSuite, error) {
	dir := filepath.Join(p.root, suitesDir)

	names, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list suite files: %w", err)
	}

	sort.Strings(names)

	suites := make([]*models.TestSuite, 0, len(names))

	for _, name := range names {
		suite := &models.TestSuite{}
		if err := readJSON(filepath.Join(dir, name), suite); err != nil {
			return nil, fmt.Errorf("failed to read suite %s: %w", name, err)
		}

		suites = append(suites, suite)
	}

	return suites, nil
}

func (p *Persistence) TestSuiteByName(_ context.Context, name string) (*models.TestSuite, error) {
	suite := &models.TestSuite{}

	err := readJSON(filepath.Join(p.root, suitesDir, name+".json"), suite)
	if errors.Is(err, os.ErrNotExist) {
		return nil, persistence.ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read suite %s: %w", name, err)
	}

	return suite, nil
}

func (p *Persistence) SaveTestSuite(_ context.Context, suite *models.TestSuite) error {
	return writeJSON(filepath.Join(p.root, suitesDir, suite.Name+".json"), suite)
}

func (p *Persistence) TestHistories(_ context.Context) ([]*models.TestHistory, error) {
	dir := filepath.Join(p.root, historyDir)

	names, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list history files: %w", err)
	}

	sort.Strings(names)

	histories := make([]*models.TestHistory, 0, len(names))

	for _, name := range names {
		history := &models.TestHistory{}
		if err := readJSON(filepath.Join(dir, name), history); err != nil {
			return nil, fmt.Errorf("failed to read history %s: %w", name, err)
		}

		histories = append(histories, history)
	}

	return histories, nil
}

func (p *Persistence) TestHistoryByID(_ context.Context, testID string) (*models.TestHistory, error) {
	history := &models.TestHistory{}

	err := readJSON(filepath.Join(p.root, historyDir, testID+".json"), history)
	if errors.Is(err, os.ErrNotExist) {
		return nil, persistence.ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read history for %s: %w", testID, err)
	}

	return history, nil
}

func (p *Persistence) SaveTestHistory(_ context.Context, history *models.TestHistory) error {
	return writeJSON(filepath.Join(p.root, historyDir, history.TestID+".json"), history)
}

func (p *Persistence) SaveExecution(_ context.Context, execution *models.Execution) error {
	return writeJSON(filepath.Join(p.root, executionsDir, execution.ID+".json"), execution)
}

func readJSON(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, target)
}

func writeJSON(path string, source any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(source, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}
