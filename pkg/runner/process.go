package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/dukex/testpilot/pkg/models"
	shellquote "github.com/kballard/go-shellquote"
)

// FrameworkConfig describes how to invoke one test framework's runner
// binary. The test file path is appended to the command.
type FrameworkConfig struct {
	Command string `json:"command" validate:"required"`
}

// DefaultFrameworks covers the frameworks the engine ships support for.
func DefaultFrameworks() map[string]FrameworkConfig {
	return map[string]FrameworkConfig{
		"playwright": {Command: "npx playwright test"},
		"wdio":       {Command: "npx wdio run"},
		"api":        {Command: "node"},
	}
}

// ProcessRunner invokes the framework command as a subprocess and captures
// its output.
type ProcessRunner struct {
	frameworks map[string]FrameworkConfig
	workDir    string
	logger     *slog.Logger
}

func NewProcessRunner(frameworks map[string]FrameworkConfig, workDir string, logger *slog.Logger) *ProcessRunner {
	return &ProcessRunner{
		frameworks: frameworks,
		workDir:    workDir,
		logger:     logger.With("module", "process_runner"),
	}
}

// Run executes one attempt. A non-zero exit from the framework command is a
// test failure; failing to start the command at all is a transport error and
// is returned as err.
func (r *ProcessRunner) Run(ctx context.Context, testCase *models.TestCase, environment, executionID string) (*models.RunnerResult, error) {
	framework, ok := r.frameworks[testCase.Framework]
	if !ok {
		return nil, fmt.Errorf("no runner configured for framework %q", testCase.Framework)
	}

	words, err := shellquote.Split(framework.Command)
	if err != nil {
		return nil, fmt.Errorf("invalid command for framework %q: %w", testCase.Framework, err)
	}

	if len(words) == 0 {
		return nil, fmt.Errorf("empty command for framework %q", testCase.Framework)
	}

	args := append(words[1:], testCase.FilePath)

	cmd := exec.CommandContext(ctx, words[0], args...)
	cmd.Dir = r.workDir
	cmd.Env = append(os.Environ(),
		"TEST_ENV="+environment,
		"EXECUTION_ID="+executionID,
		"TEST_CASE_ID="+testCase.ID,
	)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.DebugContext(ctx, "Invoking test runner",
		"test", testCase.Name,
		"framework", testCase.Framework,
		"execution_id", executionID,
	)

	err = cmd.Run()

	result := &models.RunnerResult{
		Success: err == nil,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}

	if err == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		// The command never ran: transport failure, not a test failure.
		return nil, fmt.Errorf("failed to invoke runner for %q: %w", testCase.Name, err)
	}

	result.ReturnCode = exitErr.ExitCode()
	result.ErrorMessage = firstNonEmpty(strings.TrimSpace(stderr.String()), err.Error())

	return result, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
