package runner

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/dukex/testpilot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func shellCase(framework string) *models.TestCase {
	return &models.TestCase{
		ID:        "tc-1",
		Name:      "shell test",
		FilePath:  "ignored-arg",
		Framework: framework,
	}
}

func TestProcessRunner_Success(t *testing.T) {
	r := NewProcessRunner(map[string]FrameworkConfig{
		"sh": {Command: "echo running"},
	}, "", testLogger())

	result, err := r.Run(context.Background(), shellCase("sh"), "staging", "exec-1")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.ReturnCode)
	assert.Contains(t, result.Stdout, "running")
}

func TestProcessRunner_TestFailure(t *testing.T) {
	r := NewProcessRunner(map[string]FrameworkConfig{
		"sh": {Command: "false"},
	}, "", testLogger())

	result, err := r.Run(context.Background(), shellCase("sh"), "staging", "exec-1")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotZero(t, result.ReturnCode)
	assert.NotEmpty(t, result.ErrorMessage)
}

func TestProcessRunner_TransportFailure(t *testing.T) {
	r := NewProcessRunner(map[string]FrameworkConfig{
		"sh": {Command: "/nonexistent/test-runner-binary"},
	}, "", testLogger())

	result, err := r.Run(context.Background(), shellCase("sh"), "staging", "exec-1")
	assert.Error(t, err)
	assert.Nil(t, result)
}

func TestProcessRunner_UnknownFramework(t *testing.T) {
	r := NewProcessRunner(DefaultFrameworks(), "", testLogger())

	_, err := r.Run(context.Background(), shellCase("cypress"), "staging", "exec-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no runner configured")
}

func TestProcessRunner_QuotedCommandWords(t *testing.T) {
	r := NewProcessRunner(map[string]FrameworkConfig{
		"sh": {Command: `echo "two words"`},
	}, "", testLogger())

	result, err := r.Run(context.Background(), shellCase("sh"), "staging", "exec-1")
	require.NoError(t, err)
	assert.Contains(t, result.Stdout, "two words")
}
