package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/testpilot/pkg/models"
	"github.com/dukex/testpilot/pkg/persistence"
)

func sampleSuite(name string) *models.TestSuite {
	return &models.TestSuite{
		Name:        name,
		Description: "end to end checkout flows",
		TestCases: []*models.TestCase{
			{
				ID:        "tc-1",
				Name:      "guest checkout",
				FilePath:  "tests/checkout.spec.ts",
				Framework: "playwright",
				Priority:  models.PriorityCritical,
			},
		},
		ParallelExecution: true,
		MaxConcurrency:    4,
		Timeout:           30 * time.Minute,
	}
}

func TestFilePersistence_SuiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence("file://" + t.TempDir())

	require.NoError(t, p.SaveTestSuite(ctx, sampleSuite("checkout")))
	require.NoError(t, p.SaveTestSuite(ctx, sampleSuite("smoke")))

	suite, err := p.TestSuiteByName(ctx, "checkout")
	require.NoError(t, err)
	assert.Equal(t, "checkout", suite.Name)
	require.Len(t, suite.TestCases, 1)
	assert.Equal(t, models.PriorityCritical, suite.TestCases[0].Priority)

	suites, err := p.TestSuites(ctx)
	require.NoError(t, err)
	require.Len(t, suites, 2)
	assert.Equal(t, "checkout", suites[0].Name)
	assert.Equal(t, "smoke", suites[1].Name)
}

func TestFilePersistence_UnknownSuite(t *testing.T) {
	p := NewPersistence(t.TempDir())

	_, err := p.TestSuiteByName(context.Background(), "ghost")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestFilePersistence_HistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(t.TempDir())

	lastExecution := time.Now().UTC().Truncate(time.Second)
	history := &models.TestHistory{
		TestID:          "tc-1",
		AvgDuration:     42 * time.Second,
		SuccessRate:     0.91,
		FlakinessScore:  0.2,
		FailurePatterns: []string{"connection reset"},
		LastExecution:   &lastExecution,
		LastUpdated:     time.Now(),
	}

	require.NoError(t, p.SaveTestHistory(ctx, history))

	loaded, err := p.TestHistoryByID(ctx, "tc-1")
	require.NoError(t, err)
	assert.Equal(t, 42*time.Second, loaded.AvgDuration)
	assert.InDelta(t, 0.91, loaded.SuccessRate, 1e-9)
	assert.Equal(t, []string{"connection reset"}, loaded.FailurePatterns)
	require.NotNil(t, loaded.LastExecution)
	assert.True(t, loaded.LastExecution.Equal(lastExecution))

	_, err = p.TestHistoryByID(ctx, "tc-ghost")
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	histories, err := p.TestHistories(ctx)
	require.NoError(t, err)
	assert.Len(t, histories, 1)
}

func TestFilePersistence_SaveExecution(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	p := NewPersistence(root)

	execution := &models.Execution{
		ID:     "exec-1",
		TestID: "tc-1",
		Status: models.ExecutionStatusPassed,
	}

	require.NoError(t, p.SaveExecution(ctx, execution))

	_, err := os.Stat(filepath.Join(root, "executions", "exec-1.json"))
	assert.NoError(t, err)
}

func TestFilePersistence_HealthCheck(t *testing.T) {
	p := NewPersistence(t.TempDir())
	assert.NoError(t, p.HealthCheck(context.Background()))

	missing := NewPersistence(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, missing.HealthCheck(context.Background()))
}

func TestFilePersistence_EmptyListings(t *testing.T) {
	p := NewPersistence(t.TempDir())

	suites, err := p.TestSuites(context.Background())
	require.NoError(t, err)
	assert.Empty(t, suites)

	histories, err := p.TestHistories(context.Background())
	require.NoError(t, err)
	assert.Empty(t, histories)
}
