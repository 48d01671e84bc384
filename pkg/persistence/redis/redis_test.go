package redis_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/testpilot/pkg/models"
	"github.com/dukex/testpilot/pkg/persistence"
	"github.com/dukex/testpilot/pkg/persistence/redis"
)

// Integration tests run against a real Redis, pointed at by REDIS_URL.
func setupRedis(t *testing.T) (*redis.Persistence, context.Context) {
	t.Helper()

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set, skipping Redis integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	p, err := redis.NewPersistence(ctx, redisURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, p.Close(ctx))
		cancel()
	})

	return p, ctx
}

func TestRedisPersistence_SuiteRoundTrip(t *testing.T) {
	p, ctx := setupRedis(t)

	name := "checkout-" + uuid.New().String()
	suite := &models.TestSuite{
		Name: name,
		TestCases: []*models.TestCase{
			{ID: "tc-1", Name: "guest checkout", FilePath: "tests/checkout.spec.ts", Framework: "playwright"},
		},
		MaxConcurrency: 2,
		Timeout:        time.Minute,
	}

	require.NoError(t, p.SaveTestSuite(ctx, suite))

	loaded, err := p.TestSuiteByName(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, name, loaded.Name)
	require.Len(t, loaded.TestCases, 1)

	_, err = p.TestSuiteByName(ctx, "ghost-"+uuid.New().String())
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestRedisPersistence_HistoryRoundTrip(t *testing.T) {
	p, ctx := setupRedis(t)

	testID := "tc-" + uuid.New().String()
	history := &models.TestHistory{
		TestID:         testID,
		AvgDuration:    10 * time.Second,
		SuccessRate:    0.8,
		FlakinessScore: 0.3,
		LastUpdated:    time.Now(),
	}

	require.NoError(t, p.SaveTestHistory(ctx, history))

	loaded, err := p.TestHistoryByID(ctx, testID)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, loaded.AvgDuration)
	assert.InDelta(t, 0.8, loaded.SuccessRate, 1e-9)
}

func TestRedisPersistence_SaveExecution(t *testing.T) {
	p, ctx := setupRedis(t)

	execution := &models.Execution{
		ID:     uuid.New().String(),
		TestID: "tc-1",
		Status: models.ExecutionStatusPassed,
	}

	require.NoError(t, p.SaveExecution(ctx, execution))
	require.NoError(t, p.HealthCheck(ctx))
}
