// Package redis provides Redis-backed persistence. Suites, history and
// executions live in hashes keyed by a common prefix, which keeps a shared
// Redis usable by several engines at once.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dukex/testpilot/pkg/models"
	"github.com/dukex/testpilot/pkg/persistence"
)

const (
	suitesKey     = "testpilot:suites"
	historyKey    = "testpilot:test_history"
	executionsKey = "testpilot:executions"
)

type Persistence struct {
	client *goredis.Client
}

// NewPersistence connects using a redis:// URL.
func NewPersistence(ctx context.Context, redisURL string) (*Persistence, error) {
	options, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := goredis.NewClient(options)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Persistence{client: client}, nil
}

func (p *Persistence) Close(_ context.Context) error {
	return p.client.Close()
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	return nil
}

func (p *Persistence) TestSuites(ctx context.Context) ([]*models.TestSuite, error) {
	entries, err := p.client.HGetAll(ctx, suitesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list suites: %w", err)
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}

	sort.Strings(names)

	suites := make([]*models.TestSuite, 0, len(names))

	for _, name := range names {
		suite := &models.TestSuite{}
		if err := json.Unmarshal([]byte(entries[name]), suite); err != nil {
			return nil, fmt.Errorf("failed to unmarshal suite %s: %w", name, err)
		}

		suites = append(suites, suite)
	}

	return suites, nil
}

func (p *Persistence) TestSuiteByName(ctx context.Context, name string) (*models.TestSuite, error) {
	data, err := p.client.HGet(ctx, suitesKey, name).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, persistence.ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get suite %s: %w", name, err)
	}

	suite := &models.TestSuite{}
	if err := json.Unmarshal([]byte(data), suite); err != nil {
		return nil, fmt.Errorf("failed to unmarshal suite %s: %w", name, err)
	}

	return suite, nil
}

func (p *Persistence) SaveTestSuite(ctx context.Context, suite *models.TestSuite) error {
	return p.save(ctx, suitesKey, suite.Name, suite)
}

func (p *Persistence) TestHistories(ctx context.Context) ([]*models.TestHistory, error) {
	entries, err := p.client.HGetAll(ctx, historyKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list test history: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	histories := make([]*models.TestHistory, 0, len(ids))

	for _, id := range ids {
		history := &models.TestHistory{}
		if err := json.Unmarshal([]byte(entries[id]), history); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history %s: %w", id, err)
		}

		histories = append(histories, history)
	}

	return histories, nil
}

func (p *Persistence) TestHistoryByID(ctx context.Context, testID string) (*models.TestHistory, error) {
	data, err := p.client.HGet(ctx, historyKey, testID).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, persistence.ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get history %s: %w", testID, err)
	}

	history := &models.TestHistory{}
	if err := json.Unmarshal([]byte(data), history); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history %s: %w", testID, err)
	}

	return history, nil
}

func (p *Persistence) SaveTestHistory(ctx context.Context, history *models.TestHistory) error {
	return p.save(ctx, historyKey, history.TestID, history)
}

func (p *Persistence) SaveExecution(ctx context.Context, execution *models.Execution) error {
	return p.save(ctx, executionsKey, execution.ID, execution)
}

func (p *Persistence) save(ctx context.Context, key, field string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", key, field, err)
	}

	if err := p.client.HSet(ctx, key, field, data).Err(); err != nil {
		return fmt.Errorf("failed to save %s/%s: %w", key, field, err)
	}

	return nil
}
