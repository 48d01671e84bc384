// Package postgresql provides PostgreSQL persistence for test suites,
// rolling test statistics and execution records.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/dukex/testpilot/pkg/models"
	"github.com/dukex/testpilot/pkg/persistence"
	"github.com/dukex/testpilot/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPersistence creates a new PostgreSQL persistence layer and runs pending
// migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{db: database, logger: logger}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) TestSuites(ctx context.Context) ([]*models.TestSuite, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT definition FROM test_suites ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query test suites: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			p.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	suites := make([]*models.TestSuite, 0)

	for rows.Next() {
		var definition []byte
		if err := rows.Scan(&definition); err != nil {
			return nil, fmt.Errorf("failed to scan test suite: %w", err)
		}

		suite := &models.TestSuite{}
		if err := json.Unmarshal(definition, suite); err != nil {
			return nil, fmt.Errorf("failed to unmarshal test suite: %w", err)
		}

		suites = append(suites, suite)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating test suites: %w", err)
	}

	return suites, nil
}

func (p *Persistence) TestSuiteByName(ctx context.Context, name string) (*models.TestSuite, error) {
	var definition []byte

	err := p.db.QueryRowContext(ctx, "SELECT definition FROM test_suites WHERE name = $1", name).Scan(&definition)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query test suite %s: %w", name, err)
	}

	suite := &models.TestSuite{}
	if err := json.Unmarshal(definition, suite); err != nil {
		return nil, fmt.Errorf("failed to unmarshal test suite %s: %w", name, err)
	}

	return suite, nil
}

func (p *Persistence) SaveTestSuite(ctx context.Context, suite *models.TestSuite) error {
	definition, err := json.Marshal(suite)
	if err != nil {
		return fmt.Errorf("failed to marshal test suite %s: %w", suite.Name, err)
	}

	query := `
		INSERT INTO test_suites (name, definition, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET definition = EXCLUDED.definition, updated_at = NOW()
	`

	if _, err := p.db.ExecContext(ctx, query, suite.Name, definition); err != nil {
		return fmt.Errorf("failed to save test suite %s: %w", suite.Name, err)
	}

	return nil
}

func (p *Persistence) TestHistories(ctx context.Context) ([]*models.TestHistory, error) {
	query := `
		SELECT
			test_id
		  , avg_execution_time_ns
		  , success_rate
		  , flaky_score
		  , failure_patterns
		  , last_execution
		  , last_updated
		FROM test_history
		ORDER BY test_id
	`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query test history: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			p.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	histories := make([]*models.TestHistory, 0)

	for rows.Next() {
		history, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}

		histories = append(histories, history)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating test history: %w", err)
	}

	return histories, nil
}

func (p *Persistence) TestHistoryByID(ctx context.Context, testID string) (*models.TestHistory, error) {
	query := `
		SELECT
			test_id
		  , avg_execution_time_ns
		  , success_rate
		  , flaky_score
		  , failure_patterns
		  , last_execution
		  , last_updated
		FROM test_history
		WHERE test_id = $1
	`

	history, err := scanHistory(p.db.QueryRowContext(ctx, query, testID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	return history, nil
}

func (p *Persistence) SaveTestHistory(ctx context.Context, history *models.TestHistory) error {
	patterns, err := json.Marshal(history.FailurePatterns)
	if err != nil {
		return fmt.Errorf("failed to marshal failure patterns: %w", err)
	}

	query := `
		INSERT INTO test_history (test_id, avg_execution_time_ns, success_rate, flaky_score, failure_patterns, last_execution, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (test_id) DO UPDATE SET
			avg_execution_time_ns = EXCLUDED.avg_execution_time_ns,
			success_rate = EXCLUDED.success_rate,
			flaky_score = EXCLUDED.flaky_score,
			failure_patterns = EXCLUDED.failure_patterns,
			last_execution = EXCLUDED.last_execution,
			last_updated = EXCLUDED.last_updated
	`

	_, err = p.db.ExecContext(ctx, query,
		history.TestID,
		int64(history.AvgDuration),
		history.SuccessRate,
		history.FlakinessScore,
		patterns,
		history.LastExecution,
		history.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to save test history %s: %w", history.TestID, err)
	}

	return nil
}

func (p *Persistence) SaveExecution(ctx context.Context, execution *models.Execution) error {
	logs, err := json.Marshal(execution.Logs)
	if err != nil {
		return fmt.Errorf("failed to marshal execution logs: %w", err)
	}

	query := `
		INSERT INTO executions (id, test_id, test_name, status, environment, retry_attempt, start_time, end_time, duration_ns, error_message, logs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			retry_attempt = EXCLUDED.retry_attempt,
			end_time = EXCLUDED.end_time,
			duration_ns = EXCLUDED.duration_ns,
			error_message = EXCLUDED.error_message,
			logs = EXCLUDED.logs
	`

	_, err = p.db.ExecContext(ctx, query,
		execution.ID,
		execution.TestID,
		execution.TestName,
		string(execution.Status),
		execution.Environment,
		execution.RetryAttempt,
		nullableTime(execution.StartTime),
		nullableTime(execution.EndTime),
		int64(execution.Duration),
		execution.ErrorMessage,
		logs,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution %s: %w", execution.ID, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHistory(row rowScanner) (*models.TestHistory, error) {
	var (
		history       models.TestHistory
		durationNanos int64
		patterns      []byte
		lastExecution sql.NullTime
	)

	err := row.Scan(
		&history.TestID,
		&durationNanos,
		&history.SuccessRate,
		&history.FlakinessScore,
		&patterns,
		&lastExecution,
		&history.LastUpdated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("failed to scan test history: %w", err)
	}

	history.AvgDuration = time.Duration(durationNanos)

	if len(patterns) > 0 {
		if err := json.Unmarshal(patterns, &history.FailurePatterns); err != nil {
			return nil, fmt.Errorf("failed to unmarshal failure patterns: %w", err)
		}
	}

	if lastExecution.Valid {
		history.LastExecution = &lastExecution.Time
	}

	return &history, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}

	return t
}
