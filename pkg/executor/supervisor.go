package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dukex/testpilot/pkg/eventbus"
	"github.com/dukex/testpilot/pkg/events"
	"github.com/dukex/testpilot/pkg/models"
)

// DefaultSupervisorInterval matches the one-minute monitoring cadence used
// for long end-to-end runs.
const DefaultSupervisorInterval = 60 * time.Second

// Supervisor watches the in-flight execution set and force-fails any
// execution whose total runtime, retries included, exceeds the allowance.
// The owning worker observes the terminal status and releases its slot, so
// capacity always comes back even when a test hangs.
type Supervisor struct {
	tracker   *Tracker
	allowance time.Duration
	interval  time.Duration
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

func NewSupervisor(
	tracker *Tracker,
	allowance time.Duration,
	interval time.Duration,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Supervisor {
	if interval <= 0 {
		interval = DefaultSupervisorInterval
	}

	return &Supervisor{
		tracker:   tracker,
		allowance: allowance,
		interval:  interval,
		publisher: publisher,
		logger:    logger.With("module", "timeout_supervisor"),
	}
}

// Start runs the polling loop until the context is cancelled.
func (s *Supervisor) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one pass over the in-flight set.
func (s *Supervisor) Sweep(ctx context.Context) []*models.Execution {
	expired := s.tracker.Expire(s.allowance, func(runtime time.Duration) string {
		return fmt.Sprintf("Test timed out after %s", runtime.Round(time.Second))
	})

	for _, execution := range expired {
		s.logger.Error("Execution exceeded timeout allowance",
			"execution_id", execution.ID,
			"test_id", execution.TestID,
			"allowance", s.allowance)

		s.publishTimeout(ctx, execution)
	}

	return expired
}

func (s *Supervisor) publishTimeout(ctx context.Context, execution *models.Execution) {
	if s.publisher == nil {
		return
	}

	event := events.ExecutionTimedOut{ExecutionFinished: events.ExecutionFinished{
		BaseEvent: events.BaseEvent{
			ID:        uuid.New().String(),
			Type:      events.ExecutionTimedOutEvent,
			Timestamp: time.Now(),
		},
		ExecutionID:  execution.ID,
		TestID:       execution.TestID,
		TestName:     execution.TestName,
		Status:       execution.Status,
		RetryAttempt: execution.RetryAttempt,
		Duration:     execution.Duration,
		Error:        execution.ErrorMessage,
	}}

	if err := s.publisher.Publish(ctx, execution.TestID, event); err != nil {
		s.logger.Error("Failed to publish timeout event", "execution_id", execution.ID, "error", err)
	}
}
