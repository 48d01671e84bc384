package executor

import (
	"context"
	"sync"
	"time"

	"github.com/dukex/testpilot/pkg/models"
)

type inflight struct {
	execution *models.Execution
	cancel    context.CancelFunc
}

// Tracker is the shared in-flight execution set. The executor and the
// timeout supervisor both transition executions through it; every mutation
// goes through the tracker's lock and the status state machine, so a
// terminal status can never revert to a non-terminal one.
type Tracker struct {
	mu         sync.Mutex
	executions map[string]*inflight
}

func NewTracker() *Tracker {
	return &Tracker{
		executions: make(map[string]*inflight),
	}
}

// Add registers a new in-flight execution with its cancel function.
func (t *Tracker) Add(execution *models.Execution, cancel context.CancelFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.executions[execution.ID] = &inflight{execution: execution, cancel: cancel}
}

// Remove takes the execution out of the in-flight set and returns it. After
// removal the caller owns the record exclusively.
func (t *Tracker) Remove(executionID string) *models.Execution {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.executions[executionID]
	if !ok {
		return nil
	}

	delete(t.executions, executionID)

	return entry.execution
}

// Transition moves the execution to the given status if the state machine
// allows it. Terminal transitions stamp the end time and duration. Returns
// false when the execution is unknown or the transition is rejected.
func (t *Tracker) Transition(executionID string, status models.ExecutionStatus, errorMessage string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.transitionLocked(executionID, status, errorMessage)
}

func (t *Tracker) transitionLocked(executionID string, status models.ExecutionStatus, errorMessage string) bool {
	entry, ok := t.executions[executionID]
	if !ok {
		return false
	}

	execution := entry.execution
	if !execution.Status.CanTransitionTo(status) {
		return false
	}

	execution.Status = status
	if errorMessage != "" {
		execution.ErrorMessage = errorMessage
	}

	if status.Terminal() {
		execution.EndTime = time.Now()
		execution.Duration = execution.EndTime.Sub(execution.StartTime)
	}

	return true
}

// MarkRetrying records the retry transition together with the next attempt
// number.
func (t *Tracker) MarkRetrying(executionID string, attempt int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.transitionLocked(executionID, models.ExecutionStatusRetrying, "") {
		return false
	}

	t.executions[executionID].execution.RetryAttempt = attempt

	return true
}

// AppendLogs adds captured output lines to the execution.
func (t *Tracker) AppendLogs(executionID string, lines ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.executions[executionID]
	if !ok {
		return
	}

	entry.execution.Logs = append(entry.execution.Logs, lines...)
}

// Status returns the current status, or empty string for unknown ids.
func (t *Tracker) Status(executionID string) models.ExecutionStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.executions[executionID]
	if !ok {
		return ""
	}

	return entry.execution.Status
}

// Get returns a copy of the in-flight execution, or nil.
func (t *Tracker) Get(executionID string) *models.Execution {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.executions[executionID]
	if !ok {
		return nil
	}

	copied := *entry.execution
	copied.Logs = append([]string(nil), entry.execution.Logs...)

	return &copied
}

// IDs returns the ids of every in-flight execution.
func (t *Tracker) IDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.executions))
	for id := range t.executions {
		ids = append(ids, id)
	}

	return ids
}

// Len returns the number of in-flight executions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.executions)
}

// Cancel transitions the execution to cancelled and unblocks its worker by
// cancelling its context. Returns false when the execution is unknown or
// already terminal.
func (t *Tracker) Cancel(executionID string, reason string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.executions[executionID]
	if !ok {
		return false
	}

	if !t.transitionLocked(executionID, models.ExecutionStatusCancelled, reason) {
		return false
	}

	if entry.cancel != nil {
		entry.cancel()
	}

	return true
}

// CancelAll cancels every in-flight execution.
func (t *Tracker) CancelAll(reason string) {
	t.mu.Lock()
	ids := make([]string, 0, len(t.executions))

	for id := range t.executions {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	for _, id := range ids {
		t.Cancel(id, reason)
	}
}

// Expire force-fails every execution running longer than the allowance and
// returns copies of the expired records. The worker owning each execution
// observes the terminal status, releases its slot and reports the record.
func (t *Tracker) Expire(allowance time.Duration, errorMessage func(runtime time.Duration) string) []*models.Execution {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()

	var expired []*models.Execution

	for id, entry := range t.executions {
		execution := entry.execution
		if execution.Status.Terminal() || execution.StartTime.IsZero() {
			continue
		}

		runtime := now.Sub(execution.StartTime)
		if runtime <= allowance {
			continue
		}

		if !t.transitionLocked(id, models.ExecutionStatusFailed, errorMessage(runtime)) {
			continue
		}

		if entry.cancel != nil {
			entry.cancel()
		}

		copied := *execution
		expired = append(expired, &copied)
	}

	return expired
}
