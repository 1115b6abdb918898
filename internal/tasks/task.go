// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// TASK STATUS
// =============================================================================

// TaskStatus represents the current state of a background task.
type TaskStatus string

const (
	// TaskStatusQueued indicates the task is waiting for a worker
	TaskStatusQueued TaskStatus = "queued"

	// TaskStatusRunning indicates the task is currently executing
	TaskStatusRunning TaskStatus = "running"

	// TaskStatusCompleted indicates the task finished successfully
	TaskStatusCompleted TaskStatus = "completed"

	// TaskStatusFailed indicates the task returned an error
	TaskStatusFailed TaskStatus = "failed"

	// TaskStatusCanceled indicates the task was canceled before finishing
	TaskStatusCanceled TaskStatus = "canceled"
)

// String returns the string representation of the task status.
func (s TaskStatus) String() string {
	return string(s)
}

// Terminal reports whether no further transitions are possible.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCanceled
}

// =============================================================================
// TASK STRUCTURE
// =============================================================================

// Func is the unit of work a task runs. The context is canceled when the
// task is canceled, times out or the queue closes.
type Func func(ctx context.Context) (any, error)

// Task is a unit of background work tracked by a Queue.
type Task struct {
	ID          string
	Description string
	Status      TaskStatus
	Result      any
	Error       string
	SubmittedAt time.Time
	StartTime   time.Time
	EndTime     time.Time

	fn     Func
	cancel context.CancelFunc
	mu     sync.RWMutex
}

func newTask(description string, fn Func, now time.Time) *Task {
	return &Task{
		ID:          uuid.New().String(),
		Description: description,
		Status:      TaskStatusQueued,
		SubmittedAt: now,
		fn:          fn,
	}
}

// =============================================================================
// STATE TRANSITIONS
// =============================================================================

// isValidTransition checks if a status transition is valid.
// Valid transitions: queued -> running -> completed/failed/canceled,
// and queued -> canceled.
func isValidTransition(from, to TaskStatus) bool {
	switch from {
	case TaskStatusQueued:
		return to == TaskStatusRunning || to == TaskStatusCanceled
	case TaskStatusRunning:
		return to == TaskStatusCompleted || to == TaskStatusFailed || to == TaskStatusCanceled
	default:
		return false
	}
}

// transition moves the task to status, returning an error when the move is
// not allowed. Must be called with the lock held.
func (t *Task) transitionLocked(status TaskStatus, now time.Time) error {
	if !isValidTransition(t.Status, status) {
		return fmt.Errorf("invalid status transition from %s to %s", t.Status, status)
	}
	t.Status = status
	switch {
	case status == TaskStatusRunning:
		t.StartTime = now
	case status.Terminal():
		t.EndTime = now
	}
	return nil
}

// start marks the task running and stores the cancel func for its context.
// It fails when the task was canceled while queued.
func (t *Task) start(cancel context.CancelFunc, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.transitionLocked(TaskStatusRunning, now); err != nil {
		return err
	}
	t.cancel = cancel
	return nil
}

// finish records the outcome of a running task. A task already canceled
// keeps its canceled status and drops the result.
func (t *Task) finish(status TaskStatus, result any, err error, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if terr := t.transitionLocked(status, now); terr != nil {
		return false
	}
	t.Result = result
	if err != nil {
		t.Error = err.Error()
	}
	t.cancel = nil
	return true
}

// requestCancel cancels a queued or running task.
func (t *Task) requestCancel(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.transitionLocked(TaskStatusCanceled, now); err != nil {
		return false
	}
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	return true
}

// =============================================================================
// TASK QUERIES
// =============================================================================

// GetStatus returns the current task status (thread-safe).
func (t *Task) GetStatus() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Status
}

// IsComplete returns true if the task has finished (success, failure, or canceled).
func (t *Task) IsComplete() bool {
	return t.GetStatus().Terminal()
}

// Duration returns how long the task has been running or took to complete.
func (t *Task) Duration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.StartTime.IsZero() {
		return 0
	}
	if t.EndTime.IsZero() {
		return time.Since(t.StartTime)
	}
	return t.EndTime.Sub(t.StartTime)
}

// Summary returns a one-line summary of the task.
func (t *Task) Summary() string {
	status := t.GetStatus()
	duration := t.Duration()

	summary := fmt.Sprintf("[%s] %s - %s", t.ID[:8], t.Description, status)
	if duration > 0 {
		summary += fmt.Sprintf(" (%.1fs)", duration.Seconds())
	}
	return summary
}

// Clone creates a copy of the task for reading. Result is shared, not
// deep-copied.
func (t *Task) Clone() *Task {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return &Task{
		ID:          t.ID,
		Description: t.Description,
		Status:      t.Status,
		Result:      t.Result,
		Error:       t.Error,
		SubmittedAt: t.SubmittedAt,
		StartTime:   t.StartTime,
		EndTime:     t.EndTime,
	}
}

// MarshalJSON omits unset times and reports times in unix milliseconds.
func (t *Task) MarshalJSON() ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	type view struct {
		ID          string     `json:"id"`
		Description string     `json:"description"`
		Status      TaskStatus `json:"status"`
		Result      any        `json:"result,omitempty"`
		Error       string     `json:"error,omitempty"`
		SubmittedAt int64      `json:"submittedAt"`
		StartTime   int64      `json:"startTime,omitempty"`
		EndTime     int64      `json:"endTime,omitempty"`
	}
	return json.Marshal(view{
		ID:          t.ID,
		Description: t.Description,
		Status:      t.Status,
		Result:      t.Result,
		Error:       t.Error,
		SubmittedAt: unixMilli(t.SubmittedAt),
		StartTime:   unixMilli(t.StartTime),
		EndTime:     unixMilli(t.EndTime),
	})
}

func unixMilli(ts time.Time) int64 {
	if ts.IsZero() {
		return 0
	}
	return ts.UnixMilli()
}
