// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned by Submit when MaxQueued tasks are waiting.
	ErrQueueFull = errors.New("task queue is full")

	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("task queue is closed")

	// ErrNotFound is returned for unknown task IDs.
	ErrNotFound = errors.New("task not found")
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures a Queue.
type Options struct {
	// Concurrency is the number of workers (default 2).
	Concurrency int

	// HistorySize is the number of finished tasks kept for lookup
	// (0 = unlimited).
	HistorySize int

	// MaxQueued bounds tasks waiting for a worker (default 64).
	MaxQueued int

	// Timeout applies to each task (0 = none).
	Timeout time.Duration

	Logger *zap.Logger
	Now    func() time.Time
}

// DefaultOptions returns the default queue settings.
func DefaultOptions() Options {
	return Options{
		Concurrency: 2,
		HistorySize: 100,
		MaxQueued:   64,
	}
}

func (o *Options) fill() {
	d := DefaultOptions()
	if o.Concurrency <= 0 {
		o.Concurrency = d.Concurrency
	}
	if o.HistorySize < 0 {
		o.HistorySize = 0
	}
	if o.MaxQueued <= 0 {
		o.MaxQueued = d.MaxQueued
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// =============================================================================
// TASK QUEUE
// =============================================================================

// Queue runs submitted functions on a fixed pool of workers and keeps a
// bounded history of finished tasks.
type Queue struct {
	// tasks is the list of all tasks in submission order
	tasks []*Task
	byID  map[string]*Task

	pending chan *Task
	closed  bool
	mu      sync.RWMutex

	historySize int
	timeout     time.Duration
	logger      *zap.Logger
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQueue creates a queue and starts its workers. Call Close to stop them.
func NewQueue(opts Options) *Queue {
	opts.fill()
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		byID:        make(map[string]*Task),
		pending:     make(chan *Task, opts.MaxQueued),
		historySize: opts.HistorySize,
		timeout:     opts.Timeout,
		logger:      opts.Logger,
		now:         opts.Now,
		ctx:         ctx,
		cancel:      cancel,
	}
	for i := 0; i < opts.Concurrency; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// =============================================================================
// TASK MANAGEMENT
// =============================================================================

// Submit queues fn and returns a snapshot of the new task.
func (q *Queue) Submit(description string, fn Func) (*Task, error) {
	if fn == nil {
		return nil, errors.New("task function is nil")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrClosed
	}
	task := newTask(description, fn, q.now())
	select {
	case q.pending <- task:
	default:
		return nil, fmt.Errorf("%w: %d waiting", ErrQueueFull, cap(q.pending))
	}
	q.tasks = append(q.tasks, task)
	q.byID[task.ID] = task

	q.logger.Debug("TASK_SUBMITTED",
		zap.String("task_id", task.ID),
		zap.String("description", description),
	)
	return task.Clone(), nil
}

// Get retrieves a snapshot of a task by ID.
func (q *Queue) Get(id string) (*Task, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	task, ok := q.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return task.Clone(), nil
}

// List returns snapshots of all known tasks in submission order.
func (q *Queue) List() []*Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]*Task, len(q.tasks))
	for i, task := range q.tasks {
		result[i] = task.Clone()
	}
	return result
}

// Cancel cancels a queued or running task. It reports false when the task
// already finished.
func (q *Queue) Cancel(id string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.byID[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !task.requestCancel(q.now()) {
		return false, nil
	}
	q.logger.Info("TASK_CANCELED", zap.String("task_id", id))
	q.cleanupLocked()
	return true, nil
}

// Close stops accepting tasks, cancels running ones and waits for the
// workers to exit or ctx to end. Tasks still waiting are marked canceled.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	now := q.now()
	for {
		select {
		case task := <-q.pending:
			task.requestCancel(now)
		default:
			return nil
		}
	}
}

// =============================================================================
// CLEANUP
// =============================================================================

// cleanupLocked removes the oldest finished tasks beyond historySize.
// Must be called with lock held.
func (q *Queue) cleanupLocked() {
	if q.historySize <= 0 {
		return
	}

	completedCount := 0
	for _, task := range q.tasks {
		if task.IsComplete() {
			completedCount++
		}
	}
	if completedCount <= q.historySize {
		return
	}

	toRemove := completedCount - q.historySize
	kept := make([]*Task, 0, len(q.tasks)-toRemove)
	for _, task := range q.tasks {
		if task.IsComplete() && toRemove > 0 {
			toRemove--
			delete(q.byID, task.ID)
			continue
		}
		kept = append(kept, task)
	}
	q.tasks = kept
}

// =============================================================================
// FORMATTING
// =============================================================================

// Summary returns a formatted summary of the queue.
func (q *Queue) Summary() string {
	q.mu.RLock()
	defer q.mu.RUnlock()

	counts := make(map[TaskStatus]int)
	for _, task := range q.tasks {
		counts[task.GetStatus()]++
	}

	return fmt.Sprintf("Running: %d | Queued: %d | Completed: %d | Failed: %d | Canceled: %d",
		counts[TaskStatusRunning], counts[TaskStatusQueued], counts[TaskStatusCompleted],
		counts[TaskStatusFailed], counts[TaskStatusCanceled])
}
