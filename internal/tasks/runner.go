// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// =============================================================================
// WORKERS
// =============================================================================

// worker executes pending tasks until the queue closes.
func (q *Queue) worker() {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			return
		case task := <-q.pending:
			q.execute(task)
		}
	}
}

// execute runs a single task and records its outcome.
func (q *Queue) execute(task *Task) {
	var ctx context.Context
	var cancel context.CancelFunc
	if q.timeout > 0 {
		ctx, cancel = context.WithTimeout(q.ctx, q.timeout)
	} else {
		ctx, cancel = context.WithCancel(q.ctx)
	}
	defer cancel()

	if q.ctx.Err() != nil {
		task.requestCancel(q.now())
		return
	}
	// Canceled while queued.
	if err := task.start(cancel, q.now()); err != nil {
		return
	}
	q.logger.Debug("TASK_STARTED", zap.String("task_id", task.ID))

	result, err := call(ctx, task.fn)

	status := TaskStatusCompleted
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		status = TaskStatusCanceled
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		status = TaskStatusFailed
		err = fmt.Errorf("task timeout after %v: %w", q.timeout, ctx.Err())
	case err != nil:
		status = TaskStatusFailed
	}

	q.mu.Lock()
	recorded := task.finish(status, result, err, q.now())
	q.cleanupLocked()
	q.mu.Unlock()

	if !recorded {
		return
	}
	fields := []zap.Field{
		zap.String("task_id", task.ID),
		zap.String("description", task.Description),
		zap.String("status", status.String()),
		zap.Duration("duration", task.Duration()),
	}
	if err != nil {
		q.logger.Warn("TASK_FAILED", append(fields, zap.Error(err))...)
		return
	}
	q.logger.Info("TASK_COMPLETE", fields...)
}

// call invokes fn, turning a panic into an error so one task cannot take
// down its worker.
func call(ctx context.Context, fn Func) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx)
}
