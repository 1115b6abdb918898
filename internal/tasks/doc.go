// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tasks runs long operations, such as memory consolidation, in the
// background so an HTTP request can return a task ID immediately.
//
// # Usage
//
//	q := tasks.NewQueue(tasks.Options{Concurrency: 2, HistorySize: 100})
//	defer q.Close(ctx)
//
//	task, err := q.Submit("consolidate memories", func(ctx context.Context) (any, error) {
//	    return consolidator.Consolidate(ctx)
//	})
//
//	snapshot, err := q.Get(task.ID)
package tasks
