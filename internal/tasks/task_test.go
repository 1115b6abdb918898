// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestQueue(t *testing.T, opts Options) *Queue {
	t.Helper()
	q := NewQueue(opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := q.Close(ctx); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return q
}

// waitFor polls the task until it reaches a terminal status.
func waitFor(t *testing.T, q *Queue, id string) *Task {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task, err := q.Get(id)
		if err != nil {
			t.Fatalf("Get(%s): %v", id, err)
		}
		if task.IsComplete() {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s did not finish", id)
	return nil
}

// =============================================================================
// TASK TESTS
// =============================================================================

func TestTransitions(t *testing.T) {
	tests := []struct {
		from, to TaskStatus
		want     bool
	}{
		{TaskStatusQueued, TaskStatusRunning, true},
		{TaskStatusQueued, TaskStatusCanceled, true},
		{TaskStatusQueued, TaskStatusCompleted, false},
		{TaskStatusRunning, TaskStatusCompleted, true},
		{TaskStatusRunning, TaskStatusFailed, true},
		{TaskStatusRunning, TaskStatusCanceled, true},
		{TaskStatusCompleted, TaskStatusRunning, false},
		{TaskStatusCanceled, TaskStatusCompleted, false},
	}
	for _, tt := range tests {
		if got := isValidTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("isValidTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTask_MarshalJSON(t *testing.T) {
	task := newTask("consolidate", nil, time.UnixMilli(1000))
	data, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got["status"] != "queued" || got["submittedAt"] != float64(1000) {
		t.Errorf("json = %s", data)
	}
	if _, ok := got["startTime"]; ok {
		t.Errorf("unset startTime should be omitted: %s", data)
	}
}

func TestTask_Summary(t *testing.T) {
	task := newTask("consolidate", nil, time.Now())
	if _, err := uuid.Parse(task.ID); err != nil {
		t.Fatalf("ID %q is not a uuid: %v", task.ID, err)
	}
	if got := task.Summary(); !strings.Contains(got, "consolidate - queued") {
		t.Errorf("Summary() = %q", got)
	}
}

// =============================================================================
// QUEUE TESTS
// =============================================================================

func TestQueue_SubmitCompletes(t *testing.T) {
	q := newTestQueue(t, Options{})

	task, err := q.Submit("answer", func(ctx context.Context) (any, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	done := waitFor(t, q, task.ID)
	if done.Status != TaskStatusCompleted {
		t.Fatalf("Status = %s, want completed", done.Status)
	}
	if done.Result != 42 {
		t.Errorf("Result = %v, want 42", done.Result)
	}
	if done.StartTime.IsZero() || done.EndTime.IsZero() {
		t.Error("start and end times should be set")
	}
}

func TestQueue_SubmitFails(t *testing.T) {
	q := newTestQueue(t, Options{})

	task, _ := q.Submit("boom", func(ctx context.Context) (any, error) {
		return nil, errors.New("model unavailable")
	})
	done := waitFor(t, q, task.ID)
	if done.Status != TaskStatusFailed || done.Error != "model unavailable" {
		t.Errorf("task = %s %q, want failed %q", done.Status, done.Error, "model unavailable")
	}
}

func TestQueue_PanicBecomesFailure(t *testing.T) {
	q := newTestQueue(t, Options{})

	task, _ := q.Submit("panic", func(ctx context.Context) (any, error) {
		panic("bad")
	})
	done := waitFor(t, q, task.ID)
	if done.Status != TaskStatusFailed || !strings.Contains(done.Error, "panicked") {
		t.Errorf("task = %s %q", done.Status, done.Error)
	}
}

func TestQueue_Timeout(t *testing.T) {
	q := newTestQueue(t, Options{Timeout: 20 * time.Millisecond})

	task, _ := q.Submit("slow", func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	done := waitFor(t, q, task.ID)
	if done.Status != TaskStatusFailed || !strings.Contains(done.Error, "timeout") {
		t.Errorf("task = %s %q, want timeout failure", done.Status, done.Error)
	}
}

func TestQueue_CancelRunning(t *testing.T) {
	q := newTestQueue(t, Options{Concurrency: 1})

	started := make(chan struct{})
	task, _ := q.Submit("block", func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	<-started

	ok, err := q.Cancel(task.ID)
	if err != nil || !ok {
		t.Fatalf("Cancel = %v, %v", ok, err)
	}
	done := waitFor(t, q, task.ID)
	if done.Status != TaskStatusCanceled {
		t.Errorf("Status = %s, want canceled", done.Status)
	}
	if done.Error != "" {
		t.Errorf("canceled task should not record an error, got %q", done.Error)
	}

	ok, err = q.Cancel(task.ID)
	if err != nil || ok {
		t.Errorf("second Cancel = %v, %v, want false, nil", ok, err)
	}
}

func TestQueue_CancelQueued(t *testing.T) {
	q := newTestQueue(t, Options{Concurrency: 1})

	release := make(chan struct{})
	started := make(chan struct{})
	first, _ := q.Submit("block", func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return nil, nil
	})
	<-started

	ran := make(chan struct{}, 1)
	second, _ := q.Submit("never", func(ctx context.Context) (any, error) {
		ran <- struct{}{}
		return nil, nil
	})
	if ok, _ := q.Cancel(second.ID); !ok {
		t.Fatal("queued task should be cancelable")
	}
	close(release)
	waitFor(t, q, first.ID)

	// The worker picks up the canceled task and skips it.
	time.Sleep(20 * time.Millisecond)
	select {
	case <-ran:
		t.Error("canceled task ran")
	default:
	}
	if got, _ := q.Get(second.ID); got.Status != TaskStatusCanceled {
		t.Errorf("Status = %s, want canceled", got.Status)
	}
}

func TestQueue_Full(t *testing.T) {
	q := newTestQueue(t, Options{Concurrency: 1, MaxQueued: 1})

	release := make(chan struct{})
	started := make(chan struct{})
	_, _ = q.Submit("block", func(ctx context.Context) (any, error) {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, nil
	})
	<-started
	defer close(release)

	noop := func(ctx context.Context) (any, error) { return nil, nil }
	if _, err := q.Submit("waiting", noop); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := q.Submit("overflow", noop); !errors.Is(err, ErrQueueFull) {
		t.Errorf("error = %v, want ErrQueueFull", err)
	}
}

func TestQueue_History(t *testing.T) {
	q := newTestQueue(t, Options{Concurrency: 1, HistorySize: 2})

	var ids []string
	for i := 0; i < 4; i++ {
		task, err := q.Submit("job", func(ctx context.Context) (any, error) { return nil, nil })
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		waitFor(t, q, task.ID)
		ids = append(ids, task.ID)
	}

	if got := len(q.List()); got != 2 {
		t.Errorf("len(List()) = %d, want 2", got)
	}
	if _, err := q.Get(ids[0]); !errors.Is(err, ErrNotFound) {
		t.Errorf("oldest task error = %v, want ErrNotFound", err)
	}
	if _, err := q.Get(ids[3]); err != nil {
		t.Errorf("newest task: %v", err)
	}
	if !strings.Contains(q.Summary(), "Completed: 2") {
		t.Errorf("Summary() = %q", q.Summary())
	}
}

func TestQueue_Close(t *testing.T) {
	q := NewQueue(Options{Concurrency: 1})

	started := make(chan struct{})
	task, _ := q.Submit("block", func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	<-started

	if err := q.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got, _ := q.Get(task.ID); got.Status != TaskStatusCanceled {
		t.Errorf("Status = %s, want canceled", got.Status)
	}
	if _, err := q.Submit("late", func(ctx context.Context) (any, error) { return nil, nil }); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after Close error = %v, want ErrClosed", err)
	}
	if err := q.Close(context.Background()); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestQueue_GetUnknown(t *testing.T) {
	q := newTestQueue(t, Options{})
	if _, err := q.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	if _, err := q.Cancel("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Cancel error = %v, want ErrNotFound", err)
	}
}
