// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/jeranaias/instantcoffee/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// TEST HELPERS
// =============================================================================

type fakeStore struct {
	mu      sync.Mutex
	nextID  int64
	creates int
	updates int
	saved   map[int64]store.SessionState
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{nextID: 41, saved: map[int64]store.SessionState{}}
}

func (f *fakeStore) CreateSession(_ context.Context, state store.SessionState) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.nextID++
	f.creates++
	f.saved[f.nextID] = state
	return f.nextID, nil
}

func (f *fakeStore) UpdateSession(_ context.Context, id int64, state store.SessionState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.updates++
	f.saved[id] = state
	return nil
}

func (f *fakeStore) counts() (creates, updates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates, f.updates
}

func stateWith(n int, src string) store.SessionState {
	s := store.SessionState{DiagramSource: src, HistoryIndex: -1}
	for i := 0; i < n; i++ {
		s.Messages = append(s.Messages, store.NewChatMessage(store.RoleUser, "m"))
	}
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func testConfig() Config {
	return Config{Enabled: true, Debounce: 20 * time.Millisecond}
}

// =============================================================================
// CONFIG TESTS
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.Enabled {
		t.Error("Default Enabled should be true")
	}
	if cfg.Debounce != 1500*time.Millisecond {
		t.Errorf("Default Debounce = %v, want 1.5s", cfg.Debounce)
	}
}

func TestNewManager_FillsDebounce(t *testing.T) {
	m := NewManager(newFakeStore(), Config{})
	if m.debounce != DefaultDebounce {
		t.Errorf("debounce = %v, want %v", m.debounce, DefaultDebounce)
	}
}

// =============================================================================
// DEBOUNCED SAVE TESTS
// =============================================================================

func TestObserve_CreatesThenUpdates(t *testing.T) {
	fs := newFakeStore()
	var mu sync.Mutex
	var savedIDs []int64
	cfg := testConfig()
	cfg.OnSaved = func(id int64) {
		mu.Lock()
		savedIDs = append(savedIDs, id)
		mu.Unlock()
	}
	m := NewManager(fs, cfg)
	defer m.Close(context.Background())

	m.Observe(stateWith(1, ""))
	if !m.HasUnsavedChanges() {
		t.Error("HasUnsavedChanges should be true after a change")
	}
	waitFor(t, func() bool { return m.SessionID() != 0 })

	if got := m.SessionID(); got != 42 {
		t.Errorf("SessionID = %d, want 42", got)
	}
	waitFor(t, func() bool { return !m.HasUnsavedChanges() })

	m.Observe(stateWith(2, "graph TD"))
	waitFor(t, func() bool { _, u := fs.counts(); return u == 1 })

	creates, updates := fs.counts()
	if creates != 1 || updates != 1 {
		t.Errorf("creates=%d updates=%d, want 1 and 1", creates, updates)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(savedIDs) != 2 || savedIDs[0] != 42 || savedIDs[1] != 42 {
		t.Errorf("OnSaved ids = %v, want [42 42]", savedIDs)
	}
}

func TestObserve_UnchangedKeyDoesNotSave(t *testing.T) {
	fs := newFakeStore()
	m := NewManager(fs, testConfig())
	defer m.Close(context.Background())

	m.Attach(7, stateWith(2, "a"))
	if m.HasUnsavedChanges() {
		t.Error("Attach should not mark unsaved")
	}

	// Same length, source and index: content edits alone are not a change.
	s := stateWith(2, "a")
	s.Messages[1].Content = "streamed text"
	m.Observe(s)
	time.Sleep(60 * time.Millisecond)

	if c, u := fs.counts(); c != 0 || u != 0 {
		t.Errorf("creates=%d updates=%d, want none", c, u)
	}
}

func TestObserve_DebounceCoalesces(t *testing.T) {
	fs := newFakeStore()
	m := NewManager(fs, Config{Enabled: true, Debounce: 50 * time.Millisecond})
	defer m.Close(context.Background())
	m.SetCurrentSession(5)

	for i := 1; i <= 5; i++ {
		m.Observe(stateWith(i, ""))
		time.Sleep(5 * time.Millisecond)
	}
	waitFor(t, func() bool { _, u := fs.counts(); return u >= 1 })
	time.Sleep(80 * time.Millisecond)

	_, updates := fs.counts()
	if updates != 1 {
		t.Errorf("updates = %d, want 1", updates)
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if got := len(fs.saved[5].Messages); got != 5 {
		t.Errorf("saved %d messages, want latest state with 5", got)
	}
}

func TestObserve_Disabled(t *testing.T) {
	fs := newFakeStore()
	cfg := testConfig()
	cfg.Enabled = false
	m := NewManager(fs, cfg)
	defer m.Discard()

	m.Observe(stateWith(1, ""))
	time.Sleep(50 * time.Millisecond)
	if c, _ := fs.counts(); c != 0 {
		t.Errorf("creates = %d, want 0 while disabled", c)
	}

	// Flush still writes.
	if err := m.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if c, _ := fs.counts(); c != 1 {
		t.Errorf("creates = %d, want 1 after Flush", c)
	}
}

func TestSaveFailure_KeepsUnsaved(t *testing.T) {
	fs := newFakeStore()
	fs.err = errors.New("disk full")
	m := NewManager(fs, testConfig())
	defer m.Discard()

	m.Observe(stateWith(1, ""))
	time.Sleep(60 * time.Millisecond)

	if !m.HasUnsavedChanges() {
		t.Error("HasUnsavedChanges should stay true after a failed save")
	}
	if m.SessionID() != 0 {
		t.Errorf("SessionID = %d, want 0", m.SessionID())
	}
	if err := m.Flush(context.Background()); err == nil {
		t.Error("Flush should return the store error")
	}
}

// =============================================================================
// FLUSH / CLOSE TESTS
// =============================================================================

func TestFlush_EmptyNewConversation(t *testing.T) {
	fs := newFakeStore()
	m := NewManager(fs, testConfig())
	defer m.Close(context.Background())

	m.Observe(store.SessionState{HistoryIndex: -1})
	if err := m.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if c, u := fs.counts(); c != 0 || u != 0 {
		t.Errorf("creates=%d updates=%d, want nothing for an empty conversation", c, u)
	}
}

func TestFlush_DiagramOnly(t *testing.T) {
	fs := newFakeStore()
	m := NewManager(fs, testConfig())
	defer m.Close(context.Background())

	m.Observe(stateWith(0, "graph TD\nA-->B"))
	if err := m.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if c, _ := fs.counts(); c != 1 {
		t.Errorf("creates = %d, want 1", c)
	}
	if m.HasUnsavedChanges() {
		t.Error("HasUnsavedChanges should be false after Flush")
	}
}

func TestClose_FlushesPending(t *testing.T) {
	fs := newFakeStore()
	m := NewManager(fs, Config{Enabled: true, Debounce: time.Hour})

	m.SetCurrentSession(3)
	m.Observe(stateWith(1, ""))
	if err := m.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, u := fs.counts(); u != 1 {
		t.Errorf("updates = %d, want 1", u)
	}
	if err := m.Flush(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Flush after Close = %v, want ErrClosed", err)
	}
	// Idempotent.
	if err := m.Close(context.Background()); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestDiscard_DropsPending(t *testing.T) {
	fs := newFakeStore()
	m := NewManager(fs, testConfig())
	m.SetCurrentSession(3)
	m.Observe(stateWith(1, ""))
	m.Discard()
	time.Sleep(50 * time.Millisecond)
	if _, u := fs.counts(); u != 0 {
		t.Errorf("updates = %d, want 0 after Discard", u)
	}
}

func TestGetStatus(t *testing.T) {
	m := NewManager(newFakeStore(), testConfig())
	defer m.Discard()
	m.SetCurrentSession(9)
	m.SetEnabled(false)

	st := m.GetStatus()
	if st.SessionID != 9 || st.AutoSaveEnabled || st.HasUnsavedChanges {
		t.Errorf("GetStatus = %+v", st)
	}
}

func TestStateKey(t *testing.T) {
	a := stateKey(stateWith(2, "x"))
	b := stateKey(stateWith(2, "x"))
	if a != b {
		t.Errorf("stateKey not stable: %q vs %q", a, b)
	}
	moved := stateWith(2, "x")
	moved.HistoryIndex = 3
	if stateKey(moved) == a {
		t.Error("stateKey should change with HistoryIndex")
	}
	want := `{"messagesLength":2,"diagramSource":"x","historyIndex":-1}`
	if a != want {
		t.Errorf("stateKey = %s, want %s", a, want)
	}
}
