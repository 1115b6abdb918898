// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/instantcoffee/internal/store"
	"github.com/jeranaias/instantcoffee/internal/telemetry"
)

// DefaultDebounce is how long state must be quiet before it is written.
const DefaultDebounce = 1500 * time.Millisecond

// ErrClosed is returned by Flush after Close.
var ErrClosed = errors.New("session manager closed")

// Store is the persistence the manager writes to.
type Store interface {
	CreateSession(ctx context.Context, state store.SessionState) (int64, error)
	UpdateSession(ctx context.Context, id int64, state store.SessionState) error
}

// =============================================================================
// SESSION MANAGER
// =============================================================================

// Manager auto-saves one conversation. Observe is called with every state
// change; the manager writes the latest state once changes stop for the
// debounce interval. The first save of a conversation without an ID creates
// the session row and adopts its ID.
type Manager struct {
	mu sync.Mutex

	// Session tracking
	sessionID  int64 // 0 = not yet persisted
	state      store.SessionState
	haveState  bool
	lastKey    string
	hasUnsaved bool
	lastSaved  time.Time

	// Auto-save configuration
	enabled  bool
	debounce time.Duration
	timer    *time.Timer
	closed   bool

	// saveMu serializes writes so a create is never raced by a second create.
	saveMu sync.Mutex

	store    Store
	logger   *zap.Logger
	recorder telemetry.Recorder

	// Callbacks
	onSaved func(id int64)
}

// Config holds configuration for the session manager.
type Config struct {
	// Enabled turns debounced saving on. Flush works regardless.
	Enabled bool

	// Debounce is the quiet period before a save (default: 1500ms).
	Debounce time.Duration

	Logger   *zap.Logger
	Recorder telemetry.Recorder

	// OnSaved is called after each successful save, outside the lock.
	OnSaved func(id int64)
}

// DefaultConfig returns the default auto-save configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:  true,
		Debounce: DefaultDebounce,
	}
}

// NewManager creates a manager writing to s.
func NewManager(s Store, cfg Config) *Manager {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		enabled:  cfg.Enabled,
		debounce: cfg.Debounce,
		store:    s,
		logger:   logger,
		recorder: telemetry.OrNoop(cfg.Recorder),
		onSaved:  cfg.OnSaved,
	}
}

// =============================================================================
// SESSION STATE
// =============================================================================

// SessionID returns the persisted ID, or 0 before the first save.
func (m *Manager) SessionID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// HasUnsavedChanges reports whether observed state has not been written yet.
func (m *Manager) HasUnsavedChanges() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasUnsaved
}

// LastSaved returns when the last successful save finished.
func (m *Manager) LastSaved() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSaved
}

// SetCurrentSession switches to session id. Pending changes are dropped.
func (m *Manager) SetCurrentSession(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimerLocked()
	m.sessionID = id
	m.hasUnsaved = false
}

// Attach switches to a loaded session and primes the change key with its
// state, so restoring it does not schedule a write.
func (m *Manager) Attach(id int64, state store.SessionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimerLocked()
	m.sessionID = id
	m.state = state.Clone()
	m.haveState = true
	m.lastKey = stateKey(state)
	m.hasUnsaved = false
}

// SetEnabled turns debounced saving on or off. Disabling cancels a pending
// save but keeps the unsaved flag.
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
	if !enabled {
		m.stopTimerLocked()
	}
}

// =============================================================================
// CHANGE TRACKING
// =============================================================================

// stateKey captures the fields whose change warrants a save.
func stateKey(s store.SessionState) string {
	data, _ := json.Marshal(struct {
		MessagesLength int    `json:"messagesLength"`
		DiagramSource  string `json:"diagramSource"`
		HistoryIndex   int    `json:"historyIndex"`
	}{len(s.Messages), s.DiagramSource, s.HistoryIndex})
	return string(data)
}

// Observe records the latest state. When its key differs from the last one
// seen, the session is marked unsaved and the debounce timer restarts.
func (m *Manager) Observe(state store.SessionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	m.state = state.Clone()
	m.haveState = true
	if !m.enabled {
		return
	}

	key := stateKey(state)
	if key == m.lastKey {
		return
	}
	m.lastKey = key
	m.hasUnsaved = true

	m.stopTimerLocked()
	m.timer = time.AfterFunc(m.debounce, m.fire)
}

func (m *Manager) fire() {
	m.mu.Lock()
	if m.closed || !m.enabled {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.mu.Unlock()

	if err := m.save(context.Background()); err != nil {
		m.logger.Error("SESSION_SAVE_FAILED", zap.Error(err))
	}
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// =============================================================================
// SAVING
// =============================================================================

// Flush cancels any pending save and writes now. Nothing is written for a
// conversation that has no ID, no messages and no diagram.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.stopTimerLocked()
	worth := m.sessionID != 0 || len(m.state.Messages) > 0 || m.state.DiagramSource != ""
	m.mu.Unlock()

	if !worth {
		return nil
	}
	return m.save(ctx)
}

// save writes the latest observed state and clears the unsaved flag.
func (m *Manager) save(ctx context.Context) error {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.Lock()
	if !m.haveState {
		m.mu.Unlock()
		return nil
	}
	id := m.sessionID
	state := m.state.Clone()
	key := stateKey(state)
	m.mu.Unlock()

	created := id == 0
	var err error
	if created {
		id, err = m.store.CreateSession(ctx, state)
	} else {
		err = m.store.UpdateSession(ctx, id, state)
	}
	m.recorder.RecordSave(ctx, created, err)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.sessionID == 0 || m.sessionID == id {
		m.sessionID = id
		// Changes observed while writing stay unsaved.
		if stateKey(m.state) == key {
			m.hasUnsaved = false
		}
	}
	m.lastSaved = time.Now()
	onSaved := m.onSaved
	m.mu.Unlock()

	if created {
		m.logger.Info("SESSION_CREATED", zap.Int64("session_id", id))
	} else {
		m.logger.Debug("SESSION_SAVED", zap.Int64("session_id", id))
	}

	// Execute callback outside lock
	if onSaved != nil {
		onSaved(id)
	}
	return nil
}

// Close flushes pending changes and stops the manager.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	pending := m.hasUnsaved
	m.mu.Unlock()

	var err error
	if pending {
		err = m.Flush(ctx)
	}

	m.mu.Lock()
	m.closed = true
	m.stopTimerLocked()
	m.mu.Unlock()
	return err
}

// Discard stops the manager without writing. Used when the session row has
// been deleted.
func (m *Manager) Discard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.stopTimerLocked()
}

// =============================================================================
// SESSION STATUS
// =============================================================================

// Status is a snapshot of the manager for the API.
type Status struct {
	SessionID         int64     `json:"sessionId"`
	HasUnsavedChanges bool      `json:"hasUnsavedChanges"`
	AutoSaveEnabled   bool      `json:"autoSaveEnabled"`
	LastSaved         time.Time `json:"lastSaved"`
}

// GetStatus returns the current status.
func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		SessionID:         m.sessionID,
		HasUnsavedChanges: m.hasUnsaved,
		AutoSaveEnabled:   m.enabled,
		LastSaved:         m.lastSaved,
	}
}
