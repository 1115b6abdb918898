// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jeranaias/instantcoffee/internal/diagram"
	"github.com/jeranaias/instantcoffee/internal/session"
	"github.com/jeranaias/instantcoffee/internal/store"
)

// SessionStore is the persistence the hub loads from and saves to.
type SessionStore interface {
	session.Store
	LoadSession(ctx context.Context, id int64) (*store.Session, error)
}

type entry struct {
	conv  *Conversation
	saver *session.Manager
}

// Hub keeps the open conversations, one per session, each with its own
// auto-saver.
type Hub struct {
	store   SessionStore
	base    Options
	saveCfg session.Config
	logger  *zap.Logger

	mu     sync.Mutex
	byID   map[int64]*entry
	byConv map[*Conversation]*entry
}

// NewHub creates a hub. base is the template for every conversation; its
// OnChange is replaced by the auto-saver.
func NewHub(s SessionStore, base Options, saveCfg session.Config) *Hub {
	logger := base.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if saveCfg.Logger == nil {
		saveCfg.Logger = logger
	}
	return &Hub{
		store:   s,
		base:    base,
		saveCfg: saveCfg,
		logger:  logger,
		byID:    make(map[int64]*entry),
		byConv:  make(map[*Conversation]*entry),
	}
}

func (h *Hub) newEntry(d diagram.Dialect) *entry {
	e := &entry{}
	cfg := h.saveCfg
	userSaved := cfg.OnSaved
	cfg.OnSaved = func(id int64) {
		h.mu.Lock()
		if _, ok := h.byConv[e.conv]; ok {
			h.byID[id] = e
		}
		h.mu.Unlock()
		if userSaved != nil {
			userSaved(id)
		}
	}
	e.saver = session.NewManager(h.store, cfg)

	opts := h.base
	if d != "" {
		opts.Dialect = d
	}
	opts.OnChange = e.saver.Observe
	e.conv = NewConversation(opts)
	return e
}

// Start opens a new conversation with no session row. The row is created on
// the first save, after which Open finds it by ID.
func (h *Hub) Start(d diagram.Dialect) *Conversation {
	e := h.newEntry(d)
	h.mu.Lock()
	h.byConv[e.conv] = e
	h.mu.Unlock()
	return e.conv
}

// Create inserts an empty session immediately and opens it.
func (h *Hub) Create(ctx context.Context, d diagram.Dialect) (int64, *Conversation, error) {
	e := h.newEntry(d)
	id, err := h.store.CreateSession(ctx, e.conv.Snapshot())
	if err != nil {
		e.saver.Discard()
		return 0, nil, err
	}
	e.saver.Attach(id, e.conv.Snapshot())

	h.mu.Lock()
	h.byID[id] = e
	h.byConv[e.conv] = e
	h.mu.Unlock()

	h.logger.Info("SESSION_OPENED", zap.Int64("session_id", id), zap.Bool("created", true))
	return id, e.conv, nil
}

// Open returns the conversation for session id, loading it on first use.
func (h *Hub) Open(ctx context.Context, id int64) (*Conversation, error) {
	h.mu.Lock()
	if e, ok := h.byID[id]; ok {
		h.mu.Unlock()
		return e.conv, nil
	}
	h.mu.Unlock()

	sess, err := h.store.LoadSession(ctx, id)
	if err != nil {
		return nil, err
	}

	var d diagram.Dialect
	if sess.State.Dialect != "" {
		d, _ = diagram.ParseDialect(sess.State.Dialect)
	}
	e := h.newEntry(d)
	e.conv.Restore(ctx, sess.State)
	e.saver.Attach(id, e.conv.Snapshot())

	h.mu.Lock()
	defer h.mu.Unlock()
	// Another caller may have loaded it while we were reading.
	if existing, ok := h.byID[id]; ok {
		e.saver.Discard()
		return existing.conv, nil
	}
	h.byID[id] = e
	h.byConv[e.conv] = e
	h.logger.Info("SESSION_OPENED", zap.Int64("session_id", id), zap.Bool("created", false))
	return e.conv, nil
}

// Replace overwrites session id with state, as when a client imports a
// session document, and saves it immediately.
func (h *Hub) Replace(ctx context.Context, id int64, state store.SessionState) (*Conversation, error) {
	conv, err := h.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	conv.Restore(ctx, state)

	h.mu.Lock()
	e, ok := h.byConv[conv]
	h.mu.Unlock()
	if !ok {
		return nil, errors.New("conversation is not open")
	}
	e.saver.Observe(conv.Snapshot())
	if err := e.saver.Flush(ctx); err != nil {
		return nil, err
	}
	return conv, nil
}

// SessionID returns the persisted ID of conv, or 0 if not yet saved.
func (h *Hub) SessionID(conv *Conversation) int64 {
	h.mu.Lock()
	e, ok := h.byConv[conv]
	h.mu.Unlock()
	if !ok {
		return 0
	}
	return e.saver.SessionID()
}

// Status returns the auto-save status of conv.
func (h *Hub) Status(conv *Conversation) (session.Status, bool) {
	h.mu.Lock()
	e, ok := h.byConv[conv]
	h.mu.Unlock()
	if !ok {
		return session.Status{}, false
	}
	return e.saver.GetStatus(), true
}

// Flush saves conv now and returns its session ID.
func (h *Hub) Flush(ctx context.Context, conv *Conversation) (int64, error) {
	h.mu.Lock()
	e, ok := h.byConv[conv]
	h.mu.Unlock()
	if !ok {
		return 0, errors.New("conversation is not open")
	}
	if err := e.saver.Flush(ctx); err != nil {
		return 0, err
	}
	return e.saver.SessionID(), nil
}

// Forget drops session id without saving. Call after deleting the row.
func (h *Hub) Forget(id int64) {
	h.mu.Lock()
	e, ok := h.byID[id]
	if ok {
		delete(h.byID, id)
		delete(h.byConv, e.conv)
	}
	h.mu.Unlock()
	if ok {
		e.saver.Discard()
	}
}

// Close flushes and closes every open conversation.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	entries := make([]*entry, 0, len(h.byConv))
	for _, e := range h.byConv {
		entries = append(entries, e)
	}
	h.byID = make(map[int64]*entry)
	h.byConv = make(map[*Conversation]*entry)
	h.mu.Unlock()

	var errs error
	for _, e := range entries {
		errs = multierr.Append(errs, e.saver.Close(ctx))
	}
	return errs
}
