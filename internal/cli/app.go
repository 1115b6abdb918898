// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/jeranaias/instantcoffee/internal/chat"
	"github.com/jeranaias/instantcoffee/internal/diagram"
	"github.com/jeranaias/instantcoffee/internal/llm"
	"github.com/jeranaias/instantcoffee/internal/memory"
	"github.com/jeranaias/instantcoffee/internal/render"
	"github.com/jeranaias/instantcoffee/internal/session"
	"github.com/jeranaias/instantcoffee/internal/store"
	"github.com/jeranaias/instantcoffee/internal/tasks"
	"github.com/jeranaias/instantcoffee/internal/telemetry"
)

// =============================================================================
// COMPONENT CONSTRUCTION
// =============================================================================

func (a *App) openStore() (*store.Store, error) {
	db, err := store.Open(a.cfg.Store.Path, store.WithLogger(a.logger.Named("store")))
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", a.cfg.Store.Path, err)
	}
	return db, nil
}

func (a *App) provider() (llm.Provider, error) {
	return llm.New(a.cfg.LLM, a.logger)
}

func (a *App) renderer(recorder telemetry.Recorder) *render.Service {
	return render.NewServiceFromConfig(a.cfg.Render, a.logger.Named("render"), recorder)
}

func (a *App) dialect() diagram.Dialect {
	d, err := diagram.ParseDialect(a.cfg.Render.Dialect)
	if err != nil {
		return diagram.Mermaid
	}
	return d
}

// newHub wires conversations to the provider, renderer, memories and the
// auto-saver.
func (a *App) newHub(db *store.Store, p llm.Provider, r chat.Renderer, recorder telemetry.Recorder) *chat.Hub {
	logger := a.logger.Named("chat")
	return chat.NewHub(db, chat.Options{
		Provider:        p,
		Model:           a.cfg.LLM.Model,
		Renderer:        r,
		Memories:        memory.NewService(db, a.logger.Named("memory")),
		Dialect:         a.dialect(),
		MaxMessages:     a.cfg.Chat.MaxHistory,
		StreamDebounce:  a.cfg.Chat.StreamDebounce.Duration,
		PreviewDebounce: a.cfg.Chat.PreviewDebounce.Duration,
		Logger:          logger,
		Recorder:        recorder,
	}, session.Config{
		Enabled:  a.cfg.AutoSave.Enabled,
		Debounce: a.cfg.AutoSave.Debounce.Duration,
		Logger:   a.logger.Named("session"),
		Recorder: recorder,
		OnSaved: func(id int64) {
			logger.Debug("SESSION_AUTOSAVED", zap.Int64("session_id", id))
		},
	})
}

func (a *App) consolidator(db *store.Store, p llm.Provider, recorder telemetry.Recorder) *memory.Consolidator {
	return memory.NewConsolidator(db, p, a.cfg.LLM.Model, a.cfg.Memory, a.logger.Named("memory"), recorder)
}

func (a *App) taskQueue() *tasks.Queue {
	return tasks.NewQueue(tasks.Options{
		Concurrency: a.cfg.Tasks.Concurrency,
		HistorySize: a.cfg.Tasks.HistorySize,
		Logger:      a.logger.Named("tasks"),
	})
}
