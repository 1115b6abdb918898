// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/instantcoffee/internal/diagram"
	"github.com/jeranaias/instantcoffee/internal/store"
)

// Diagram is the current whiteboard state.
type Diagram struct {
	Dialect       diagram.Dialect `json:"dialect"`
	Source        string          `json:"source"`
	SVG           string          `json:"svg"`
	HistoryIndex  int             `json:"historyIndex"`
	HistoryLength int             `json:"historyLength"`
	CanUndo       bool            `json:"canUndo"`
	CanRedo       bool            `json:"canRedo"`
}

// View is a read-only snapshot for clients.
type View struct {
	Messages   []store.ChatMessage `json:"messages"`
	Diagram    Diagram             `json:"diagram"`
	Generating bool                `json:"generating"`
	Updating   bool                `json:"diagramUpdating"`
	LastError  string              `json:"lastError,omitempty"`
}

// =============================================================================
// HISTORY
// =============================================================================

// pushHistoryLocked records src as the newest entry, dropping any redo tail.
// Re-pushing the current entry is a no-op.
func (c *Conversation) pushHistoryLocked(src string) {
	if c.historyIndex >= 0 && c.historyIndex < len(c.history) && c.history[c.historyIndex] == src {
		return
	}
	c.history = append(c.history[:c.historyIndex+1], src)
	c.historyIndex = len(c.history) - 1
}

func (c *Conversation) diagramLocked() Diagram {
	return Diagram{
		Dialect:       c.dialect,
		Source:        c.source,
		SVG:           c.svg,
		HistoryIndex:  c.historyIndex,
		HistoryLength: len(c.history),
		CanUndo:       c.historyIndex > 0,
		CanRedo:       c.historyIndex >= 0 && c.historyIndex < len(c.history)-1,
	}
}

// Diagram returns the current diagram.
func (c *Conversation) Diagram() Diagram {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.diagramLocked()
}

// View returns the conversation for display.
func (c *Conversation) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{
		Messages:   append([]store.ChatMessage{}, c.messages...),
		Diagram:    c.diagramLocked(),
		Generating: c.generating,
		Updating:   c.updating,
		LastError:  c.lastError,
	}
}

// Undo steps back one history entry and renders it.
func (c *Conversation) Undo(ctx context.Context) (Diagram, error) {
	return c.step(ctx, -1)
}

// Redo steps forward one history entry and renders it.
func (c *Conversation) Redo(ctx context.Context) (Diagram, error) {
	return c.step(ctx, 1)
}

func (c *Conversation) step(ctx context.Context, delta int) (Diagram, error) {
	c.mu.Lock()
	target := c.historyIndex + delta
	if target < 0 || target >= len(c.history) || c.historyIndex < 0 {
		c.mu.Unlock()
		if delta < 0 {
			return Diagram{}, ErrNothingToUndo
		}
		return Diagram{}, ErrNothingToRedo
	}
	src, d := c.history[target], c.dialect
	c.mu.Unlock()

	svg, err := c.opts.Renderer.Render(ctx, d, src)
	if err != nil {
		return Diagram{}, err
	}

	c.mu.Lock()
	c.historyIndex = target
	c.source = src
	c.svg = svg
	out := c.diagramLocked()
	c.mu.Unlock()

	c.changed()
	return out, nil
}

// ApplySource renders src from the source editor and, on success, makes it
// the current diagram with a new history entry.
func (c *Conversation) ApplySource(ctx context.Context, src string) (Diagram, error) {
	if strings.TrimSpace(src) == "" {
		return Diagram{}, ErrEmptySource
	}
	d := c.Dialect()
	svg, err := c.opts.Renderer.Render(ctx, d, src)
	if err != nil {
		return Diagram{}, err
	}

	c.mu.Lock()
	c.source = src
	c.svg = svg
	c.pushHistoryLocked(src)
	out := c.diagramLocked()
	c.mu.Unlock()

	c.opts.Logger.Info("SOURCE_APPLIED", zap.Int("history_index", out.HistoryIndex))
	c.changed()
	return out, nil
}

// Preview renders src after the preview debounce without touching state. A
// newer Preview during the wait makes this one return ErrSuperseded.
func (c *Conversation) Preview(ctx context.Context, src string) (string, error) {
	if strings.TrimSpace(src) == "" {
		return "", ErrEmptySource
	}

	c.mu.Lock()
	c.previewSeq++
	seq := c.previewSeq
	d := c.dialect
	c.mu.Unlock()

	t := time.NewTimer(c.opts.PreviewDebounce)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-t.C:
	}

	c.mu.Lock()
	latest := c.previewSeq == seq
	c.mu.Unlock()
	if !latest {
		return "", ErrSuperseded
	}
	return c.opts.Renderer.Render(ctx, d, src)
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// Snapshot returns the persistable state.
func (c *Conversation) Snapshot() store.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return store.SessionState{
		Messages:      append([]store.ChatMessage{}, c.messages...),
		DiagramSource: c.source,
		Dialect:       c.dialect.String(),
		History:       append([]string{}, c.history...),
		HistoryIndex:  c.historyIndex,
	}
}

// Restore replaces the conversation with state and renders its diagram. A
// render failure is logged and leaves the SVG empty.
func (c *Conversation) Restore(ctx context.Context, state store.SessionState) {
	d := c.opts.Dialect
	if state.Dialect != "" {
		if parsed, err := diagram.ParseDialect(state.Dialect); err == nil {
			d = parsed
		}
	}

	idx := state.HistoryIndex
	if idx >= len(state.History) {
		idx = len(state.History) - 1
	}
	if idx < 0 && len(state.History) > 0 {
		idx = len(state.History) - 1
	}
	if len(state.History) == 0 {
		idx = -1
	}

	var svg string
	if state.DiagramSource != "" {
		var err error
		if svg, err = c.opts.Renderer.Render(ctx, d, state.DiagramSource); err != nil {
			c.opts.Logger.Warn("RESTORE_RENDER_FAILED", zap.Error(err))
			svg = ""
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append([]store.ChatMessage(nil), state.Messages...)
	c.dialect = d
	c.source = state.DiagramSource
	c.svg = svg
	c.history = append([]string(nil), state.History...)
	c.historyIndex = idx
	c.lastError = ""
}

// Reset clears the conversation back to empty.
func (c *Conversation) Reset() {
	c.mu.Lock()
	c.messages = nil
	c.source = ""
	c.svg = ""
	c.history = nil
	c.historyIndex = -1
	c.lastError = ""
	c.mu.Unlock()
	c.changed()
}
