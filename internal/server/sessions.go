// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/jeranaias/instantcoffee/internal/chat"
	"github.com/jeranaias/instantcoffee/internal/diagram"
	"github.com/jeranaias/instantcoffee/internal/diff"
	"github.com/jeranaias/instantcoffee/internal/export"
	"github.com/jeranaias/instantcoffee/internal/render"
	"github.com/jeranaias/instantcoffee/internal/session"
	"github.com/jeranaias/instantcoffee/internal/store"
)

// ============================================================================
// SESSION TYPES
// ============================================================================

// SessionSummary is one row of the session sidebar.
type SessionSummary struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Dialect      string `json:"dialect,omitempty"`
	MessageCount int    `json:"messageCount"`
	CreatedAt    int64  `json:"createdAt"`
	UpdatedAt    int64  `json:"updatedAt"`
}

// SessionResponse is an open session: its row plus live conversation state.
type SessionResponse struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	CreatedAt int64          `json:"createdAt"`
	UpdatedAt int64          `json:"updatedAt"`
	AutoSave  session.Status `json:"autoSave"`
	chat.View
}

type createSessionRequest struct {
	Dialect string `json:"dialect"`
}

type renameSessionRequest struct {
	Name string `json:"name"`
}

type replaceSessionRequest struct {
	Name  string             `json:"name,omitempty"`
	State store.SessionState `json:"state"`
}

type messageRequest struct {
	Content string `json:"content"`
}

type sourceRequest struct {
	Source string `json:"source"`
}

// ============================================================================
// SESSION CRUD
// ============================================================================

// handleListSessions handles GET /api/sessions, newest first.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.deps.Store.ListSessions(r.Context())
	if err != nil {
		s.storeError(w, err, "Sessions")
		return
	}
	out := make([]SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, SessionSummary{
			ID:           sess.ID,
			Name:         sess.Name,
			Dialect:      sess.State.Dialect,
			MessageCount: len(sess.State.Messages),
			CreatedAt:    sess.CreatedAt,
			UpdatedAt:    sess.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCreateSession handles POST /api/sessions. The body is optional.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}
	d := s.deps.Dialect
	if req.Dialect != "" {
		parsed, err := diagram.ParseDialect(req.Dialect)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		d = parsed
	}

	id, conv, err := s.deps.Hub.Create(r.Context(), d)
	if err != nil {
		s.storeError(w, err, "Session")
		return
	}
	s.writeSession(w, r, http.StatusCreated, id, conv)
}

// handleGetSession handles GET /api/sessions/{id}.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, conv, ok := s.openSession(w, r)
	if !ok {
		return
	}
	s.writeSession(w, r, http.StatusOK, id, conv)
}

// handleReplaceSession handles PUT /api/sessions/{id}: the state, and
// optionally the name, are overwritten.
func (s *Server) handleReplaceSession(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req replaceSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.State.Dialect != "" {
		if _, err := diagram.ParseDialect(req.State.Dialect); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	conv, err := s.deps.Hub.Replace(r.Context(), id, req.State)
	if err != nil {
		s.storeError(w, err, "Session")
		return
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		if err := s.deps.Store.RenameSession(r.Context(), id, name); err != nil {
			s.storeError(w, err, "Session")
			return
		}
	}
	s.writeSession(w, r, http.StatusOK, id, conv)
}

// handleRenameSession handles PATCH /api/sessions/{id}.
func (s *Server) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req renameSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "Session name is required")
		return
	}
	if err := s.deps.Store.RenameSession(r.Context(), id, name); err != nil {
		s.storeError(w, err, "Session")
		return
	}
	sess, err := s.deps.Store.LoadSession(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "Session")
		return
	}
	writeJSON(w, http.StatusOK, SessionSummary{
		ID:           sess.ID,
		Name:         sess.Name,
		Dialect:      sess.State.Dialect,
		MessageCount: len(sess.State.Messages),
		CreatedAt:    sess.CreatedAt,
		UpdatedAt:    sess.UpdatedAt,
	})
}

// handleDeleteSession handles DELETE /api/sessions/{id}.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := s.deps.Store.DeleteSession(r.Context(), id); err != nil {
		s.storeError(w, err, "Session")
		return
	}
	s.deps.Hub.Forget(id)
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// CHAT STREAM
// ============================================================================

// handleSendMessage handles POST /api/sessions/{id}/messages. The reply is
// streamed as server-sent events named after chat.EventType.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	_, conv, ok := s.openSession(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "Message content is required")
		return
	}
	if conv.Generating() {
		writeError(w, http.StatusConflict, chat.ErrBusy.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var mu sync.Mutex
	sink := func(e chat.Event) {
		data, err := json.Marshal(e)
		if err != nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
		flusher.Flush()
	}

	if err := conv.Send(r.Context(), req.Content, sink); err != nil {
		if errors.Is(err, chat.ErrBusy) {
			// Lost the race with another sender; Send emitted nothing.
			sink(chat.Event{Type: chat.EventError, Error: err.Error()})
			sink(chat.Event{Type: chat.EventDone})
			return
		}
		s.logger.Warn("CHAT_TURN_FAILED", zap.Error(err))
	}
}

// ============================================================================
// DIAGRAM EDITING
// ============================================================================

// handleUndo handles POST /api/sessions/{id}/undo.
func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	_, conv, ok := s.openSession(w, r)
	if !ok {
		return
	}
	d, err := conv.Undo(r.Context())
	s.writeDiagram(w, d, err)
}

// handleRedo handles POST /api/sessions/{id}/redo.
func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	_, conv, ok := s.openSession(w, r)
	if !ok {
		return
	}
	d, err := conv.Redo(r.Context())
	s.writeDiagram(w, d, err)
}

// handleApplySource handles PUT /api/sessions/{id}/source, the source
// editor's apply button.
func (s *Server) handleApplySource(w http.ResponseWriter, r *http.Request) {
	_, conv, ok := s.openSession(w, r)
	if !ok {
		return
	}
	var req sourceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	d, err := conv.ApplySource(r.Context(), req.Source)
	s.writeDiagram(w, d, err)
}

// handlePreview handles POST /api/sessions/{id}/preview. Only the last of
// a burst of previews renders; earlier ones get 409.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	_, conv, ok := s.openSession(w, r)
	if !ok {
		return
	}
	var req sourceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	svg, err := conv.Preview(r.Context(), req.Source)
	switch {
	case errors.Is(err, chat.ErrSuperseded):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, chat.ErrEmptySource):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, RenderResponse{SVG: svg})
	}
}

func (s *Server) writeDiagram(w http.ResponseWriter, d chat.Diagram, err error) {
	switch {
	case errors.Is(err, chat.ErrNothingToUndo), errors.Is(err, chat.ErrNothingToRedo):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, chat.ErrEmptySource):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, d)
	}
}

// ============================================================================
// SAVE AND EXPORT
// ============================================================================

// handleSave handles POST /api/sessions/{id}/save.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	_, conv, ok := s.openSession(w, r)
	if !ok {
		return
	}
	if _, err := s.deps.Hub.Flush(r.Context(), conv); err != nil {
		s.storeError(w, err, "Session")
		return
	}
	st, _ := s.deps.Hub.Status(conv)
	writeJSON(w, http.StatusOK, st)
}

// handleExport handles GET /api/sessions/{id}/export?format=svg|png|md|json|html.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id, conv, ok := s.openSession(w, r)
	if !ok {
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	exp, err := export.New(format, &export.Options{
		IncludeMetadata:   true,
		IncludeTimestamps: true,
		Rasterize: func(d diagram.Dialect, src string) ([]byte, error) {
			return s.deps.Renderer.RenderPNG(r.Context(), d, src)
		},
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := s.deps.Store.LoadSession(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "Session")
		return
	}
	sess.State = conv.Snapshot()

	data, err := exp.Export(sess, conv.Diagram().SVG)
	if err != nil {
		switch {
		case errors.Is(err, export.ErrNoDiagram):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, render.ErrRendererUnavailable):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	w.Header().Set("Content-Type", exp.MimeType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", export.DownloadFilename(sess, exp)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleDiff compares two diagram versions. ?from= and ?to= are 1-based;
// the default is the previous version against the current one.
func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	_, conv, ok := s.openSession(w, r)
	if !ok {
		return
	}
	state := conv.Snapshot()
	from, to := diff.CurrentRange(state.HistoryIndex)

	q := r.URL.Query()
	for _, p := range []struct {
		key string
		dst *int
	}{{"from", &from}, {"to", &to}} {
		if v := q.Get(p.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid "+p.key+" version")
				return
			}
			*p.dst = n
		}
	}

	d, err := diff.Versions(state.History, from, to)
	if errors.Is(err, diff.ErrVersionRange) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ============================================================================
// HELPERS
// ============================================================================

// openSession resolves {id} to its live conversation.
func (s *Server) openSession(w http.ResponseWriter, r *http.Request) (int64, *chat.Conversation, bool) {
	id, ok := idParam(w, r)
	if !ok {
		return 0, nil, false
	}
	conv, err := s.deps.Hub.Open(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "Session")
		return 0, nil, false
	}
	return id, conv, true
}

func (s *Server) writeSession(w http.ResponseWriter, r *http.Request, status int, id int64, conv *chat.Conversation) {
	sess, err := s.deps.Store.LoadSession(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "Session")
		return
	}
	st, _ := s.deps.Hub.Status(conv)
	writeJSON(w, status, SessionResponse{
		ID:        id,
		Name:      sess.Name,
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
		AutoSave:  st,
		View:      conv.View(),
	})
}
