// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jeranaias/instantcoffee/internal/store"
	"github.com/jeranaias/instantcoffee/internal/tasks"
)

// ============================================================================
// MEMORY HANDLERS
// ============================================================================

type createMemoryRequest struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	Content  string `json:"content"`
}

type updateMemoryRequest struct {
	Category *string `json:"category,omitempty"`
	Name     *string `json:"name,omitempty"`
	Content  *string `json:"content,omitempty"`
}

// handleListMemories handles GET /api/memories?order=category|created.
func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	order := store.OrderByCreated
	switch r.URL.Query().Get("order") {
	case "", "created":
	case "category":
		order = store.OrderByCategory
	default:
		writeError(w, http.StatusBadRequest, "order must be created or category")
		return
	}
	mems, err := s.deps.Store.ListMemories(r.Context(), order)
	if err != nil {
		s.storeError(w, err, "Memories")
		return
	}
	if mems == nil {
		mems = []store.Memory{}
	}
	writeJSON(w, http.StatusOK, mems)
}

// handleCreateMemory handles POST /api/memories.
func (s *Server) handleCreateMemory(w http.ResponseWriter, r *http.Request) {
	var req createMemoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	category, err := store.ParseMemoryCategory(req.Category)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name, content := strings.TrimSpace(req.Name), strings.TrimSpace(req.Content)
	if name == "" || content == "" {
		writeError(w, http.StatusBadRequest, "Memory name and content are required")
		return
	}

	id, err := s.deps.Store.CreateMemory(r.Context(), category, name, content)
	if err != nil {
		s.storeError(w, err, "Memory")
		return
	}
	s.writeMemory(w, r, http.StatusCreated, id)
}

// handleUpdateMemory handles PUT /api/memories/{id}. Omitted fields keep
// their value.
func (s *Server) handleUpdateMemory(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req updateMemoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var u store.MemoryUpdate
	if req.Category != nil {
		c, err := store.ParseMemoryCategory(*req.Category)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		u.Category = &c
	}
	for _, f := range []struct {
		in  *string
		out **string
	}{{req.Name, &u.Name}, {req.Content, &u.Content}} {
		if f.in == nil {
			continue
		}
		v := strings.TrimSpace(*f.in)
		if v == "" {
			writeError(w, http.StatusBadRequest, "Memory name and content must not be blank")
			return
		}
		*f.out = &v
	}

	if err := s.deps.Store.UpdateMemory(r.Context(), id, u); err != nil {
		s.storeError(w, err, "Memory")
		return
	}
	s.writeMemory(w, r, http.StatusOK, id)
}

// handleDeleteMemory handles DELETE /api/memories/{id}.
func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := s.deps.Store.DeleteMemory(r.Context(), id); err != nil {
		s.storeError(w, err, "Memory")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleConsolidate handles POST /api/memories/consolidate. Consolidation
// can take minutes, so it runs on the task queue and the response is the
// queued task; clients poll /api/tasks/{id}.
func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	if s.deps.Consolidator == nil || s.deps.Tasks == nil {
		writeError(w, http.StatusServiceUnavailable, "Memory consolidation is not configured")
		return
	}
	consolidator, logger := s.deps.Consolidator, s.logger
	task, err := s.deps.Tasks.Submit("consolidate memories", func(ctx context.Context) (any, error) {
		res, err := consolidator.Consolidate(ctx)
		if err != nil {
			logger.Warn("CONSOLIDATE_FAILED", zap.Error(err))
			return nil, err
		}
		return res, nil
	})
	if err != nil {
		s.taskError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

func (s *Server) writeMemory(w http.ResponseWriter, r *http.Request, status int, id int64) {
	m, err := s.deps.Store.GetMemory(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "Memory")
		return
	}
	writeJSON(w, status, m)
}

// ============================================================================
// TASK HANDLERS
// ============================================================================

// handleListTasks handles GET /api/tasks.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tasks == nil {
		writeJSON(w, http.StatusOK, []*tasks.Task{})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Tasks.List())
}

// handleGetTask handles GET /api/tasks/{id}.
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.lookupTask(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleCancelTask handles DELETE /api/tasks/{id}. A task that already
// finished is returned unchanged with 409.
func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tasks == nil {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	id := chi.URLParam(r, "id")
	canceled, err := s.deps.Tasks.Cancel(id)
	if err != nil {
		s.taskError(w, err)
		return
	}
	task, err := s.deps.Tasks.Get(id)
	if err != nil {
		s.taskError(w, err)
		return
	}
	status := http.StatusOK
	if !canceled {
		status = http.StatusConflict
	}
	writeJSON(w, status, task)
}

func (s *Server) lookupTask(w http.ResponseWriter, r *http.Request) (*tasks.Task, bool) {
	if s.deps.Tasks == nil {
		writeError(w, http.StatusNotFound, "Task not found")
		return nil, false
	}
	task, err := s.deps.Tasks.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.taskError(w, err)
		return nil, false
	}
	return task, true
}

func (s *Server) taskError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tasks.ErrNotFound):
		writeError(w, http.StatusNotFound, "Task not found")
	case errors.Is(err, tasks.ErrQueueFull), errors.Is(err, tasks.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
