// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/jeranaias/instantcoffee/internal/diagram"
	"github.com/jeranaias/instantcoffee/internal/llm"
	"github.com/jeranaias/instantcoffee/internal/render"
)

// ============================================================================
// HEALTH HANDLER
// ============================================================================

// HealthResponse reports the server and its dependencies. Status is "ok"
// whenever the server answers; the other fields say what works.
type HealthResponse struct {
	Status    string            `json:"status"`
	LLM       string            `json:"llm"`
	Provider  string            `json:"provider,omitempty"`
	Renderers map[string]string `json:"renderers"`
	Store     string            `json:"store"`
}

// handleHealth handles GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.deps.HealthTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:    "ok",
		LLM:       "not_configured",
		Renderers: map[string]string{},
		Store:     "not_configured",
	}

	if p := s.deps.Provider; p != nil {
		resp.Provider = p.Name()
		if err := p.Health(ctx); err != nil {
			resp.LLM = "unavailable"
			s.logger.Debug("HEALTH_LLM_UNAVAILABLE", zap.Error(err))
		} else {
			resp.LLM = "ok"
		}
	}

	if s.deps.Renderer != nil {
		for d, err := range s.deps.Renderer.CheckAvailability(ctx) {
			if err != nil {
				resp.Renderers[d.String()] = "missing"
			} else {
				resp.Renderers[d.String()] = "ok"
			}
		}
	}

	if s.deps.Store != nil {
		if err := s.deps.Store.Ping(ctx); err != nil {
			resp.Store = "unavailable"
		} else {
			resp.Store = "ok"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// ============================================================================
// RENDER HANDLER
// ============================================================================

// RenderRequest accepts the original {d2Source} body or {source, dialect}.
type RenderRequest struct {
	D2Source string `json:"d2Source,omitempty"`
	Source   string `json:"source,omitempty"`
	Dialect  string `json:"dialect,omitempty"`
}

// RenderResponse carries the compiled diagram.
type RenderResponse struct {
	SVG string `json:"svg"`
}

// handleRender handles POST /api/render.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req RenderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	d, src := diagram.D2, req.D2Source
	if src == "" {
		src = req.Source
		if req.Dialect != "" {
			parsed, err := diagram.ParseDialect(req.Dialect)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			d = parsed
		}
	}
	if strings.TrimSpace(src) == "" {
		writeError(w, http.StatusBadRequest, "Missing d2Source in request body")
		return
	}

	svg, err := s.deps.Renderer.Render(r.Context(), d, src)
	if errors.Is(err, render.ErrEmptySource) {
		// Only brackets, which sanitizing strips.
		writeError(w, http.StatusBadRequest, "Missing d2Source in request body")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, RenderResponse{SVG: svg})
}

// ============================================================================
// MODELS HANDLER
// ============================================================================

// ModelsResponse lists the models the provider offers.
type ModelsResponse struct {
	Provider string   `json:"provider"`
	Models   []string `json:"models"`
}

// handleModels handles GET /api/models.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if s.deps.Provider == nil {
		writeError(w, http.StatusServiceUnavailable, "No LLM provider configured")
		return
	}
	models, err := s.deps.Provider.Models(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, llm.FormatError(err))
		return
	}
	sort.Strings(models)
	if models == nil {
		models = []string{}
	}
	writeJSON(w, http.StatusOK, ModelsResponse{Provider: s.deps.Provider.Name(), Models: models})
}
