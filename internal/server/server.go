// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/jeranaias/instantcoffee/internal/chat"
	"github.com/jeranaias/instantcoffee/internal/config"
	"github.com/jeranaias/instantcoffee/internal/diagram"
	"github.com/jeranaias/instantcoffee/internal/llm"
	"github.com/jeranaias/instantcoffee/internal/memory"
	"github.com/jeranaias/instantcoffee/internal/store"
	"github.com/jeranaias/instantcoffee/internal/tasks"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultMaxBodyBytes matches the 10mb JSON limit of the original
	// rendering proxy.
	DefaultMaxBodyBytes = 10 << 20

	// DefaultHealthTimeout bounds each dependency check in /api/health.
	DefaultHealthTimeout = 5 * time.Second

	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
)

// ============================================================================
// DEPENDENCIES
// ============================================================================

// Store is the persistence the API reads and writes directly. Session
// state changes go through the chat hub instead.
type Store interface {
	ListSessions(ctx context.Context) ([]store.Session, error)
	LoadSession(ctx context.Context, id int64) (*store.Session, error)
	RenameSession(ctx context.Context, id int64, name string) error
	DeleteSession(ctx context.Context, id int64) error

	CreateMemory(ctx context.Context, category store.MemoryCategory, name, content string) (int64, error)
	GetMemory(ctx context.Context, id int64) (*store.Memory, error)
	UpdateMemory(ctx context.Context, id int64, u store.MemoryUpdate) error
	DeleteMemory(ctx context.Context, id int64) error
	ListMemories(ctx context.Context, order store.MemoryOrder) ([]store.Memory, error)

	Ping(ctx context.Context) error
}

// Renderer compiles diagram source and reports which CLIs are installed.
// render.Service satisfies it.
type Renderer interface {
	Render(ctx context.Context, d diagram.Dialect, source string) (string, error)
	RenderPNG(ctx context.Context, d diagram.Dialect, source string) ([]byte, error)
	CheckAvailability(ctx context.Context) map[diagram.Dialect]error
}

// Consolidator merges memories. memory.Consolidator satisfies it.
type Consolidator interface {
	Consolidate(ctx context.Context) (memory.Result, error)
}

// Deps wires the server to the rest of the application.
type Deps struct {
	Config config.ServerConfig

	Store        Store
	Hub          *chat.Hub
	Renderer     Renderer
	Provider     llm.Provider
	Consolidator Consolidator
	Tasks        *tasks.Queue

	// Dialect is used for new sessions that do not name one.
	Dialect diagram.Dialect

	HealthTimeout time.Duration
	Logger        *zap.Logger
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the JSON/SSE/WebSocket API.
type Server struct {
	deps    Deps
	cfg     config.ServerConfig
	logger  *zap.Logger
	handler http.Handler
	server  *http.Server
}

// New builds the router. It fails on an invalid trusted proxy list.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Dialect == "" {
		deps.Dialect = diagram.Mermaid
	}
	if deps.HealthTimeout <= 0 {
		deps.HealthTimeout = DefaultHealthTimeout
	}
	cfg := deps.Config
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.ShutdownTimeout.Duration <= 0 {
		cfg.ShutdownTimeout = config.D(DefaultShutdownTimeout)
	}
	if len(cfg.TrustedProxies) > 0 {
		if err := SetTrustedProxies(cfg.TrustedProxies); err != nil {
			return nil, err
		}
	}

	s := &Server{deps: deps, cfg: cfg, logger: deps.Logger}
	s.handler = otelhttp.NewHandler(s.routes(), "instantcoffee",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
	return s, nil
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RecoveryMiddleware(s.logger))
	r.Use(SecurityHeadersMiddleware())
	r.Use(LoggingMiddleware(s.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if s.cfg.RateLimit > 0 {
		r.Use(RateLimitMiddleware(NewRateLimiter(s.cfg.RateLimit, s.cfg.RateBurst), s.logger))
	}
	r.Use(BodyLimitMiddleware(s.cfg.MaxBodyBytes))

	r.Route("/api", func(r chi.Router) {
		// Health stays open so supervisors can poll it without the token.
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(s.cfg.AuthToken, s.logger))

			r.Post("/render", s.handleRender)
			r.Get("/models", s.handleModels)

			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", s.handleListSessions)
				r.Post("/", s.handleCreateSession)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetSession)
					r.Put("/", s.handleReplaceSession)
					r.Patch("/", s.handleRenameSession)
					r.Delete("/", s.handleDeleteSession)

					r.Post("/messages", s.handleSendMessage)
					r.Get("/ws", s.handleWebSocket)
					r.Post("/undo", s.handleUndo)
					r.Post("/redo", s.handleRedo)
					r.Put("/source", s.handleApplySource)
					r.Post("/preview", s.handlePreview)
					r.Post("/save", s.handleSave)
					r.Get("/export", s.handleExport)
					r.Get("/diff", s.handleDiff)
				})
			})

			r.Route("/memories", func(r chi.Router) {
				r.Get("/", s.handleListMemories)
				r.Post("/", s.handleCreateMemory)
				r.Post("/consolidate", s.handleConsolidate)
				r.Put("/{id}", s.handleUpdateMemory)
				r.Delete("/{id}", s.handleDeleteMemory)
			})

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/", s.handleListTasks)
				r.Get("/{id}", s.handleGetTask)
				r.Delete("/{id}", s.handleCancelTask)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully. A nil error means a clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No WriteTimeout: chat streams outlive any fixed deadline.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("SERVER_START", zap.String("addr", ln.Addr().String()))
		errc <- s.server.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("SERVER_SHUTDOWN", zap.Duration("timeout", s.cfg.ShutdownTimeout.Duration))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ============================================================================
// HELPERS
// ============================================================================

// errorResponse is the Express-compatible error body.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// decodeJSON reads the request body into v, writing the error response
// itself when it fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Request body exceeds maximum size of %d bytes", tooLarge.Limit))
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request format")
		return false
	}
	return true
}

// idParam parses the {id} route parameter.
func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid id")
		return 0, false
	}
	return id, true
}

// storeError maps persistence errors to responses.
func (s *Server) storeError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	s.logger.Error("STORE_ERROR", zap.String("what", what), zap.Error(err))
	writeError(w, http.StatusInternalServerError, err.Error())
}
