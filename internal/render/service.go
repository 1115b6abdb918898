// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/instantcoffee/internal/config"
	"github.com/jeranaias/instantcoffee/internal/diagram"
	"github.com/jeranaias/instantcoffee/internal/telemetry"
)

// DefaultTimeout bounds a single render.
const DefaultTimeout = 30 * time.Second

// Service routes render requests to the renderer for each dialect.
// It is safe for concurrent use.
type Service struct {
	mu        sync.RWMutex
	renderers map[diagram.Dialect]Renderer

	timeout  time.Duration
	logger   *zap.Logger
	recorder telemetry.Recorder
}

// Option configures a Service.
type Option func(*Service)

// WithTimeout sets the per-render timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r telemetry.Recorder) Option {
	return func(s *Service) { s.recorder = telemetry.OrNoop(r) }
}

// WithRenderer registers r for its dialect, replacing any previous one.
func WithRenderer(r Renderer) Option {
	return func(s *Service) { s.renderers[r.Dialect()] = r }
}

// NewService creates a Service with no renderers registered.
func NewService(opts ...Option) *Service {
	s := &Service{
		renderers: make(map[diagram.Dialect]Renderer),
		timeout:   DefaultTimeout,
		logger:    zap.NewNop(),
		recorder:  telemetry.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromConfig registers the d2 and mmdc renderers named in cfg.
func NewServiceFromConfig(cfg config.RenderConfig, logger *zap.Logger, recorder telemetry.Recorder) *Service {
	return NewService(
		WithTimeout(cfg.Timeout.Duration),
		WithLogger(logger),
		WithRecorder(recorder),
		WithRenderer(NewD2Renderer(cfg.D2Binary)),
		WithRenderer(NewMermaidRenderer(cfg.MermaidBinary)),
	)
}

// Register adds or replaces the renderer for r's dialect.
func (s *Service) Register(r Renderer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renderers[r.Dialect()] = r
}

// Renderer returns the renderer for d.
func (s *Service) Renderer(d diagram.Dialect) (Renderer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.renderers[d]
	return r, ok
}

// Render compiles source in dialect d. Empty source fails fast with
// ErrEmptySource; exceeding the timeout yields ErrTimeout.
func (s *Service) Render(ctx context.Context, d diagram.Dialect, source string) (string, error) {
	if strings.TrimSpace(source) == "" {
		return "", ErrEmptySource
	}
	r, ok := s.Renderer(d)
	if !ok {
		return "", fmt.Errorf("%w: no renderer for %s", ErrRendererUnavailable, d)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	svg, err := r.Render(ctx, source)
	elapsed := time.Since(start)

	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = ErrTimeout
	}
	s.recorder.RecordRender(ctx, d.String(), elapsed, err)

	if err != nil {
		s.logger.Debug("RENDER_FAILED",
			zap.String("dialect", d.String()),
			zap.Duration("duration", elapsed),
			zap.Error(err))
		return "", err
	}

	s.logger.Debug("RENDER_COMPLETE",
		zap.String("dialect", d.String()),
		zap.Int("source_len", len(source)),
		zap.Int("svg_len", len(svg)),
		zap.Duration("duration", elapsed))
	return svg, nil
}

// RenderPNG rasterizes source in dialect d. Renderers that are not a
// Rasterizer yield ErrRendererUnavailable. Errors and timeouts follow
// Render.
func (s *Service) RenderPNG(ctx context.Context, d diagram.Dialect, source string) ([]byte, error) {
	if strings.TrimSpace(source) == "" {
		return nil, ErrEmptySource
	}
	r, ok := s.Renderer(d)
	if !ok {
		return nil, fmt.Errorf("%w: no renderer for %s", ErrRendererUnavailable, d)
	}
	rz, ok := r.(Rasterizer)
	if !ok {
		return nil, fmt.Errorf("%w: %s renderer cannot produce png", ErrRendererUnavailable, d)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	png, err := rz.RenderPNG(ctx, source)
	elapsed := time.Since(start)

	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = ErrTimeout
	}
	s.recorder.RecordRender(ctx, d.String(), elapsed, err)

	if err != nil {
		s.logger.Debug("RENDER_PNG_FAILED",
			zap.String("dialect", d.String()),
			zap.Duration("duration", elapsed),
			zap.Error(err))
		return nil, err
	}
	s.logger.Debug("RENDER_PNG_COMPLETE",
		zap.String("dialect", d.String()),
		zap.Int("png_len", len(png)),
		zap.Duration("duration", elapsed))
	return png, nil
}

// CheckAvailability checks every registered renderer and logs the result.
// The returned map holds nil for usable dialects.
func (s *Service) CheckAvailability(ctx context.Context) map[diagram.Dialect]error {
	s.mu.RLock()
	renderers := make([]Renderer, 0, len(s.renderers))
	for _, r := range s.renderers {
		renderers = append(renderers, r)
	}
	s.mu.RUnlock()

	out := make(map[diagram.Dialect]error, len(renderers))
	for _, r := range renderers {
		err := r.Available(ctx)
		out[r.Dialect()] = err
		if err != nil {
			s.logger.Warn("RENDERER_MISSING",
				zap.String("dialect", r.Dialect().String()),
				zap.String("install", installHint(r.Dialect())),
				zap.Error(err))
			continue
		}
		s.logger.Info("RENDERER_AVAILABLE", zap.String("dialect", r.Dialect().String()))
	}
	return out
}

func installHint(d diagram.Dialect) string {
	if d == diagram.D2 {
		return "https://d2lang.com/tour/install"
	}
	return "npm install -g @mermaid-js/mermaid-cli"
}
