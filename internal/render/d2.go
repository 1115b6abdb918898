// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jeranaias/instantcoffee/internal/diagram"
)

// D2Renderer pipes sanitized source through `d2 - -`.
type D2Renderer struct {
	// Binary defaults to "d2".
	Binary string

	// Layout selects a d2 layout engine (dagre, elk). Empty leaves d2's default.
	Layout string
}

// NewD2Renderer returns a renderer for binary.
func NewD2Renderer(binary string) *D2Renderer {
	return &D2Renderer{Binary: binary}
}

// Dialect implements Renderer.
func (r *D2Renderer) Dialect() diagram.Dialect { return diagram.D2 }

func (r *D2Renderer) binary() string {
	if r.Binary == "" {
		return "d2"
	}
	return r.Binary
}

// Render implements Renderer.
func (r *D2Renderer) Render(ctx context.Context, source string) (string, error) {
	src := diagram.SanitizeD2(source)
	if src == "" {
		return "", ErrEmptySource
	}

	args := []string{}
	if r.Layout != "" {
		args = append(args, "--layout", r.Layout)
	}
	args = append(args, "-", "-")

	out, err := run(ctx, r.binary(), args, []byte(src))
	if err != nil {
		return "", fmt.Errorf("d2 render failed: %w", err)
	}
	return string(out), nil
}

// RenderPNG implements Rasterizer. d2 only rasterizes to a named file, so
// the output goes through a temp dir.
func (r *D2Renderer) RenderPNG(ctx context.Context, source string) ([]byte, error) {
	src := diagram.SanitizeD2(source)
	if src == "" {
		return nil, ErrEmptySource
	}
	if _, err := lookBinary(r.binary()); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "instantcoffee-d2-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)
	out := filepath.Join(dir, "out.png")

	args := []string{}
	if r.Layout != "" {
		args = append(args, "--layout", r.Layout)
	}
	args = append(args, "-", out)

	if _, err := run(ctx, r.binary(), args, []byte(src)); err != nil {
		return nil, fmt.Errorf("d2 render failed: %w", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read rendered png: %w", err)
	}
	return checkPNG(data)
}

// Available implements Renderer.
func (r *D2Renderer) Available(ctx context.Context) error {
	_, err := lookBinary(r.binary())
	return err
}
