// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/instantcoffee/internal/diagram"
)

// MermaidRenderer runs mermaid-cli (mmdc) against a temporary file.
type MermaidRenderer struct {
	// Binary defaults to "mmdc".
	Binary string

	// Theme is passed as -t when set (default, dark, forest, neutral).
	Theme string
}

// NewMermaidRenderer returns a renderer for binary.
func NewMermaidRenderer(binary string) *MermaidRenderer {
	return &MermaidRenderer{Binary: binary}
}

// Dialect implements Renderer.
func (r *MermaidRenderer) Dialect() diagram.Dialect { return diagram.Mermaid }

func (r *MermaidRenderer) binary() string {
	if r.Binary == "" {
		return "mmdc"
	}
	return r.Binary
}

// Render implements Renderer. CLI failures are reported as Mermaid syntax
// errors, which is what nearly all of them are.
func (r *MermaidRenderer) Render(ctx context.Context, source string) (string, error) {
	svg, err := r.renderFile(ctx, source, "svg")
	if err != nil {
		return "", err
	}
	return string(svg), nil
}

// RenderPNG implements Rasterizer.
func (r *MermaidRenderer) RenderPNG(ctx context.Context, source string) ([]byte, error) {
	png, err := r.renderFile(ctx, source, "png")
	if err != nil {
		return nil, err
	}
	return checkPNG(png)
}

// renderFile writes source to a temp dir and has mmdc render it to
// out.<ext>, which picks the output format.
func (r *MermaidRenderer) renderFile(ctx context.Context, source, ext string) ([]byte, error) {
	if strings.TrimSpace(source) == "" {
		return nil, ErrEmptySource
	}
	if _, err := lookBinary(r.binary()); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "instantcoffee-mmd-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.mmd")
	out := filepath.Join(dir, "out."+ext)
	if err := os.WriteFile(in, []byte(source), 0600); err != nil {
		return nil, fmt.Errorf("write source: %w", err)
	}

	args := []string{"-i", in, "-o", out, "-q"}
	if r.Theme != "" {
		args = append(args, "-t", r.Theme)
	}
	if _, err := run(ctx, r.binary(), args, nil); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("Mermaid syntax error: %w", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read rendered %s: %w", ext, err)
	}
	return data, nil
}

// Available implements Renderer.
func (r *MermaidRenderer) Available(ctx context.Context) error {
	_, err := lookBinary(r.binary())
	return err
}
