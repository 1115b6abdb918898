// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render compiles diagram source to SVG by shelling out to the
// dialect CLIs (d2, mmdc).
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/jeranaias/instantcoffee/internal/diagram"
)

// Errors returned by renderers and the Service.
var (
	ErrEmptySource         = errors.New("diagram source is empty")
	ErrRendererUnavailable = errors.New("renderer unavailable")
	ErrTimeout             = errors.New("Rendering timed out. The diagram may be too complex.")
)

// Renderer turns source in one dialect into an SVG document.
type Renderer interface {
	Dialect() diagram.Dialect
	Render(ctx context.Context, source string) (string, error)

	// Available reports whether the backing CLI can be run.
	Available(ctx context.Context) error
}

// Rasterizer is implemented by renderers that can also produce PNG.
type Rasterizer interface {
	RenderPNG(ctx context.Context, source string) ([]byte, error)
}

// pngMagic opens every PNG file.
var pngMagic = []byte("\x89PNG\r\n\x1a\n")

// checkPNG rejects CLI output that is not a PNG.
func checkPNG(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, pngMagic) {
		return nil, errors.New("renderer did not produce a PNG")
	}
	return data, nil
}

// waitDelay bounds how long Wait blocks on orphaned pipes after the CLI is
// killed. mmdc leaves a headless browser behind when interrupted.
const waitDelay = 2 * time.Second

// lookBinary resolves bin on PATH, wrapping failures in
// ErrRendererUnavailable.
func lookBinary(bin string) (string, error) {
	path, err := exec.LookPath(bin)
	if err != nil {
		return "", fmt.Errorf("%w: %s not found on PATH", ErrRendererUnavailable, bin)
	}
	return path, nil
}

// run executes bin with args, feeding stdin, and returns stdout. A non-zero
// exit becomes an error carrying the trimmed stderr.
func run(ctx context.Context, bin string, args []string, stdin []byte) ([]byte, error) {
	path, err := lookBinary(bin)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.WaitDelay = waitDelay
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, errors.New(msg)
	}
	return stdout.Bytes(), nil
}
