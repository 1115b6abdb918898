// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"strings"

	"github.com/jeranaias/instantcoffee/internal/diagram"
	"github.com/jeranaias/instantcoffee/internal/store"
)

// RasterizeFunc renders diagram source in dialect d to PNG bytes. Callers
// bind their context into it; render.Service.RenderPNG is the usual body.
type RasterizeFunc func(d diagram.Dialect, source string) ([]byte, error)

// PNGExporter re-renders the session's saved diagram source as a PNG. The
// rendered SVG passed to Export is not used.
type PNGExporter struct {
	rasterize RasterizeFunc
}

// NewPNGExporter creates a PNG exporter backed by rasterize.
func NewPNGExporter(rasterize RasterizeFunc) *PNGExporter {
	return &PNGExporter{rasterize: rasterize}
}

// Export rasterizes sess's current diagram source.
func (e *PNGExporter) Export(sess *store.Session, _ string) ([]byte, error) {
	if sess == nil {
		return nil, errors.New("session is nil")
	}
	src := strings.TrimSpace(sess.State.DiagramSource)
	if src == "" {
		return nil, ErrNoDiagram
	}
	return e.rasterize(sessionDialect(sess), src)
}

// FileExtension returns the file extension for PNG.
func (e *PNGExporter) FileExtension() string { return ".png" }

// MimeType returns the MIME type for PNG.
func (e *PNGExporter) MimeType() string { return "image/png" }
