// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"strings"

	"github.com/jeranaias/instantcoffee/internal/store"
)

// ErrNoDiagram is returned when there is no rendered diagram to export.
var ErrNoDiagram = errors.New("no diagram to export")

// SVGExporter writes the rendered diagram as a standalone SVG file.
type SVGExporter struct{}

// NewSVGExporter creates an SVG exporter.
func NewSVGExporter() *SVGExporter { return &SVGExporter{} }

// Export returns svg, prefixed with an XML declaration when it has none.
func (e *SVGExporter) Export(_ *store.Session, svg string) ([]byte, error) {
	svg = strings.TrimSpace(svg)
	if svg == "" {
		return nil, ErrNoDiagram
	}
	if !strings.HasPrefix(svg, "<?xml") {
		svg = `<?xml version="1.0" encoding="UTF-8"?>` + "\n" + svg
	}
	return []byte(svg + "\n"), nil
}

// FileExtension returns the file extension for SVG.
func (e *SVGExporter) FileExtension() string { return ".svg" }

// MimeType returns the MIME type for SVG.
func (e *SVGExporter) MimeType() string { return "image/svg+xml" }
