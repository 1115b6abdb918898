// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"errors"

	"github.com/jeranaias/instantcoffee/internal/store"
)

// DocumentVersion is bumped when the JSON export layout changes.
const DocumentVersion = 1

// Document is the JSON export of a session.
type Document struct {
	Version    int            `json:"version"`
	Generator  string         `json:"generator"`
	ExportedAt int64          `json:"exportedAt"` // unix ms
	Session    *store.Session `json:"session"`
	SVG        string         `json:"svg,omitempty"`
}

// JSONExporter writes the complete session, plus the SVG when given, so an
// export can be re-imported.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

// Export converts a session to indented JSON.
func (e *JSONExporter) Export(sess *store.Session, svg string) ([]byte, error) {
	if sess == nil {
		return nil, errors.New("session is nil")
	}
	return json.MarshalIndent(Document{
		Version:    DocumentVersion,
		Generator:  "instantcoffee",
		ExportedAt: e.options.now().UnixMilli(),
		Session:    sess,
		SVG:        svg,
	}, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
