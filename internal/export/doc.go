// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes sessions and their diagrams to files.
//
// # Supported Formats
//
//   - SVG: the rendered diagram
//   - Markdown: transcript plus the diagram source
//   - JSON: the full session document, re-importable
//   - HTML: a standalone page with the diagram inline
//
// PNG is not supported; rasterizing needs a browser canvas.
//
// # Usage
//
//	exp, err := export.New(export.FormatMarkdown, nil)
//	path, err := export.ExportToFile(sess, svg, exp, &export.Options{OutputDir: "out"})
package export
