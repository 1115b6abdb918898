// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/instantcoffee/internal/diagram"
	"github.com/jeranaias/instantcoffee/internal/store"
	"github.com/jeranaias/instantcoffee/internal/util"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter converts a session and its rendered diagram to a file format.
type Exporter interface {
	// Export returns the encoded document. svg may be empty for formats
	// that do not need it.
	Export(sess *store.Session, svg string) ([]byte, error)

	// FileExtension returns the file extension, with the dot.
	FileExtension() string

	// MimeType returns the Content-Type of the output.
	MimeType() string
}

// Format names an export format.
type Format string

const (
	FormatSVG      Format = "svg"
	FormatMarkdown Format = "md"
	FormatJSON     Format = "json"
	FormatHTML     Format = "html"
	FormatPNG      Format = "png"
)

// ErrUnsupportedFormat is returned for unknown formats, and for PNG when
// no Rasterize function is configured.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ParseFormat accepts a format name or file extension. Empty means SVG.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".") {
	case "", "svg":
		return FormatSVG, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	case "html", "htm":
		return FormatHTML, nil
	case "png":
		return FormatPNG, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// New returns the exporter for f.
func New(f Format, opts *Options) (Exporter, error) {
	switch f {
	case FormatSVG:
		return NewSVGExporter(), nil
	case FormatMarkdown:
		return NewMarkdownExporter(opts), nil
	case FormatJSON:
		return NewJSONExporter(opts), nil
	case FormatHTML:
		return NewHTMLExporter(opts), nil
	case FormatPNG:
		if opts == nil || opts.Rasterize == nil {
			return nil, fmt.Errorf("%w: png needs a renderer", ErrUnsupportedFormat)
		}
		return NewPNGExporter(opts.Rasterize), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// OutputDir is where ExportToFile writes.
	// Default: current working directory
	OutputDir string

	// IncludeMetadata adds the header block (dates, dialect, counts).
	IncludeMetadata bool

	// IncludeTimestamps adds per-message times.
	IncludeTimestamps bool

	// Now is the export time; nil means time.Now.
	Now func() time.Time

	// Rasterize renders diagram source to PNG. Required for FormatPNG.
	Rasterize RasterizeFunc
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:         ".",
		IncludeMetadata:   true,
		IncludeTimestamps: true,
	}
}

func (o *Options) now() time.Time {
	if o == nil || o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ExportToFile exports sess to <OutputDir>/<name>_<timestamp><ext> and
// returns the path. The write is atomic.
func ExportToFile(sess *store.Session, svg string, exporter Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if sess == nil {
		return "", errors.New("session is nil")
	}

	content, err := exporter.Export(sess, svg)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	filename := fmt.Sprintf("%s_%s%s",
		util.SanitizeFilename(sess.Name, 50, "diagram"),
		opts.now().Format("20060102_150405"),
		exporter.FileExtension(),
	)

	dir := opts.OutputDir
	if dir == "" {
		dir = "."
	}
	outputPath := filepath.Join(dir, filename)
	if err := util.AtomicWriteFile(outputPath, content, 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return outputPath, nil
}

// DownloadFilename is the attachment name offered over HTTP. Diagram images
// keep the plain "diagram" stem; documents use the session name.
func DownloadFilename(sess *store.Session, exporter Exporter) string {
	ext := exporter.FileExtension()
	switch exporter.(type) {
	case *SVGExporter, *PNGExporter:
		return "diagram" + ext
	}
	if sess == nil {
		return "diagram" + ext
	}
	return util.SanitizeFilename(sess.Name, 50, "diagram") + ext
}

// Dimensions returns the pixel size of svg, defaulting to 800x600.
func Dimensions(svg string) (width, height int) {
	return diagram.SVGDimensions(svg)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func sessionDialect(sess *store.Session) diagram.Dialect {
	d, err := diagram.ParseDialect(sess.State.Dialect)
	if err != nil {
		return diagram.Mermaid
	}
	return d
}

func validate(sess *store.Session) error {
	if sess == nil {
		return errors.New("session is nil")
	}
	if sess.CreatedAt == 0 {
		return errors.New("session has invalid creation timestamp")
	}
	return nil
}

// formatTimestamp formats a unix-ms timestamp for display.
func formatTimestamp(ms int64) string {
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}

// formatShortTimestamp formats a unix-ms timestamp for inline display.
func formatShortTimestamp(ms int64) string {
	return time.UnixMilli(ms).Format("15:04:05")
}

// roleLabel returns a display label for a message role.
func roleLabel(role string) string {
	switch role {
	case store.RoleUser:
		return "[User]"
	case store.RoleAssistant:
		return "[Assistant]"
	case store.RoleSystem:
		return "[System]"
	case "":
		return "Unknown"
	default:
		runes := []rune(role)
		return strings.ToUpper(string(runes[0])) + string(runes[1:])
	}
}
