// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/jeranaias/instantcoffee/internal/store"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter writes a standalone page with the diagram inline and the
// transcript below it.
type HTMLExporter struct {
	options *Options
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts}
}

var codeBlockRe = regexp.MustCompile("```([a-zA-Z0-9_+-]*)\n([\\s\\S]*?)```")

// Export converts a session to HTML. svg comes from the renderer and is
// embedded as is.
func (e *HTMLExporter) Export(sess *store.Session, svg string) ([]byte, error) {
	if err := validate(sess); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	sb.WriteString(fmt.Sprintf("    <title>%s</title>\n", html.EscapeString(sess.Name)))
	sb.WriteString("    <meta name=\"generator\" content=\"instantcoffee\">\n")
	sb.WriteString(fmt.Sprintf("    <meta name=\"date\" content=\"%s\">\n", time.UnixMilli(sess.CreatedAt).Format(time.RFC3339)))
	sb.WriteString(htmlStyle)
	sb.WriteString("</head>\n<body>\n    <div class=\"container\">\n")

	sb.WriteString(fmt.Sprintf("        <h1>%s</h1>\n", html.EscapeString(sess.Name)))
	if e.options.IncludeMetadata {
		sb.WriteString("        <div class=\"metadata\">\n")
		sb.WriteString(fmt.Sprintf("            <span><strong>Dialect:</strong> %s</span>\n", sessionDialect(sess).Title()))
		sb.WriteString(fmt.Sprintf("            <span><strong>Created:</strong> %s</span>\n", formatTimestamp(sess.CreatedAt)))
		sb.WriteString(fmt.Sprintf("            <span><strong>Messages:</strong> %d</span>\n", len(sess.State.Messages)))
		sb.WriteString("        </div>\n")
	}

	if strings.TrimSpace(svg) != "" {
		sb.WriteString("        <section class=\"diagram\">\n")
		sb.WriteString(svg)
		sb.WriteString("\n        </section>\n")
	}

	sb.WriteString("        <main class=\"conversation\">\n")
	for _, msg := range sess.State.Messages {
		sb.WriteString(fmt.Sprintf("            <div class=\"message %s\">\n", html.EscapeString(strings.ToLower(msg.Role))))
		sb.WriteString(fmt.Sprintf("                <div class=\"role\">%s", roleLabel(msg.Role)))
		if e.options.IncludeTimestamps && msg.Timestamp > 0 {
			sb.WriteString(fmt.Sprintf(" <span class=\"timestamp\">%s</span>", formatShortTimestamp(msg.Timestamp)))
		}
		sb.WriteString("</div>\n")
		sb.WriteString("                <div class=\"content\">")
		sb.WriteString(formatHTMLContent(msg.Content))
		sb.WriteString("</div>\n            </div>\n")
	}
	sb.WriteString("        </main>\n")

	sb.WriteString(fmt.Sprintf("        <footer>Exported from <strong>Instant Coffee</strong> on %s</footer>\n",
		e.options.now().Format("January 2, 2006 at 3:04 PM")))
	sb.WriteString("    </div>\n</body>\n</html>\n")

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

// formatHTMLContent escapes content, turns fenced blocks into <pre> and
// line breaks into <br>.
func formatHTMLContent(content string) string {
	content = html.EscapeString(strings.TrimSpace(content))

	var out strings.Builder
	last := 0
	for _, m := range codeBlockRe.FindAllStringSubmatchIndex(content, -1) {
		out.WriteString(strings.ReplaceAll(content[last:m[0]], "\n", "<br>\n"))
		lang := content[m[2]:m[3]]
		code := strings.TrimRight(content[m[4]:m[5]], "\n")
		out.WriteString(fmt.Sprintf("<pre><code class=\"language-%s\">%s</code></pre>", lang, code))
		last = m[1]
	}
	out.WriteString(strings.ReplaceAll(content[last:], "\n", "<br>\n"))
	return out.String()
}

const htmlStyle = `    <style>
        body { margin: 0; font-family: -apple-system, "Segoe UI", Roboto, sans-serif; background: #fafafa; color: #222; }
        .container { max-width: 960px; margin: 0 auto; padding: 24px; }
        .metadata span { margin-right: 16px; color: #666; }
        .diagram { background: #fff; border: 1px solid #ddd; border-radius: 8px; padding: 16px; margin: 16px 0; overflow: auto; }
        .message { border-radius: 8px; padding: 12px 16px; margin: 8px 0; }
        .user { background: #e8f0fe; }
        .assistant { background: #fff; border: 1px solid #eee; }
        .role { font-weight: 600; margin-bottom: 4px; }
        .timestamp { font-weight: 400; color: #999; font-size: 0.85em; }
        pre { background: #f4f4f4; padding: 8px; border-radius: 4px; overflow-x: auto; }
        footer { margin-top: 24px; color: #999; font-size: 0.85em; }
    </style>
`
