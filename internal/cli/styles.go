// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// SHARED STYLES
// =============================================================================

// styles holds the lipgloss styles for one output stream. The renderer is
// bound to that stream's color profile, so output to a pipe, a buffer or a
// NO_COLOR terminal comes out as plain text.
type styles struct {
	Title   lipgloss.Style
	Header  lipgloss.Style
	Label   lipgloss.Style
	Dim     lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Role    map[string]lipgloss.Style

	cell lipgloss.Style
}

func newStyles(w io.Writer) *styles {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(ColorProfile(w))

	return &styles{
		Title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")), // Cyan
		Header:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("255")),
		Label:   r.NewStyle().Foreground(lipgloss.Color("245")),
		Dim:     r.NewStyle().Foreground(lipgloss.Color("242")),
		Success: r.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		Error:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		Warning: r.NewStyle().Foreground(lipgloss.Color("214")),
		Role: map[string]lipgloss.Style{
			"user":      r.NewStyle().Bold(true).Foreground(lipgloss.Color("75")),
			"assistant": r.NewStyle().Bold(true).Foreground(lipgloss.Color("82")),
		},
		cell: r.NewStyle(),
	}
}

// status renders a health value with a check or a cross.
func (s *styles) status(value string) string {
	if value == "ok" {
		return s.Success.Render("✓ " + value)
	}
	return s.Error.Render("✗ " + value)
}

// role renders a transcript role tag like "[user]".
func (s *styles) role(role string) string {
	tag := "[" + role + "]"
	if st, ok := s.Role[role]; ok {
		return st.Render(tag)
	}
	return s.Dim.Render(tag)
}

// label renders a fixed-width field label.
func (s *styles) label(text string, width int) string {
	return s.Label.Width(width).Render(text)
}

// =============================================================================
// TABLES
// =============================================================================

// table lays rows out in aligned columns separated by two spaces, with the
// header in Header style. Cells are flattened to one line.
func (s *styles) table(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	measure := func(row []string) {
		for i := range widths {
			if i < len(row) {
				if w := lipgloss.Width(flatten(row[i])); w > widths[i] {
					widths[i] = w
				}
			}
		}
	}
	measure(header)
	for _, row := range rows {
		measure(row)
	}

	var sb strings.Builder
	line := func(row []string, st lipgloss.Style) {
		cells := make([]string, len(widths))
		for i, w := range widths {
			var text string
			if i < len(row) {
				text = flatten(row[i])
			}
			if i < len(widths)-1 {
				text += strings.Repeat(" ", w-lipgloss.Width(text))
			}
			cells[i] = st.Render(text)
		}
		sb.WriteString(strings.TrimRight(strings.Join(cells, "  "), " "))
		sb.WriteByte('\n')
	}
	line(header, s.Header)
	for _, row := range rows {
		line(row, s.cell)
	}
	return sb.String()
}

func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// =============================================================================
// MARKDOWN
// =============================================================================

// renderMarkdown renders an LLM reply for a terminal of the given width.
// Without colors glamour's notty style keeps the layout but drops ANSI
// codes. Rendering failures return content unchanged.
func renderMarkdown(content string, width int, color bool) string {
	style := glamour.WithAutoStyle()
	if !color {
		style = glamour.WithStandardStyle("notty")
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return out
}
