// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package diagram holds the language-specific pieces of the chat loop:
// pulling diagram code out of model replies, the update_diagram tool, the
// system prompts and a few SVG helpers.
package diagram

import (
	"fmt"
	"strings"
)

// Dialect is a textual diagram language.
type Dialect string

const (
	Mermaid Dialect = "mermaid"
	D2      Dialect = "d2"
)

// Dialects lists every supported dialect.
var Dialects = []Dialect{Mermaid, D2}

// ParseDialect accepts a dialect name in any case. Empty means Mermaid.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mermaid", "mmd":
		return Mermaid, nil
	case "d2":
		return D2, nil
	default:
		return "", fmt.Errorf("unknown diagram dialect %q", s)
	}
}

// String implements fmt.Stringer.
func (d Dialect) String() string { return string(d) }

// Title is the display name used in user-facing text.
func (d Dialect) Title() string {
	switch d {
	case D2:
		return "D2"
	default:
		return "Mermaid"
	}
}

// FileExtension is the conventional source file suffix.
func (d Dialect) FileExtension() string {
	switch d {
	case D2:
		return ".d2"
	default:
		return ".mmd"
	}
}

// DialectForFile guesses the dialect from a file name, defaulting to
// Mermaid.
func DialectForFile(name string) Dialect {
	if strings.HasSuffix(strings.ToLower(name), ".d2") {
		return D2
	}
	return Mermaid
}
