// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// =============================================================================
// TERMINAL DETECTION
// =============================================================================

const (
	// DefaultTerminalWidth is used when the width cannot be detected.
	DefaultTerminalWidth = 80

	// MinTerminalWidth is the narrowest width output is laid out for.
	MinTerminalWidth = 40
)

// fdWriter is satisfied by *os.File.
type fdWriter interface {
	io.Writer
	Fd() uintptr
}

// IsTerminal reports whether w is an interactive terminal. Buffers, pipes
// and redirected files are not.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(fdWriter)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// TerminalWidth returns the column count of w, DefaultTerminalWidth when it
// is not a terminal, and never less than MinTerminalWidth.
func TerminalWidth(w io.Writer) int {
	f, ok := w.(fdWriter)
	if !ok {
		return DefaultTerminalWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return DefaultTerminalWidth
	}
	if width < MinTerminalWidth {
		return MinTerminalWidth
	}
	return width
}

// ColorsEnabled reports whether output to w should carry ANSI colors.
//
// A non-empty NO_COLOR (https://no-color.org/) disables colors. Otherwise
// FORCE_COLOR enables them, and failing both they follow IsTerminal.
func ColorsEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if v := os.Getenv("FORCE_COLOR"); v != "" && v != "0" {
		return true
	}
	return IsTerminal(w)
}

// ColorProfile returns the termenv profile for w, Ascii when colors are
// disabled.
func ColorProfile(w io.Writer) termenv.Profile {
	if !ColorsEnabled(w) {
		return termenv.Ascii
	}
	if _, ok := w.(fdWriter); !ok {
		// Forced colors into a buffer.
		return termenv.ANSI256
	}
	return termenv.NewOutput(w).ColorProfile()
}

// terminal is the detected shape of an App's stdout.
type terminal struct {
	tty   bool
	color bool
	width int
}

func detectTerminal(w io.Writer) terminal {
	return terminal{
		tty:   IsTerminal(w),
		color: ColorsEnabled(w),
		width: TerminalWidth(w),
	}
}
