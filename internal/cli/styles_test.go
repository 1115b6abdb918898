// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"os"
	"testing"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearColorEnv unsets NO_COLOR and FORCE_COLOR for the test.
func clearColorEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"NO_COLOR", "FORCE_COLOR"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

// =============================================================================
// TERMINAL DETECTION
// =============================================================================

func TestTerminal_Buffer(t *testing.T) {
	clearColorEnv(t)
	var buf bytes.Buffer

	assert.False(t, IsTerminal(&buf))
	assert.Equal(t, DefaultTerminalWidth, TerminalWidth(&buf))
	assert.False(t, ColorsEnabled(&buf))
	assert.Equal(t, termenv.Ascii, ColorProfile(&buf))
}

func TestColorsEnabled_Env(t *testing.T) {
	var buf bytes.Buffer
	tests := []struct {
		name    string
		noColor *string
		force   *string
		want    bool
	}{
		{"neither", nil, nil, false},
		{"force", nil, ptr("1"), true},
		{"force zero", nil, ptr("0"), false},
		{"empty no color ignored", ptr(""), ptr("1"), true},
		{"no color wins", ptr("1"), ptr("1"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearColorEnv(t)
			if tt.noColor != nil {
				t.Setenv("NO_COLOR", *tt.noColor)
			}
			if tt.force != nil {
				t.Setenv("FORCE_COLOR", *tt.force)
			}
			assert.Equal(t, tt.want, ColorsEnabled(&buf))
		})
	}
}

func ptr(s string) *string { return &s }

// =============================================================================
// STYLES
// =============================================================================

func TestStyles_PlainWithoutColor(t *testing.T) {
	clearColorEnv(t)
	st := newStyles(&bytes.Buffer{})

	got := st.table(
		[]string{"ID", "NAME", "DIALECT"},
		[][]string{
			{"1", "Login flow", "mermaid"},
			{"12", "Multi\nline  name", "d2"},
		})
	want := "ID  NAME             DIALECT\n" +
		"1   Login flow       mermaid\n" +
		"12  Multi line name  d2\n"
	assert.Equal(t, want, got)

	assert.Equal(t, "✓ ok", st.status("ok"))
	assert.Equal(t, "✗ missing", st.status("missing"))
	assert.Equal(t, "[user]", st.role("user"))
	assert.Equal(t, "LLM       ", st.label("LLM", 10))
}

func TestStyles_ColorWhenForced(t *testing.T) {
	clearColorEnv(t)
	t.Setenv("FORCE_COLOR", "1")
	st := newStyles(&bytes.Buffer{})

	assert.Contains(t, st.status("ok"), "\x1b[")
	assert.Contains(t, st.status("ok"), "✓ ok")
	assert.Contains(t, st.table([]string{"ID"}, [][]string{{"1"}}), "\x1b[")
}

func TestStyles_TableEmptyCells(t *testing.T) {
	clearColorEnv(t)
	st := newStyles(&bytes.Buffer{})

	got := st.table([]string{"A", "B", "C"}, [][]string{{"x"}, {"", "", "z"}})
	assert.Equal(t, "A  B  C\nx\n      z\n", got)
}

// =============================================================================
// MARKDOWN
// =============================================================================

func TestRenderMarkdown_NoColor(t *testing.T) {
	out := renderMarkdown("# Login flow\n\nThe **API** talks to the database.", 60, false)

	assert.Contains(t, out, "Login flow")
	assert.Contains(t, out, "API")
	assert.NotContains(t, out, "\x1b[")
}

func TestMarkdown_OffForBuffersAndJSON(t *testing.T) {
	a := &App{term: detectTerminal(&bytes.Buffer{})}
	assert.False(t, a.markdown())

	a = &App{term: terminal{tty: true}, jsonOut: true}
	assert.False(t, a.markdown())

	a = &App{term: terminal{tty: true}}
	assert.True(t, a.markdown())
}

// =============================================================================
// COMMAND OUTPUT
// =============================================================================

func TestHealth_HumanOutput(t *testing.T) {
	env := newTestEnv(t, "")

	out, _, err := env.run(t, "health")
	require.Error(t, err)
	assert.Equal(t, ExitNetworkError, ExitCode(err))
	assert.Contains(t, out, "LLM       ✗ unavailable (ollama, ")
	assert.Contains(t, out, "Database  ✓ ok ("+env.dbPath+")")
	assert.NotContains(t, out, "\x1b[")
}
