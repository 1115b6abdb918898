// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_Basic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := []byte("[llm]\nmodel = \"gpt-oss:20b\"\n")

	if err := AtomicWriteFile(path, data, 0600); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != string(data) {
		t.Errorf("Content = %q, want %q", content, data)
	}

	if runtime.GOOS != "windows" {
		info, _ := os.Stat(path)
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("perm = %o, want 600", perm)
		}
	}
}

func TestAtomicWriteFile_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exports", "nested", "diagram.svg")

	if err := AtomicWriteFile(path, []byte("<svg/>"), 0644); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("File not created: %v", err)
	}
}

func TestAtomicWriteFile_OverwritesAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	for _, v := range []string{"first", "second"} {
		if err := AtomicWriteFile(path, []byte(v), 0644); err != nil {
			t.Fatalf("write %q failed: %v", v, err)
		}
	}

	content, _ := os.ReadFile(path)
	if string(content) != "second" {
		t.Errorf("Content = %q, want %q", content, "second")
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestAtomicWriteFile_EmptyData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	if err := AtomicWriteFile(path, nil, 0644); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 0 {
		t.Errorf("size = %d, want 0", info.Size())
	}
}

// =============================================================================
// TRUNCATION TESTS
// =============================================================================

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		input string
		max   int
		want  string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"hello", 3, "hel"},
		{"hello", 0, ""},
		{"日本語テキスト", 5, "日本..."},
	}
	for _, tt := range tests {
		if got := TruncateRunes(tt.input, tt.max); got != tt.want {
			t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.input, tt.max, got, tt.want)
		}
	}
}

func TestTruncateWithSuffix(t *testing.T) {
	fifty := strings.Repeat("a", 50)
	tests := []struct {
		name  string
		input string
		n     int
		want  string
	}{
		{"short", "Draw a login flow", 50, "Draw a login flow"},
		{"exactly n", fifty, 50, fifty},
		{"one over", fifty + "b", 50, fifty + "..."},
		{"multibyte", strings.Repeat("é", 60), 50, strings.Repeat("é", 50) + "..."},
		{"negative n", "abc", -1, "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateWithSuffix(tt.input, tt.n, "..."); got != tt.want {
				t.Errorf("TruncateWithSuffix() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRuneLen(t *testing.T) {
	if got := RuneLen("héllo"); got != 5 {
		t.Errorf("RuneLen() = %d, want 5", got)
	}
}

// =============================================================================
// FILENAME TESTS
// =============================================================================

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input string
		max   int
		want  string
	}{
		{"Login flow", 0, "Login_flow"},
		{"  a/b\\c:d*e  ", 0, "abcde"},
		{"many   spaces__here", 0, "many_spaces_here"},
		{"???", 0, "diagram"},
		{"", 0, "diagram"},
		{"abcdef ghij", 7, "abcdef"},
		{"Überblick", 0, "Überblick"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.input, tt.max, "diagram"); got != tt.want {
			t.Errorf("SanitizeFilename(%q, %d) = %q, want %q", tt.input, tt.max, got, tt.want)
		}
	}
}
