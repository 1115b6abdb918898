// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package diff

import (
	"errors"
	"strings"
	"testing"
)

func TestCompute_Modified(t *testing.T) {
	oldSrc := "graph TD\n  A --> B\n  B --> C"
	newSrc := "graph TD\n  A --> B\n  B --> D\n  D --> C\n"

	d, err := Compute("version 1", "version 2", oldSrc, newSrc)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if d.Additions != 2 || d.Deletions != 1 {
		t.Errorf("stats = +%d -%d, want +2 -1", d.Additions, d.Deletions)
	}
	if got := d.Summary(); got != "+2 -1" {
		t.Errorf("Summary = %q", got)
	}
	for _, want := range []string{"--- version 1", "+++ version 2", "-  B --> C", "+  B --> D", "+  D --> C", "   A --> B"} {
		if !strings.Contains(d.Unified, want) {
			t.Errorf("unified diff missing %q:\n%s", want, d.Unified)
		}
	}
}

func TestCompute_TrailingNewlineIgnored(t *testing.T) {
	d, err := Compute("a", "b", "x -> y", "x -> y\n")
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if d.Changed() {
		t.Errorf("expected no changes, got %s:\n%s", d.Summary(), d.Unified)
	}
	if d.Unified != "" {
		t.Errorf("expected empty unified diff, got %q", d.Unified)
	}
	if d.Summary() != "No changes" {
		t.Errorf("Summary = %q", d.Summary())
	}
}

func TestCompute_FromEmpty(t *testing.T) {
	d, err := Compute("a", "b", "", "a -> b\nb -> c")
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if d.Additions != 2 || d.Deletions != 0 {
		t.Errorf("stats = +%d -%d, want +2 -0", d.Additions, d.Deletions)
	}
	if d.Summary() != "+2" {
		t.Errorf("Summary = %q", d.Summary())
	}
}

func TestCompute_CRLF(t *testing.T) {
	d, err := Compute("a", "b", "a -> b\r\nb -> c\r\n", "a -> b\nb -> c\n")
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if d.Changed() {
		t.Errorf("line endings should not count as changes: %s", d.Summary())
	}
}

func TestVersions(t *testing.T) {
	history := []string{"a -> b", "a -> b\nb -> c", "a -> c"}

	d, err := Versions(history, 1, 3)
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if d.From != "version 1" || d.To != "version 3" {
		t.Errorf("labels = %q, %q", d.From, d.To)
	}
	if !d.Changed() {
		t.Error("expected changes")
	}

	same, err := Versions(history, 2, 2)
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if same.Changed() {
		t.Error("a version compared with itself should be unchanged")
	}
}

func TestVersions_OutOfRange(t *testing.T) {
	history := []string{"a -> b"}
	for _, tc := range [][2]int{{0, 1}, {1, 2}, {-1, 1}} {
		if _, err := Versions(history, tc[0], tc[1]); !errors.Is(err, ErrVersionRange) {
			t.Errorf("Versions(%d, %d) err = %v, want ErrVersionRange", tc[0], tc[1], err)
		}
	}
	if _, err := Versions(nil, 1, 1); !errors.Is(err, ErrVersionRange) {
		t.Errorf("empty history err = %v", err)
	}
}

func TestCurrentRange(t *testing.T) {
	tests := []struct {
		index    int
		from, to int
	}{
		{-1, 1, 1},
		{0, 1, 1},
		{1, 1, 2},
		{4, 4, 5},
	}
	for _, tt := range tests {
		from, to := CurrentRange(tt.index)
		if from != tt.from || to != tt.to {
			t.Errorf("CurrentRange(%d) = %d, %d; want %d, %d", tt.index, from, to, tt.from, tt.to)
		}
	}
}
