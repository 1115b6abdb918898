// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package diff

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// ContextLines is the number of unchanged lines kept around each hunk.
const ContextLines = 3

// ErrVersionRange is returned when a requested version is not in history.
var ErrVersionRange = errors.New("version out of range")

// =============================================================================
// DIFF
// =============================================================================

// Stats counts changed lines.
type Stats struct {
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
}

// Diff is the comparison of two diagram sources.
type Diff struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Unified string `json:"unified"`
	Stats
}

// Changed reports whether the sources differ.
func (d *Diff) Changed() bool {
	return d.Additions > 0 || d.Deletions > 0
}

// Summary returns "+N -M", or "No changes".
func (d *Diff) Summary() string {
	if !d.Changed() {
		return "No changes"
	}
	var parts []string
	if d.Additions > 0 {
		parts = append(parts, fmt.Sprintf("+%d", d.Additions))
	}
	if d.Deletions > 0 {
		parts = append(parts, fmt.Sprintf("-%d", d.Deletions))
	}
	return strings.Join(parts, " ")
}

// Compute diffs oldSrc against newSrc. The labels name each side in the
// unified header.
func Compute(fromLabel, toLabel, oldSrc, newSrc string) (*Diff, error) {
	a, b := splitLines(oldSrc), splitLines(newSrc)

	unified, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        a,
		B:        b,
		FromFile: fromLabel,
		ToFile:   toLabel,
		Context:  ContextLines,
	})
	if err != nil {
		return nil, fmt.Errorf("diff %s..%s: %w", fromLabel, toLabel, err)
	}

	d := &Diff{From: fromLabel, To: toLabel, Unified: unified}
	for _, op := range difflib.NewMatcher(a, b).GetOpCodes() {
		switch op.Tag {
		case 'r':
			d.Deletions += op.I2 - op.I1
			d.Additions += op.J2 - op.J1
		case 'd':
			d.Deletions += op.I2 - op.I1
		case 'i':
			d.Additions += op.J2 - op.J1
		}
	}
	return d, nil
}

// Versions diffs two entries of a diagram history. Versions are 1-based,
// the way they are shown to users.
func Versions(history []string, from, to int) (*Diff, error) {
	for _, v := range []int{from, to} {
		if v < 1 || v > len(history) {
			return nil, fmt.Errorf("%w: %d (history has %d)", ErrVersionRange, v, len(history))
		}
	}
	return Compute(
		fmt.Sprintf("version %d", from),
		fmt.Sprintf("version %d", to),
		history[from-1], history[to-1])
}

// CurrentRange returns the versions to compare when none are given: the
// one before the current version, and the current one. index is the
// 0-based history index.
func CurrentRange(index int) (from, to int) {
	to = index + 1
	if to < 1 {
		to = 1
	}
	from = to - 1
	if from < 1 {
		from = 1
	}
	return from, to
}

// splitLines normalizes line endings and drops one trailing newline so the
// last line compares equal whether or not the source ended with one.
func splitLines(s string) []string {
	s = strings.TrimSuffix(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	if s == "" {
		return nil
	}
	return difflib.SplitLines(s)
}
