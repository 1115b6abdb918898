// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strings"
	"unicode"
)

// TruncateRunes truncates s to at most maxRunes runes, ending in "..." when
// something was cut. The result never exceeds maxRunes.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}

// TruncateWithSuffix keeps the first n runes of s and appends suffix when s
// is longer than n. Unlike TruncateRunes the suffix is not counted against n,
// so "a 51 rune title" with n=50 becomes 50 runes plus the suffix.
func TruncateWithSuffix(s string, n int, suffix string) string {
	if n < 0 {
		n = 0
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + suffix
}

// RuneLen returns the number of runes in s.
func RuneLen(s string) int {
	return len([]rune(s))
}

// SanitizeFilename turns an arbitrary title into a safe file stem:
// letters, digits, '-' and '_' are kept, whitespace becomes '_', everything
// else is dropped. The result is capped at maxRunes and falls back to
// fallback when nothing usable remains.
func SanitizeFilename(name string, maxRunes int, fallback string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_' || unicode.IsSpace(r):
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}

	out := strings.Trim(b.String(), "_")
	if maxRunes > 0 && RuneLen(out) > maxRunes {
		out = strings.TrimRight(string([]rune(out)[:maxRunes]), "_")
	}
	if out == "" {
		return fallback
	}
	return out
}
