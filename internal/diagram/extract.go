// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package diagram

import (
	"regexp"
	"strings"
)

var (
	mermaidBlock = regexp.MustCompile("```mermaid\\n([\\s\\S]*?)```")
	d2Block      = regexp.MustCompile("```d2\\n([\\s\\S]*?)```")
)

// ExtractMermaid splits a reply into explanation and Mermaid code.
//
// The first fenced mermaid block wins; the explanation is the rest of the
// text, trimmed. A reply with no block but flowchart-like content is taken
// whole as code.
func ExtractMermaid(text string) (explanation, code string) {
	if m := mermaidBlock.FindStringSubmatchIndex(text); m != nil {
		return strings.TrimSpace(text[:m[0]] + text[m[1]:]), text[m[2]:m[3]]
	}
	if strings.Contains(text, "-->") || strings.Contains(text, "flowchart") || strings.Contains(text, "sequenceDiagram") {
		return "", text
	}
	return text, ""
}

// ExtractD2 is ExtractMermaid for D2. Without a fenced block, text that
// contains both ':' and '[' is treated as D2.
func ExtractD2(text string) (explanation, code string) {
	if m := d2Block.FindStringSubmatchIndex(text); m != nil {
		return strings.TrimSpace(text[:m[0]] + text[m[1]:]), text[m[2]:m[3]]
	}
	if strings.Contains(text, ":") && strings.Contains(text, "[") {
		return "", text
	}
	return text, ""
}

// Extract dispatches on d.
func Extract(d Dialect, text string) (explanation, code string) {
	if d == D2 {
		return ExtractD2(text)
	}
	return ExtractMermaid(text)
}
