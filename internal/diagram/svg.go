// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package diagram

import (
	"regexp"
	"strconv"
	"strings"
)

// Default canvas size when an SVG carries no usable dimensions.
const (
	DefaultWidth  = 800
	DefaultHeight = 600
)

var (
	emptyBrackets = regexp.MustCompile(`\[\s*\]`)
	quoteOpen     = regexp.MustCompile(`"\s*\[\s*`)
	quoteClose    = regexp.MustCompile(`"\s*\]\s*`)

	svgWidth   = regexp.MustCompile(`\swidth="(\d+)"`)
	svgHeight  = regexp.MustCompile(`\sheight="(\d+)"`)
	svgViewBox = regexp.MustCompile(`viewBox="[\d\s]*\s+(\d+)\s+(\d+)"`)
)

// SanitizeD2 strips bracket debris models tend to leave around labels,
// such as `a: "label" []`, before the source reaches the d2 CLI.
func SanitizeD2(src string) string {
	src = emptyBrackets.ReplaceAllString(src, "")
	src = quoteOpen.ReplaceAllString(src, `" `)
	src = quoteClose.ReplaceAllString(src, `"`)
	return strings.TrimSpace(src)
}

// SVGDimensions reads the pixel size of an SVG document from the root
// element's width/height attributes, falling back to its viewBox and
// then to 800x600.
func SVGDimensions(svg string) (width, height int) {
	root := svg
	if start := strings.Index(svg, "<svg"); start >= 0 {
		if end := strings.IndexByte(svg[start:], '>'); end >= 0 {
			root = svg[start : start+end+1]
		}
	}

	width, height = DefaultWidth, DefaultHeight
	vb := svgViewBox.FindStringSubmatch(root)

	if m := svgWidth.FindStringSubmatch(root); m != nil {
		width = atoi(m[1], width)
	} else if vb != nil {
		width = atoi(vb[1], width)
	}
	if m := svgHeight.FindStringSubmatch(root); m != nil {
		height = atoi(m[1], height)
	} else if vb != nil {
		height = atoi(vb[2], height)
	}
	return width, height
}

func atoi(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
