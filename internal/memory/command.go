// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package memory handles the facts injected into every prompt: chat
// commands that edit them and LLM-driven consolidation.
package memory

import (
	"regexp"
	"strings"
)

// Action is what a memory command does.
type Action string

const (
	ActionRemember Action = "remember"
	ActionForget   Action = "forget"
	ActionUpdate   Action = "update"
)

// Command is a parsed memory instruction from the chat box.
type Command struct {
	Action Action
	Name   string

	// Verb is the linking phrase as typed ("is", "runs on", "is now").
	Verb string

	// Content is the value after the verb. Empty for forget.
	Content string
}

// Fact is the sentence stored for remember and update commands.
func (c Command) Fact() string {
	parts := []string{c.Name}
	if c.Verb != "" {
		parts = append(parts, strings.Join(strings.Fields(c.Verb), " "))
	}
	if c.Content != "" {
		parts = append(parts, c.Content)
	}
	return strings.Join(parts, " ")
}

var (
	rememberThatRe = regexp.MustCompile(`(?i)^remember\s+that\s+(.+?)\s+(is|are|runs?\s+on|owned\s+by)\s+(.+)$`)
	rememberRe     = regexp.MustCompile(`(?i)^remember\s+(.+?)\s+(is|are|runs?\s+on|owned\s+by)\s+(.+)$`)
	forgetRe       = regexp.MustCompile(`(?i)^forget\s+(?:about\s+)?(.+)$`)
	updateRe       = regexp.MustCompile(`(?i)^update:?\s+(.+?)\s+(now|is\s+now)\s+(.+)$`)
)

// ParseCommand recognizes "remember [that] X is|are|runs on|owned by Y",
// "forget [about] X" and "update[:] X [is] now Y". It returns nil for
// anything else.
func ParseCommand(text string) *Command {
	t := strings.TrimSpace(text)

	if m := rememberThatRe.FindStringSubmatch(t); m != nil {
		return &Command{Action: ActionRemember, Name: strings.TrimSpace(m[1]), Verb: m[2], Content: strings.TrimSpace(m[3])}
	}
	if m := rememberRe.FindStringSubmatch(t); m != nil {
		return &Command{Action: ActionRemember, Name: strings.TrimSpace(m[1]), Verb: m[2], Content: strings.TrimSpace(m[3])}
	}
	if m := forgetRe.FindStringSubmatch(t); m != nil {
		return &Command{Action: ActionForget, Name: strings.TrimSpace(m[1])}
	}
	if m := updateRe.FindStringSubmatch(t); m != nil {
		return &Command{Action: ActionUpdate, Name: strings.TrimSpace(m[1]), Verb: m[2], Content: strings.TrimSpace(m[3])}
	}
	return nil
}
