// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SESSIONS
// =============================================================================

// Chat message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage is one entry in a session transcript. DiagramSource is set on
// assistant messages that produced a diagram.
type ChatMessage struct {
	ID            string `json:"id"`
	Role          string `json:"role"`
	Content       string `json:"content"`
	DiagramSource string `json:"diagramSource,omitempty"`
	Timestamp     int64  `json:"timestamp"` // unix ms
}

// NewChatMessage stamps a message with a fresh ID and the current time.
func NewChatMessage(role, content string) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	}
}

// SessionState is everything needed to resume a conversation.
type SessionState struct {
	Messages      []ChatMessage `json:"messages"`
	DiagramSource string        `json:"diagramSource"`
	Dialect       string        `json:"dialect,omitempty"`
	History       []string      `json:"history"`
	HistoryIndex  int           `json:"historyIndex"`
}

// Clone returns a deep copy of s.
func (s SessionState) Clone() SessionState {
	c := s
	c.Messages = append([]ChatMessage(nil), s.Messages...)
	c.History = append([]string(nil), s.History...)
	return c
}

// Session is a persisted conversation.
type Session struct {
	ID        int64        `json:"id"`
	Name      string       `json:"name"`
	CreatedAt int64        `json:"createdAt"` // unix ms
	UpdatedAt int64        `json:"updatedAt"` // unix ms
	State     SessionState `json:"state"`
}

// MaxSessionNameRunes is where generated names are cut.
const MaxSessionNameRunes = 50

// DefaultSessionName is used when a session has no user message yet.
const DefaultSessionName = "New Diagram"

// =============================================================================
// MEMORIES
// =============================================================================

// MemoryCategory groups memories in the memory panel.
type MemoryCategory string

const (
	CategoryService    MemoryCategory = "service"
	CategoryTeam       MemoryCategory = "team"
	CategoryPreference MemoryCategory = "preference"
	CategoryGeneral    MemoryCategory = "general"
)

// Categories lists every category in display order.
var Categories = []MemoryCategory{CategoryService, CategoryTeam, CategoryPreference, CategoryGeneral}

// ParseMemoryCategory validates s. Empty means general.
func ParseMemoryCategory(s string) (MemoryCategory, error) {
	c := MemoryCategory(strings.ToLower(strings.TrimSpace(s)))
	if c == "" {
		return CategoryGeneral, nil
	}
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown memory category %q", s)
}

// Memory is a fact injected into every prompt.
type Memory struct {
	ID        int64          `json:"id"`
	Category  MemoryCategory `json:"category"`
	Name      string         `json:"name"`
	Content   string         `json:"content"`
	CreatedAt int64          `json:"createdAt"` // unix ms
	UpdatedAt int64          `json:"updatedAt"` // unix ms
}

// MemoryUpdate holds the fields to change; nil fields are left alone.
type MemoryUpdate struct {
	Category *MemoryCategory `json:"category,omitempty"`
	Name     *string         `json:"name,omitempty"`
	Content  *string         `json:"content,omitempty"`
}

// MemoryOrder selects the ListMemories ordering.
type MemoryOrder int

const (
	// OrderByCreated lists oldest first.
	OrderByCreated MemoryOrder = iota
	// OrderByCategory groups by category, then name.
	OrderByCategory
)
