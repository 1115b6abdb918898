// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"strings"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is a provider-neutral chat message.
//
// An assistant message may carry ToolCalls; the reply to each call is a
// RoleTool message naming the tool and, for providers that need it, the
// call ID.
type Message struct {
	Role       string
	Content    string
	ToolName   string
	ToolCallID string
	ToolCalls  []ToolCall
}

// Tool describes a function the model may call. Parameters maps argument
// names to JSON schema property objects.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Required    []string
}

// Schema returns the tool's parameters as a JSON schema object.
func (t Tool) Schema() map[string]any {
	props := t.Parameters
	if props == nil {
		props = map[string]any{}
	}
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(t.Required) > 0 {
		s["required"] = t.Required
	}
	return s
}

// ToolCall is one function invocation requested by the model.
// Arguments is a JSON object encoded as a string.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Options tunes a non-streaming completion. Zero fields are left to the
// provider's defaults.
type Options struct {
	Temperature float64
	NumCtx      int
	NumPredict  int
}

// Result is the outcome of one streamed request.
type Result struct {
	Content   string
	ToolCalls []ToolCall
}

// HasToolCalls reports whether the model requested any tool invocation.
func (r Result) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// ChunkFunc receives streamed content deltas in order. It is called on the
// goroutine running StreamChat.
type ChunkFunc func(delta string)

// Provider is a chat-capable LLM backend.
type Provider interface {
	// Name identifies the backend ("ollama", "openai", "anthropic").
	Name() string

	// StreamChat sends msgs with tools, feeding content deltas to onChunk,
	// and returns the accumulated reply.
	StreamChat(ctx context.Context, model string, msgs []Message, tools []Tool, onChunk ChunkFunc) (Result, error)

	// Complete runs a single non-streaming request and returns its text.
	Complete(ctx context.Context, model string, msgs []Message, opts Options) (string, error)

	// Health reports whether the backend is reachable.
	Health(ctx context.Context) error

	// Models lists the model names the backend offers.
	Models(ctx context.Context) ([]string, error)
}

// SystemMessage builds a system message.
func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

// UserMessage builds a user message.
func UserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }

// AssistantMessage builds an assistant message, optionally with tool calls.
func AssistantMessage(content string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolResultMessage builds the reply to call.
func ToolResultMessage(call ToolCall, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolName: call.Name, ToolCallID: call.ID}
}

// splitSystem separates system messages from the conversation, joining
// their contents. Used by providers with a dedicated system field.
func splitSystem(msgs []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}
