// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import "github.com/jeranaias/instantcoffee/internal/store"

// EventType names a conversation event on the wire.
type EventType string

const (
	// EventChunk carries a streamed content delta.
	EventChunk EventType = "chunk"
	// EventDiagram carries a newly rendered diagram.
	EventDiagram EventType = "diagram"
	// EventDiagramUpdating brackets a render started during streaming.
	EventDiagramUpdating EventType = "diagram_updating"
	// EventMessage carries a message appended to the transcript.
	EventMessage EventType = "message"
	// EventError carries a user-facing error.
	EventError EventType = "error"
	// EventDone ends every Send.
	EventDone EventType = "done"
)

// Event is one update emitted while a message is processed.
type Event struct {
	Type EventType `json:"type"`

	Content string `json:"content,omitempty"`

	Source  string `json:"source,omitempty"`
	SVG     string `json:"svg,omitempty"`
	Partial bool   `json:"partial,omitempty"`

	Updating bool `json:"updating,omitempty"`

	Message *store.ChatMessage `json:"message,omitempty"`

	Error string `json:"error,omitempty"`
}

// Sink receives events in order on the goroutine running Send.
type Sink func(Event)

func (s Sink) emit(e Event) {
	if s != nil {
		s(e)
	}
}
