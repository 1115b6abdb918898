// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat runs conversations: it builds prompts, streams replies from
// the LLM, renders the diagrams they produce and keeps diagram history.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/instantcoffee/internal/diagram"
	"github.com/jeranaias/instantcoffee/internal/llm"
	"github.com/jeranaias/instantcoffee/internal/memory"
	"github.com/jeranaias/instantcoffee/internal/store"
	"github.com/jeranaias/instantcoffee/internal/telemetry"
)

// =============================================================================
// CONSTANTS AND ERRORS
// =============================================================================

const (
	// MaxMessages is how many transcript messages are sent with a prompt.
	MaxMessages = 20

	// StreamRenderDebounce is the minimum gap between renders while a
	// reply is streaming.
	StreamRenderDebounce = 500 * time.Millisecond

	// PreviewDebounce is the quiet period before a source-editor preview
	// is rendered.
	PreviewDebounce = 300 * time.Millisecond

	// maxToolRounds bounds tool-call continuations per message.
	maxToolRounds = 3
)

// User-facing notes appended to assistant replies.
const (
	noCodeNote       = "\n\n⚠️ No %s code was detected in my response. Please try describing the diagram differently."
	renderFailedNote = "\n\n⚠️ Diagram generated but rendering failed."
	toolUpdatedText  = "Diagram updated."
)

var (
	// ErrBusy is returned when a message is sent while another is being
	// generated.
	ErrBusy = errors.New("a response is already being generated")

	// ErrNothingToUndo and ErrNothingToRedo report history bounds.
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")

	// ErrEmptySource rejects blank editor input.
	ErrEmptySource = errors.New("diagram source is empty")

	// ErrSuperseded is returned by Preview when a newer preview arrived
	// during the debounce.
	ErrSuperseded = errors.New("preview superseded")
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Renderer turns diagram source into SVG. render.Service satisfies it.
type Renderer interface {
	Render(ctx context.Context, d diagram.Dialect, source string) (string, error)
}

// Memories applies memory commands and supplies the prompt block.
// memory.Service satisfies it.
type Memories interface {
	Apply(ctx context.Context, cmd memory.Command) (string, error)
	ForPrompt(ctx context.Context) (string, error)
}

// Options configures a Conversation.
type Options struct {
	Provider llm.Provider
	Model    string
	Renderer Renderer

	// Memories is optional; without it memory commands go to the model.
	Memories Memories

	Dialect diagram.Dialect

	MaxMessages     int
	StreamDebounce  time.Duration
	PreviewDebounce time.Duration

	Logger   *zap.Logger
	Recorder telemetry.Recorder

	// OnChange receives a snapshot after every state change, outside the
	// conversation's lock.
	OnChange func(store.SessionState)

	// Now overrides the clock used for render debouncing.
	Now func() time.Time
}

func (o *Options) fill() {
	if o.Dialect == "" {
		o.Dialect = diagram.Mermaid
	}
	if o.MaxMessages <= 0 {
		o.MaxMessages = MaxMessages
	}
	if o.StreamDebounce <= 0 {
		o.StreamDebounce = StreamRenderDebounce
	}
	if o.PreviewDebounce <= 0 {
		o.PreviewDebounce = PreviewDebounce
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	o.Recorder = telemetry.OrNoop(o.Recorder)
	if o.Now == nil {
		o.Now = time.Now
	}
}

// =============================================================================
// CONVERSATION
// =============================================================================

// Conversation is the live state of one chat: transcript, current diagram
// and diagram history. It is safe for concurrent use; only one Send runs at
// a time.
type Conversation struct {
	opts Options

	mu sync.Mutex

	messages     []store.ChatMessage
	dialect      diagram.Dialect
	source       string
	svg          string
	history      []string
	historyIndex int

	generating bool
	updating   bool
	lastError  string

	streaming         strings.Builder
	partial           string
	lastPartialRender time.Time

	previewSeq uint64
}

// NewConversation creates an empty conversation.
func NewConversation(opts Options) *Conversation {
	opts.fill()
	return &Conversation{
		opts:         opts,
		dialect:      opts.Dialect,
		historyIndex: -1,
	}
}

// Dialect returns the diagram language of the conversation.
func (c *Conversation) Dialect() diagram.Dialect {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dialect
}

// LastError returns the error text of the last failed Send, or "".
func (c *Conversation) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// Generating reports whether a Send is in progress.
func (c *Conversation) Generating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generating
}

// Messages returns a copy of the transcript.
func (c *Conversation) Messages() []store.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]store.ChatMessage(nil), c.messages...)
}

// =============================================================================
// PROMPT
// =============================================================================

// BuildPrompt assembles the request for userContent: the system prompt with
// the current diagram and memories, the most recent history messages, and
// the user message.
func (c *Conversation) BuildPrompt(ctx context.Context, history []store.ChatMessage, userContent string) []llm.Message {
	c.mu.Lock()
	d, src := c.dialect, c.source
	c.mu.Unlock()

	var memories string
	if c.opts.Memories != nil {
		var err error
		if memories, err = c.opts.Memories.ForPrompt(ctx); err != nil {
			c.opts.Logger.Warn("MEMORIES_UNAVAILABLE", zap.Error(err))
		}
	}
	return buildPrompt(d, src, memories, history, userContent, c.opts.MaxMessages)
}

func buildPrompt(d diagram.Dialect, src, memories string, history []store.ChatMessage, userContent string, limit int) []llm.Message {
	var system strings.Builder
	system.WriteString(diagram.SystemPrompt(d))
	if src != "" {
		system.WriteString("\n\nCURRENT DIAGRAM:\n")
		system.WriteString(diagram.CodeBlock(d, src))
	}
	if memories != "" {
		system.WriteString("\n\nMEMORIES (facts to remember about the user's systems):\n")
		system.WriteString(memories)
	}

	if len(history) > limit {
		history = history[len(history)-limit:]
	}

	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.SystemMessage(system.String()))
	for _, m := range history {
		content := m.Content
		if m.DiagramSource != "" {
			content += "\n\n[Previous diagram for reference:\n" + diagram.CodeBlock(d, m.DiagramSource) + "]"
		}
		msgs = append(msgs, llm.Message{Role: m.Role, Content: content})
	}
	return append(msgs, llm.UserMessage(userContent))
}

// =============================================================================
// SEND
// =============================================================================

// Send processes one user message. Events are delivered to sink as they
// happen and always end with done. A blank message is ignored. Errors are
// reported both as an error event and as the return value.
func (c *Conversation) Send(ctx context.Context, content string, sink Sink) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil
	}

	c.mu.Lock()
	if c.generating {
		c.mu.Unlock()
		return ErrBusy
	}
	c.generating = true
	c.lastError = ""
	c.streaming.Reset()
	c.partial = ""
	c.lastPartialRender = time.Time{}
	history := append([]store.ChatMessage(nil), c.messages...)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.generating = false
		c.updating = false
		c.streaming.Reset()
		c.partial = ""
		c.mu.Unlock()
		sink.emit(Event{Type: EventDone})
	}()

	if c.opts.Memories != nil {
		if cmd := memory.ParseCommand(trimmed); cmd != nil {
			return c.applyMemoryCommand(ctx, *cmd, trimmed, sink)
		}
	}

	start := time.Now()
	prompt := c.BuildPrompt(ctx, history, trimmed)
	c.appendMessage(store.NewChatMessage(store.RoleUser, trimmed), sink)

	d := c.Dialect()
	tools := []llm.Tool{diagram.UpdateTool(d)}
	onChunk := func(delta string) { c.onChunk(ctx, d, delta, sink) }

	res, err := c.opts.Provider.StreamChat(ctx, c.opts.Model, prompt, tools, onChunk)
	calls := 0
	if err == nil {
		if res.HasToolCalls() {
			calls, err = c.handleToolCalls(ctx, d, prompt, tools, res, sink)
		} else {
			c.finalize(ctx, d, res.Content, sink)
		}
	}

	c.opts.Recorder.RecordChatTurn(ctx, c.opts.Provider.Name(), calls, time.Since(start), err)
	if err != nil {
		c.fail(err, sink)
		return err
	}
	c.opts.Logger.Info("CHAT_TURN_COMPLETE",
		zap.String("provider", c.opts.Provider.Name()),
		zap.Int("tool_calls", calls),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

func (c *Conversation) applyMemoryCommand(ctx context.Context, cmd memory.Command, text string, sink Sink) error {
	c.appendMessage(store.NewChatMessage(store.RoleUser, text), sink)
	reply, err := c.opts.Memories.Apply(ctx, cmd)
	if err != nil {
		c.fail(err, sink)
		return err
	}
	c.appendMessage(store.NewChatMessage(store.RoleAssistant, reply), sink)
	return nil
}

// onChunk records a delta and renders the diagram found so far when it
// changed and the debounce interval has passed. A failed partial render
// keeps the previous diagram.
func (c *Conversation) onChunk(ctx context.Context, d diagram.Dialect, delta string, sink Sink) {
	if delta == "" {
		return
	}
	sink.emit(Event{Type: EventChunk, Content: delta})

	c.mu.Lock()
	c.streaming.WriteString(delta)
	text := c.streaming.String()
	c.mu.Unlock()

	_, code := diagram.Extract(d, text)
	now := c.opts.Now()

	c.mu.Lock()
	due := code != "" && code != c.partial && now.Sub(c.lastPartialRender) >= c.opts.StreamDebounce
	if due {
		c.partial = code
		c.lastPartialRender = now
		c.updating = true
	}
	c.mu.Unlock()
	if !due {
		return
	}

	sink.emit(Event{Type: EventDiagramUpdating, Updating: true})
	svg, err := c.opts.Renderer.Render(ctx, d, code)

	c.mu.Lock()
	c.updating = false
	if err == nil {
		c.source = code
		c.svg = svg
	}
	c.mu.Unlock()

	if err != nil {
		c.opts.Logger.Debug("PARTIAL_RENDER_FAILED", zap.Error(err))
	} else {
		sink.emit(Event{Type: EventDiagram, Source: code, SVG: svg, Partial: true})
		c.changed()
	}
	sink.emit(Event{Type: EventDiagramUpdating, Updating: false})
}

// finalize turns a plain-text reply into the assistant message, rendering
// any diagram it contains.
func (c *Conversation) finalize(ctx context.Context, d diagram.Dialect, text string, sink Sink) {
	explanation, code := diagram.Extract(d, text)
	content := explanation
	if content == "" {
		content = text
	}

	msg := store.NewChatMessage(store.RoleAssistant, content)
	if code == "" {
		msg.Content += fmt.Sprintf(noCodeNote, d.Title())
		c.appendMessage(msg, sink)
		return
	}

	svg, err := c.opts.Renderer.Render(ctx, d, code)
	if err != nil {
		c.opts.Logger.Warn("FINAL_RENDER_FAILED", zap.Error(err))
		msg.Content += renderFailedNote
		c.appendMessage(msg, sink)
		return
	}

	msg.DiagramSource = code
	c.setDiagram(code, svg, sink)
	c.appendMessage(msg, sink)
}

// handleToolCalls renders each update_diagram call, answers it with a tool
// result and streams the model's continuation. It returns how many diagram
// updates were applied.
func (c *Conversation) handleToolCalls(ctx context.Context, d diagram.Dialect, prompt []llm.Message, tools []llm.Tool, res llm.Result, sink Sink) (int, error) {
	convo := append([]llm.Message(nil), prompt...)
	onChunk := func(delta string) { c.onChunk(ctx, d, delta, sink) }

	applied := 0
	var lastSource string
	for round := 0; res.HasToolCalls() && round < maxToolRounds; round++ {
		convo = append(convo, llm.AssistantMessage(res.Content, res.ToolCalls...))

		for _, call := range res.ToolCalls {
			if call.Name != diagram.ToolName {
				c.opts.Logger.Warn("UNKNOWN_TOOL_CALL", zap.String("tool", call.Name))
				convo = append(convo, llm.ToolResultMessage(call, `{"success":false,"error":"unknown tool"}`))
				continue
			}
			code := diagram.CodeFromArguments(d, call.Arguments)
			if strings.TrimSpace(code) == "" {
				c.opts.Logger.Warn("TOOL_CALL_EMPTY", zap.String("arguments", call.Arguments))
				convo = append(convo, llm.ToolResultMessage(call, `{"success":false,"error":"missing diagram code"}`))
				continue
			}

			sink.emit(Event{Type: EventDiagramUpdating, Updating: true})
			c.setUpdating(true)
			svg, err := c.opts.Renderer.Render(ctx, d, code)
			c.setUpdating(false)
			sink.emit(Event{Type: EventDiagramUpdating, Updating: false})
			if err != nil {
				return applied, err
			}

			c.setDiagram(code, svg, sink)
			applied++
			lastSource = code
			convo = append(convo, llm.ToolResultMessage(call, diagram.ToolResult(d, code)))
		}

		c.mu.Lock()
		c.streaming.Reset()
		c.mu.Unlock()

		var err error
		res, err = c.opts.Provider.StreamChat(ctx, c.opts.Model, convo, tools, onChunk)
		if err != nil {
			return applied, err
		}
	}

	if applied == 0 {
		c.finalize(ctx, d, res.Content, sink)
		return 0, nil
	}

	text := strings.TrimSpace(res.Content)
	if text == "" {
		text = toolUpdatedText
	}
	msg := store.NewChatMessage(store.RoleAssistant, text)
	msg.DiagramSource = lastSource
	c.appendMessage(msg, sink)
	return applied, nil
}

// =============================================================================
// STATE MUTATION
// =============================================================================

func (c *Conversation) appendMessage(msg store.ChatMessage, sink Sink) {
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()
	sink.emit(Event{Type: EventMessage, Message: &msg})
	c.changed()
}

// setDiagram makes src the current diagram and pushes it onto history.
func (c *Conversation) setDiagram(src, svg string, sink Sink) {
	c.mu.Lock()
	c.source = src
	c.svg = svg
	c.pushHistoryLocked(src)
	c.mu.Unlock()
	sink.emit(Event{Type: EventDiagram, Source: src, SVG: svg})
	c.changed()
}

func (c *Conversation) setUpdating(v bool) {
	c.mu.Lock()
	c.updating = v
	c.mu.Unlock()
}

func (c *Conversation) fail(err error, sink Sink) {
	msg := llm.FormatError(err)
	c.mu.Lock()
	c.lastError = msg
	c.mu.Unlock()
	c.opts.Logger.Error("CHAT_FAILED", zap.Error(err))
	sink.emit(Event{Type: EventError, Error: msg})
}

// changed publishes a snapshot to OnChange.
func (c *Conversation) changed() {
	if c.opts.OnChange == nil {
		return
	}
	c.opts.OnChange(c.Snapshot())
}
