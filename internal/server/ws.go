// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jeranaias/instantcoffee/internal/chat"
	"github.com/jeranaias/instantcoffee/internal/session"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsMaxMessage = 1 << 20
)

// ============================================================================
// WEBSOCKET PROTOCOL
// ============================================================================

// Client commands.
const (
	wsSend    = "send"
	wsCancel  = "cancel"
	wsUndo    = "undo"
	wsRedo    = "redo"
	wsSource  = "source"
	wsPreview = "preview"
	wsSave    = "save"
	wsState   = "state"
)

// wsCommand is a message from the client.
type wsCommand struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Source  string `json:"source,omitempty"`
}

// wsReply answers a command that is not a chat message. Chat messages are
// answered with chat.Event values.
type wsReply struct {
	Type     string          `json:"type"`
	View     *chat.View      `json:"view,omitempty"`
	Diagram  *chat.Diagram   `json:"diagram,omitempty"`
	SVG      string          `json:"svg,omitempty"`
	AutoSave *session.Status `json:"autoSave,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// ============================================================================
// WEBSOCKET HANDLER
// ============================================================================

// handleWebSocket handles GET /api/sessions/{id}/ws. The connection first
// receives a "state" reply, then carries the same operations as the REST
// routes. One chat message runs at a time; "cancel" aborts it.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	_, conv, ok := s.openSession(w, r)
	if !ok {
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Debug("WS_UPGRADE_FAILED", zap.Error(err))
		return
	}

	c := &wsConn{
		server: s,
		conn:   conn,
		conv:   conv,
		logger: s.logger,
	}
	c.run(r.Context())
}

// checkOrigin accepts same-origin requests, requests without an Origin
// header (non-browser clients) and the configured CORS origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err == nil && u.Host == r.Host {
		return true
	}
	for _, allowed := range s.cfg.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// wsConn is one client connection.
type wsConn struct {
	server *Server
	conn   *websocket.Conn
	conv   *chat.Conversation
	logger *zap.Logger

	writeMu sync.Mutex

	sendMu     sync.Mutex
	cancelSend context.CancelFunc
	wg         sync.WaitGroup
}

func (c *wsConn) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer func() {
		cancel()
		c.wg.Wait()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsMaxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	c.wg.Add(1)
	go c.pinger(ctx)

	view := c.conv.View()
	c.write(wsReply{Type: wsState, View: &view})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Debug("WS_READ_FAILED", zap.Error(err))
			}
			return
		}
		var cmd wsCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			c.write(wsReply{Type: string(chat.EventError), Error: "Invalid message format"})
			continue
		}
		c.handle(ctx, cmd)
	}
}

func (c *wsConn) handle(ctx context.Context, cmd wsCommand) {
	switch cmd.Type {
	case wsSend:
		c.startSend(ctx, cmd.Content)

	case wsCancel:
		c.sendMu.Lock()
		if c.cancelSend != nil {
			c.cancelSend()
		}
		c.sendMu.Unlock()

	case wsUndo:
		d, err := c.conv.Undo(ctx)
		c.writeDiagram(cmd.Type, d, err)

	case wsRedo:
		d, err := c.conv.Redo(ctx)
		c.writeDiagram(cmd.Type, d, err)

	case wsSource:
		d, err := c.conv.ApplySource(ctx, cmd.Source)
		c.writeDiagram(cmd.Type, d, err)

	case wsPreview:
		// Runs beside the read loop so a newer preview can supersede it.
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			svg, err := c.conv.Preview(ctx, cmd.Source)
			if errors.Is(err, chat.ErrSuperseded) {
				return
			}
			if err != nil {
				c.write(wsReply{Type: wsPreview, Error: err.Error()})
				return
			}
			c.write(wsReply{Type: wsPreview, SVG: svg})
		}()

	case wsSave:
		if _, err := c.server.deps.Hub.Flush(ctx, c.conv); err != nil {
			c.write(wsReply{Type: wsSave, Error: err.Error()})
			return
		}
		st, _ := c.server.deps.Hub.Status(c.conv)
		c.write(wsReply{Type: wsSave, AutoSave: &st})

	case wsState:
		view := c.conv.View()
		c.write(wsReply{Type: wsState, View: &view})

	default:
		c.write(wsReply{Type: string(chat.EventError), Error: "Unknown message type " + cmd.Type})
	}
}

// startSend runs a chat message in the background so the read loop can
// still receive "cancel".
func (c *wsConn) startSend(ctx context.Context, content string) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.cancelSend != nil {
		c.write(wsReply{Type: string(chat.EventError), Error: chat.ErrBusy.Error()})
		return
	}
	if strings.TrimSpace(content) == "" {
		c.write(chat.Event{Type: chat.EventError, Error: "Message content is empty"})
		c.write(chat.Event{Type: chat.EventDone})
		return
	}

	sendCtx, cancel := context.WithCancel(ctx)
	c.cancelSend = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.sendMu.Lock()
			c.cancelSend = nil
			c.sendMu.Unlock()
			cancel()
		}()

		err := c.conv.Send(sendCtx, content, func(e chat.Event) { c.write(e) })
		if errors.Is(err, chat.ErrBusy) {
			// Another client is generating; Send emitted nothing.
			c.write(chat.Event{Type: chat.EventError, Error: err.Error()})
			c.write(chat.Event{Type: chat.EventDone})
		}
	}()
}

func (c *wsConn) writeDiagram(kind string, d chat.Diagram, err error) {
	if err != nil {
		c.write(wsReply{Type: kind, Error: err.Error()})
		return
	}
	c.write(wsReply{Type: kind, Diagram: &d})
}

// write sends v as one JSON text frame. Write errors end the read loop on
// its next read, so they are only logged.
func (c *wsConn) write(v any) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := c.conn.WriteJSON(v); err != nil {
		c.logger.Debug("WS_WRITE_FAILED", zap.Error(err))
	}
}

func (c *wsConn) pinger(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// Unblocks ReadMessage on server shutdown.
			c.conn.Close()
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
