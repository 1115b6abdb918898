// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/jeranaias/instantcoffee/internal/chat"
	"github.com/jeranaias/instantcoffee/internal/diagram"
	"github.com/jeranaias/instantcoffee/internal/store"
	"github.com/jeranaias/instantcoffee/internal/telemetry"
	"github.com/jeranaias/instantcoffee/internal/util"
)

// =============================================================================
// CHAT COMMAND
// =============================================================================

// ChatResult is the --json output of the chat command.
type ChatResult struct {
	SessionID int64              `json:"sessionId"`
	Reply     *store.ChatMessage `json:"reply,omitempty"`
	Diagram   chat.Diagram       `json:"diagram"`
	Error     string             `json:"error,omitempty"`
}

func (a *App) chatCommand() *cobra.Command {
	var (
		dialect string
		svgOut  string
	)
	cmd := &cobra.Command{
		Use:   "chat <session-id|new> <message...>",
		Short: "Send one message to a session",
		Long: `Sends a message through the same pipeline as the web client: memory
commands, the LLM, diagram extraction and rendering. The reply streams to
stdout and the session is saved when the turn ends.`,
		Example: `  instantcoffee chat new "draw a login flow with a database"
  instantcoffee chat 3 "add a cache between the API and the database"
  instantcoffee chat 3 "remember that auth-service runs on port 8081"`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd.Context(), args[0], strings.Join(args[1:], " "), dialect, svgOut)
		},
	}
	cmd.Flags().StringVarP(&dialect, "dialect", "d", "", "Dialect for a new session (default: render.dialect)")
	cmd.Flags().StringVar(&svgOut, "svg", "", "Also write the resulting diagram to this file")
	return cmd
}

func (a *App) runChat(parent context.Context, target, message, dialect, svgOut string) (err error) {
	if parent == nil {
		parent = context.Background()
	}
	if strings.TrimSpace(message) == "" {
		return usageError(errors.New("message is empty"))
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := a.dialect()
	if dialect != "" {
		if d, err = diagram.ParseDialect(dialect); err != nil {
			return usageError(err)
		}
	}

	provider, err := a.provider()
	if err != nil {
		return &CommandError{Code: ExitConfigError, Err: err}
	}
	db, err := a.openStore()
	if err != nil {
		return err
	}
	hub := a.newHub(db, provider, a.renderer(telemetry.NoopRecorder{}), telemetry.NoopRecorder{})
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err = multierr.Combine(err, hub.Close(closeCtx), db.Close())
	}()

	var (
		id   int64
		conv *chat.Conversation
	)
	if target == "new" {
		id, conv, err = hub.Create(ctx, d)
	} else {
		if id, err = parseID(target); err != nil {
			return err
		}
		conv, err = hub.Open(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("session %s: %w", target, err)
	}

	// On a terminal the reply is collected and rendered as markdown at the
	// end. Pipes get the raw stream.
	useMarkdown := a.markdown()
	result := ChatResult{SessionID: id}
	sink := func(e chat.Event) {
		switch e.Type {
		case chat.EventChunk:
			if !a.jsonOut && !useMarkdown {
				fmt.Fprint(a.out, e.Content)
			}
		case chat.EventMessage:
			if e.Message != nil && e.Message.Role == store.RoleAssistant {
				result.Reply = e.Message
			}
		case chat.EventError:
			result.Error = e.Error
			if !a.jsonOut {
				fmt.Fprintf(a.errOut, "\n%s %s\n", a.errSt.Error.Render("[Error]"), e.Error)
			}
		}
	}

	if err := conv.Send(ctx, message, sink); err != nil {
		return err
	}
	if _, err := hub.Flush(ctx, conv); err != nil {
		return err
	}
	result.Diagram = conv.Diagram()

	if svgOut != "" && result.Diagram.SVG != "" {
		if err := util.AtomicWriteFile(svgOut, []byte(result.Diagram.SVG), 0644); err != nil {
			return err
		}
	}

	if a.jsonOut {
		return a.printJSON("chat", result)
	}
	switch {
	case result.Reply == nil:
	case useMarkdown:
		fmt.Fprint(a.out, renderMarkdown(result.Reply.Content, a.term.width, a.term.color))
	case !strings.HasSuffix(result.Reply.Content, "\n"):
		fmt.Fprintln(a.out)
	}

	summary := fmt.Sprintf("Session %d", id)
	if result.Diagram.Source != "" {
		summary += fmt.Sprintf(", diagram %d/%d", result.Diagram.HistoryIndex+1, result.Diagram.HistoryLength)
	}
	if svgOut != "" && result.Diagram.SVG != "" {
		summary += ", wrote " + svgOut
	}
	fmt.Fprintln(a.errOut, a.errSt.Dim.Render(summary))
	return nil
}
