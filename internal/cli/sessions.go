// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/instantcoffee/internal/diagram"
	"github.com/jeranaias/instantcoffee/internal/diff"
	"github.com/jeranaias/instantcoffee/internal/export"
	"github.com/jeranaias/instantcoffee/internal/store"
	"github.com/jeranaias/instantcoffee/internal/telemetry"
)

// =============================================================================
// SESSIONS COMMAND
// =============================================================================

func (a *App) sessionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Manage saved sessions",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List sessions, most recent first",
			Args:  cobra.NoArgs,
			RunE:  a.runSessionsList,
		},
		&cobra.Command{
			Use:   "show <id>",
			Short: "Print a session transcript and diagram source",
			Args:  cobra.ExactArgs(1),
			RunE:  a.runSessionsShow,
		},
		&cobra.Command{
			Use:   "rename <id> <name>",
			Short: "Rename a session",
			Args:  cobra.MinimumNArgs(2),
			RunE:  a.runSessionsRename,
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a session",
			Args:  cobra.ExactArgs(1),
			RunE:  a.runSessionsDelete,
		},
		&cobra.Command{
			Use:   "diff <id> [from] [to]",
			Short: "Compare two diagram versions (default: previous and current)",
			Args:  cobra.RangeArgs(1, 3),
			RunE:  a.runSessionsDiff,
		},
		a.sessionsExportCommand(),
	)
	return cmd
}

func (a *App) runSessionsList(cmd *cobra.Command, _ []string) error {
	db, err := a.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	sessions, err := db.ListSessions(cmd.Context())
	if err != nil {
		return err
	}
	if a.jsonOut {
		return a.printJSON("sessions list", sessions)
	}
	if len(sessions) == 0 {
		a.printf("No saved sessions.\n")
		return nil
	}

	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		d := s.State.Dialect
		if d == "" {
			d = string(diagram.Mermaid)
		}
		rows = append(rows, []string{
			strconv.FormatInt(s.ID, 10), s.Name, d,
			strconv.Itoa(len(s.State.Messages)), formatMillis(s.UpdatedAt),
		})
	}
	a.printTable([]string{"ID", "NAME", "DIALECT", "MESSAGES", "UPDATED"}, rows)
	return nil
}

func (a *App) runSessionsShow(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	db, err := a.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	sess, err := db.LoadSession(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("session %d: %w", id, err)
	}
	if a.jsonOut {
		return a.printJSON("sessions show", sess)
	}

	a.printf("%s\n\n", a.st.Title.Render("# "+sess.Name))
	a.printf("%s\n\n", a.st.Dim.Render(fmt.Sprintf("Created %s, updated %s", formatMillis(sess.CreatedAt), formatMillis(sess.UpdatedAt))))
	for _, m := range sess.State.Messages {
		content := m.Content
		if a.markdown() && m.Role == store.RoleAssistant {
			content = strings.TrimSpace(renderMarkdown(content, a.term.width, a.term.color))
		}
		a.printf("%s %s\n\n", a.st.role(m.Role), content)
	}
	if src := strings.TrimSpace(sess.State.DiagramSource); src != "" {
		header := fmt.Sprintf("--- diagram (%d/%d in history) ---", sess.State.HistoryIndex+1, len(sess.State.History))
		a.printf("%s\n%s\n", a.st.Header.Render(header), src)
	}
	return nil
}

func (a *App) runSessionsRename(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	name := strings.TrimSpace(strings.Join(args[1:], " "))
	if name == "" {
		return usageError(errors.New("session name is empty"))
	}
	db, err := a.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.RenameSession(cmd.Context(), id, name); err != nil {
		return fmt.Errorf("session %d: %w", id, err)
	}
	if a.jsonOut {
		return a.printJSON("sessions rename", map[string]any{"id": id, "name": name})
	}
	a.printf("Renamed session %d to %q\n", id, name)
	return nil
}

func (a *App) runSessionsDelete(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	db, err := a.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.LoadSession(cmd.Context(), id); err != nil {
		return fmt.Errorf("session %d: %w", id, err)
	}
	if err := db.DeleteSession(cmd.Context(), id); err != nil {
		return err
	}
	if a.jsonOut {
		return a.printJSON("sessions delete", map[string]any{"id": id})
	}
	a.printf("Deleted session %d\n", id)
	return nil
}

func (a *App) runSessionsDiff(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	db, err := a.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	sess, err := db.LoadSession(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("session %d: %w", id, err)
	}

	from, to := diff.CurrentRange(sess.State.HistoryIndex)
	for i, dst := range []*int{&from, &to} {
		if len(args) > i+1 {
			if *dst, err = strconv.Atoi(args[i+1]); err != nil {
				return usageError(fmt.Errorf("invalid version %q", args[i+1]))
			}
		}
	}

	d, err := diff.Versions(sess.State.History, from, to)
	if errors.Is(err, diff.ErrVersionRange) {
		return usageError(err)
	}
	if err != nil {
		return err
	}
	if a.jsonOut {
		return a.printJSON("sessions diff", d)
	}
	a.printf("%s..%s: %s\n", d.From, d.To, d.Summary())
	if d.Unified != "" {
		a.printf("%s", d.Unified)
	}
	return nil
}

func (a *App) sessionsExportCommand() *cobra.Command {
	var (
		format string
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a session as svg, png, md, json or html",
		Long: `Writes <session-name>_<timestamp>.<ext> to the output directory. The
diagram is re-rendered from its saved source for svg, png, html and json.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return usageError(err)
			}
			renderer := a.renderer(telemetry.NoopRecorder{})
			opts := export.DefaultOptions()
			opts.OutputDir = outDir
			opts.Rasterize = func(d diagram.Dialect, src string) ([]byte, error) {
				return renderer.RenderPNG(cmd.Context(), d, src)
			}
			exp, err := export.New(f, opts)
			if err != nil {
				return usageError(err)
			}

			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			sess, err := db.LoadSession(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("session %d: %w", id, err)
			}

			var svg string
			src := strings.TrimSpace(sess.State.DiagramSource)
			if src != "" && f != export.FormatMarkdown && f != export.FormatPNG {
				d := a.dialect()
				if sess.State.Dialect != "" {
					if d, err = diagram.ParseDialect(sess.State.Dialect); err != nil {
						return err
					}
				}
				if svg, err = renderer.Render(cmd.Context(), d, src); err != nil {
					return err
				}
			}

			path, err := export.ExportToFile(sess, svg, exp, opts)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON("sessions export", map[string]any{"id": id, "path": path})
			}
			a.printf("Exported to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "svg", "svg, png, md, json or html")
	cmd.Flags().StringVarP(&outDir, "out-dir", "o", ".", "Directory to write to")
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, usageError(fmt.Errorf("invalid session id %q", s))
	}
	return id, nil
}
