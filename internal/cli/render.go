// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/instantcoffee/internal/diagram"
	"github.com/jeranaias/instantcoffee/internal/telemetry"
	"github.com/jeranaias/instantcoffee/internal/util"
	"github.com/jeranaias/instantcoffee/internal/watch"
)

// =============================================================================
// RENDER COMMAND
// =============================================================================

type renderOptions struct {
	dialect string
	out     string
	watch   bool
}

func (a *App) renderCommand() *cobra.Command {
	var opts renderOptions
	cmd := &cobra.Command{
		Use:   "render [file]",
		Short: "Render a Mermaid or D2 file to SVG",
		Long: `Compiles diagram source to SVG with the mmdc or d2 CLI.

The dialect comes from --dialect, then the file extension (.d2 is D2,
anything else Mermaid). Without a file, source is read from stdin. Without
--out, the SVG is written to stdout.

With --watch the file is re-rendered every time it is saved.`,
		Example: `  instantcoffee render flow.mmd --out flow.svg
  instantcoffee render arch.d2 --out arch.svg --watch
  echo 'a -> b' | instantcoffee render --dialect d2`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 && args[0] != "-" {
				path = args[0]
			}
			return a.runRender(cmd.Context(), cmd.InOrStdin(), path, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.dialect, "dialect", "d", "", "mermaid or d2 (default: from file extension)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Output SVG path (default: stdout)")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Re-render when the file changes")
	return cmd
}

func (a *App) runRender(ctx context.Context, stdin io.Reader, path string, opts renderOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	d, err := renderDialect(opts.dialect, path, a.dialect())
	if err != nil {
		return usageError(err)
	}
	if opts.watch && path == "" {
		return usageError(errors.New("--watch needs a file"))
	}

	svc := a.renderer(telemetry.NoopRecorder{})
	renderTo := func(src string) error {
		svg, err := svc.Render(ctx, d, src)
		if err != nil {
			return err
		}
		if opts.out == "" {
			_, err := fmt.Fprintln(a.out, svg)
			return err
		}
		if err := util.AtomicWriteFile(opts.out, []byte(svg), 0644); err != nil {
			return fmt.Errorf("write %s: %w", opts.out, err)
		}
		fmt.Fprintf(a.errOut, "Wrote %s\n", opts.out)
		return nil
	}

	if !opts.watch {
		var src []byte
		if path == "" {
			src, err = io.ReadAll(stdin)
		} else {
			src, err = os.ReadFile(path)
		}
		if err != nil {
			return err
		}
		return renderTo(string(src))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := watch.New(path, a.cfg.Render.WatchDebounce.Duration, func(src string) {
		// Failures are reported and watching continues.
		if err := renderTo(src); err != nil {
			fmt.Fprintf(a.errOut, "Render failed: %v\n", err)
		}
	}, a.logger.Named("watch"))
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := renderTo(string(data)); err != nil {
		fmt.Fprintf(a.errOut, "Render failed: %v\n", err)
	}
	fmt.Fprintf(a.errOut, "Watching %s (Ctrl+C to stop)\n", w.Path())
	a.logger.Debug("WATCH_STARTED", zap.String("path", w.Path()))

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// renderDialect picks the dialect from the flag, then the file name, then
// the configured default for stdin.
func renderDialect(flag, path string, fallback diagram.Dialect) (diagram.Dialect, error) {
	switch {
	case flag != "":
		return diagram.ParseDialect(flag)
	case path != "":
		return diagram.DialectForFile(path), nil
	default:
		return fallback, nil
	}
}
