// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/instantcoffee/internal/llm"
	"github.com/jeranaias/instantcoffee/internal/offline"
	"github.com/jeranaias/instantcoffee/internal/render"
	"github.com/jeranaias/instantcoffee/internal/server"
	"github.com/jeranaias/instantcoffee/internal/telemetry"
)

// =============================================================================
// SERVE COMMAND
// =============================================================================

func (a *App) serveCommand() *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Starts the JSON/SSE/WebSocket API used by the browser client.

Renderer and LLM availability are checked at startup and logged; the server
starts even when they are missing. SIGINT or SIGTERM shuts down gracefully,
flushing unsaved sessions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if host != "" {
				a.cfg.Server.Host = host
			}
			if port != 0 {
				a.cfg.Server.Port = port
			}
			return a.runServe(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "Listen host (overrides server.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (overrides server.port)")
	return cmd
}

func (a *App) runServe(parent context.Context) (err error) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.cfg.Telemetry.Enabled {
		if err := (offline.Policy{Enabled: a.cfg.LLM.Offline}).CheckCollector(a.cfg.Telemetry.Endpoint); err != nil {
			return &CommandError{Code: ExitConfigError, Err: err}
		}
	}
	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Options{
		Enabled:     a.cfg.Telemetry.Enabled,
		Endpoint:    a.cfg.Telemetry.Endpoint,
		Insecure:    a.cfg.Telemetry.Insecure,
		Interval:    a.cfg.Telemetry.Interval.Duration,
		ServiceName: a.cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return err
	}
	recorder := telemetry.Default()

	db, err := a.openStore()
	if err != nil {
		return err
	}
	provider, err := a.provider()
	if err != nil {
		db.Close()
		return &CommandError{Code: ExitConfigError, Err: err}
	}
	renderSvc := a.renderer(recorder)
	hub := a.newHub(db, provider, renderSvc, recorder)
	queue := a.taskQueue()

	// Teardown runs in dependency order once the server has stopped.
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		err = multierr.Combine(err,
			queue.Close(cleanupCtx),
			hub.Close(cleanupCtx),
			db.Close(),
			shutdownTelemetry(cleanupCtx),
		)
		a.logger.Info("SHUTDOWN_COMPLETE", zap.Error(err))
	}()

	srv, err := server.New(server.Deps{
		Config:        a.cfg.Server,
		Store:         db,
		Hub:           hub,
		Renderer:      renderSvc,
		Provider:      provider,
		Consolidator:  a.consolidator(db, provider, recorder),
		Tasks:         queue,
		Dialect:       a.dialect(),
		HealthTimeout: a.cfg.LLM.HealthTimeout.Duration,
		Logger:        a.logger.Named("server"),
	})
	if err != nil {
		return &CommandError{Code: ExitConfigError, Err: err}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, a.cfg.Addr())
	})
	g.Go(func() error {
		a.checkAvailability(gctx, renderSvc, provider)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		if parent.Err() == nil && ctx.Err() != nil {
			a.logger.Info("SIGNAL_RECEIVED")
		}
		return nil
	})
	return g.Wait()
}

// checkAvailability logs which renderers and which LLM are reachable. The
// render service logs each renderer itself.
func (a *App) checkAvailability(ctx context.Context, renderSvc *render.Service, provider llm.Provider) {
	missing := 0
	for _, err := range renderSvc.CheckAvailability(ctx) {
		if err != nil {
			missing++
		}
	}
	if err := a.checkLLM(ctx, provider); err != nil {
		a.logger.Warn("LLM_UNAVAILABLE",
			zap.String("provider", provider.Name()),
			zap.String("hint", llm.FormatError(err)),
			zap.Error(err))
	} else {
		a.logger.Info("LLM_AVAILABLE", zap.String("provider", provider.Name()), zap.String("model", a.cfg.LLM.Model))
	}
	if missing > 0 {
		a.logger.Warn("RENDERERS_MISSING", zap.Int("count", missing))
	}
}

func (a *App) checkLLM(ctx context.Context, provider llm.Provider) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.LLM.HealthTimeout.Duration+time.Second)
	defer cancel()
	return provider.Health(ctx)
}
