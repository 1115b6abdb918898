// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/instantcoffee/internal/config"
	"github.com/jeranaias/instantcoffee/internal/logging"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// App holds the state shared by every command: flags, loaded config and
// the logger.
type App struct {
	configPath string
	verbose    bool
	jsonOut    bool

	out    io.Writer
	errOut io.Writer
	term   terminal
	st     *styles
	errSt  *styles

	cfg    *config.Config
	logger *zap.Logger
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	root := New(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		if asJSON, _ := root.PersistentFlags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(NewJSONErrorResponse(root.Name(), err))
		} else {
			fmt.Fprintln(os.Stderr, newStyles(os.Stderr).Error.Render("Error:"), err)
		}
		return ExitCode(err)
	}
	return ExitSuccess
}

// New builds the root command writing to out and errOut.
func New(out, errOut io.Writer) *cobra.Command {
	a := &App{
		out:    out,
		errOut: errOut,
		term:   detectTerminal(out),
		st:     newStyles(out),
		errSt:  newStyles(errOut),
	}

	root := &cobra.Command{
		Use:   "instantcoffee",
		Short: "Chat-driven architecture diagrams",
		Long: `instantcoffee turns a conversation with a local LLM into Mermaid or D2
diagrams. Run "instantcoffee serve" for the web API, or use the
subcommands to render files and manage sessions and memories.`,
		Version:           fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (default: search ~/.instantcoffee)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "Print results as JSON")

	root.AddCommand(
		a.serveCommand(),
		a.renderCommand(),
		a.healthCommand(),
		a.sessionsCommand(),
		a.memoriesCommand(),
		a.chatCommand(),
		a.configCommand(),
	)
	return root
}

// setup loads the configuration and builds the logger before any command
// runs.
func (a *App) setup(cmd *cobra.Command, _ []string) error {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFromPath(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return &CommandError{Code: ExitConfigError, Err: err}
	}
	if a.verbose {
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return &CommandError{Code: ExitConfigError, Err: err}
	}

	a.cfg = cfg
	a.logger = logger.With(zap.String("command", cmd.Name()))
	return nil
}

// configCommand prints the effective configuration, or writes a default
// config file under --init.
func (a *App) configCommand() *cobra.Command {
	var initFile, force bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long: `Print the effective configuration with secrets masked.

With --init, write the default configuration to
~/.instantcoffee/config.toml. An existing file is kept unless --force.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if initFile {
				return a.initConfig(force)
			}
			if a.jsonOut {
				masked := a.cfg.Clone()
				if masked.LLM.APIKey != "" {
					masked.LLM.APIKey = "****"
				}
				if masked.Server.AuthToken != "" {
					masked.Server.AuthToken = "****"
				}
				return a.printJSON("config", masked)
			}
			fmt.Fprint(a.out, a.cfg.String())
			return nil
		},
	}
	cmd.Flags().BoolVar(&initFile, "init", false, "Write a default config file")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file with --init")
	return cmd
}

func (a *App) initConfig(force bool) error {
	dir, err := config.ConfigDir()
	if err != nil {
		return &CommandError{Code: ExitConfigError, Err: err}
	}
	path := filepath.Join(dir, "config.toml")
	if _, err := os.Stat(path); err == nil && !force {
		return &CommandError{Code: ExitConfigError, Err: fmt.Errorf("%s already exists (use --force to overwrite)", path)}
	}
	if err := config.Save(config.Default()); err != nil {
		return &CommandError{Code: ExitConfigError, Err: err}
	}
	a.logger.Info("CONFIG_WRITTEN", zap.String("path", path))

	if a.jsonOut {
		return a.printJSON("config", map[string]string{"path": path})
	}
	a.printf("Wrote %s\n", path)
	return nil
}
