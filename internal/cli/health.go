// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/instantcoffee/internal/llm"
	"github.com/jeranaias/instantcoffee/internal/telemetry"
)

// HealthReport is the result of the health command.
type HealthReport struct {
	Provider  string            `json:"provider"`
	Model     string            `json:"model"`
	Offline   bool              `json:"offline"`
	LLM       string            `json:"llm"`
	LLMError  string            `json:"llmError,omitempty"`
	Renderers map[string]string `json:"renderers"`
	Store     string            `json:"store"`
	StorePath string            `json:"storePath"`
}

// OK reports whether every dependency is usable.
func (r HealthReport) OK() bool {
	if r.LLM != "ok" || r.Store != "ok" {
		return false
	}
	for _, s := range r.Renderers {
		if s != "ok" {
			return false
		}
	}
	return true
}

func (a *App) healthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the LLM, renderers and database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			provider, err := a.provider()
			if err != nil {
				return &CommandError{Code: ExitConfigError, Err: err}
			}
			report := a.health(cmd.Context(), provider)

			if a.jsonOut {
				if err := a.printJSON("health", report); err != nil {
					return err
				}
			} else {
				a.printHealth(report)
			}
			if !report.OK() {
				return &CommandError{Code: ExitNetworkError, Err: errors.New("one or more checks failed")}
			}
			return nil
		},
	}
}

func (a *App) health(ctx context.Context, provider llm.Provider) HealthReport {
	if ctx == nil {
		ctx = context.Background()
	}
	report := HealthReport{
		Provider:  provider.Name(),
		Model:     a.cfg.LLM.Model,
		Offline:   a.cfg.LLM.Offline,
		LLM:       "ok",
		Renderers: map[string]string{},
		Store:     "ok",
		StorePath: a.cfg.Store.Path,
	}

	if err := a.checkLLM(ctx, provider); err != nil {
		report.LLM = "unavailable"
		report.LLMError = llm.FormatError(err)
	}

	for d, err := range a.renderer(telemetry.NoopRecorder{}).CheckAvailability(ctx) {
		if err != nil {
			report.Renderers[d.String()] = "missing"
		} else {
			report.Renderers[d.String()] = "ok"
		}
	}

	db, err := a.openStore()
	if err != nil {
		report.Store = "unavailable"
		return report
	}
	defer db.Close()
	if err := db.Ping(ctx); err != nil {
		report.Store = "unavailable"
	}
	return report
}

func (a *App) printHealth(r HealthReport) {
	const labelWidth = 10
	a.printf("%s%s (%s, %s)\n", a.st.label("LLM", labelWidth), a.st.status(r.LLM), r.Provider, r.Model)
	if r.LLMError != "" {
		a.printf("%s%s\n", strings.Repeat(" ", labelWidth), a.st.Dim.Render(r.LLMError))
	}

	names := make([]string, 0, len(r.Renderers))
	for name := range r.Renderers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		a.printf("%s%s\n", a.st.label(name, labelWidth), a.st.status(r.Renderers[name]))
	}
	a.printf("%s%s (%s)\n", a.st.label("Database", labelWidth), a.st.status(r.Store), r.StorePath)
	if r.Offline {
		a.printf("%s\n", a.st.Warning.Render("Offline mode: only localhost endpoints are contacted"))
	}
}
