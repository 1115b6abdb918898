// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/instantcoffee/internal/memory"
	"github.com/jeranaias/instantcoffee/internal/store"
	"github.com/jeranaias/instantcoffee/internal/telemetry"
)

// =============================================================================
// MEMORIES COMMAND
// =============================================================================

func (a *App) memoriesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "memories",
		Aliases: []string{"memory"},
		Short:   "Manage the facts added to every prompt",
	}

	var byCategory bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List memories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			order := store.OrderByCreated
			if byCategory {
				order = store.OrderByCategory
			}
			return a.runMemoriesList(cmd, order)
		},
	}
	list.Flags().BoolVar(&byCategory, "by-category", false, "Group by category")

	var category string
	add := &cobra.Command{
		Use:   "add <name> <content...>",
		Short: "Add a memory",
		Example: `  instantcoffee memories add auth-service "runs on port 8081" --category service`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runMemoriesAdd(cmd, category, args[0], strings.Join(args[1:], " "))
		},
	}
	add.Flags().StringVar(&category, "category", "general", "service, team, preference or general")

	cmd.AddCommand(
		list,
		add,
		&cobra.Command{
			Use:   "forget <name>",
			Short: "Delete memories matching a name",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.runMemoriesForget(cmd, strings.Join(args, " "))
			},
		},
		&cobra.Command{
			Use:   "consolidate",
			Short: "Ask the LLM to merge duplicate and stale memories",
			Args:  cobra.NoArgs,
			RunE:  a.runMemoriesConsolidate,
		},
	)
	return cmd
}

func (a *App) runMemoriesList(cmd *cobra.Command, order store.MemoryOrder) error {
	db, err := a.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	mems, err := db.ListMemories(cmd.Context(), order)
	if err != nil {
		return err
	}
	if a.jsonOut {
		if mems == nil {
			mems = []store.Memory{}
		}
		return a.printJSON("memories list", mems)
	}
	if len(mems) == 0 {
		a.printf("No memories.\n")
		return nil
	}
	rows := make([][]string, 0, len(mems))
	for _, m := range mems {
		rows = append(rows, []string{strconv.FormatInt(m.ID, 10), string(m.Category), m.Name, m.Content})
	}
	a.printTable([]string{"ID", "CATEGORY", "NAME", "CONTENT"}, rows)
	return nil
}

func (a *App) runMemoriesAdd(cmd *cobra.Command, category, name, content string) error {
	c, err := store.ParseMemoryCategory(category)
	if err != nil {
		return usageError(err)
	}
	name, content = strings.TrimSpace(name), strings.TrimSpace(content)
	if name == "" || content == "" {
		return usageError(errors.New("memory name and content are required"))
	}

	db, err := a.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	id, err := db.CreateMemory(cmd.Context(), c, name, content)
	if err != nil {
		return err
	}
	if a.jsonOut {
		m, err := db.GetMemory(cmd.Context(), id)
		if err != nil {
			return err
		}
		return a.printJSON("memories add", m)
	}
	a.printf("Added memory %d (%s): %s\n", id, c, name)
	return nil
}

// runMemoriesForget goes through the same path as "forget X" typed in chat.
func (a *App) runMemoriesForget(cmd *cobra.Command, name string) error {
	db, err := a.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	reply, err := memory.NewService(db, a.logger.Named("memory")).
		Apply(cmd.Context(), memory.Command{Action: memory.ActionForget, Name: strings.TrimSpace(name)})
	if err != nil {
		return err
	}
	if a.jsonOut {
		return a.printJSON("memories forget", map[string]string{"message": reply})
	}
	a.printf("%s\n", reply)
	return nil
}

func (a *App) runMemoriesConsolidate(cmd *cobra.Command, _ []string) error {
	provider, err := a.provider()
	if err != nil {
		return &CommandError{Code: ExitConfigError, Err: err}
	}
	db, err := a.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if !a.jsonOut {
		fmt.Fprintf(a.errOut, "Consolidating memories with %s (%s)...\n", provider.Name(), a.cfg.LLM.Model)
	}
	res, err := a.consolidator(db, provider, telemetry.NoopRecorder{}).Consolidate(cmd.Context())
	if errors.Is(err, memory.ErrNoMemories) {
		if a.jsonOut {
			return a.printJSON("memories consolidate", memory.Result{})
		}
		a.printf("No memories to consolidate.\n")
		return nil
	}
	if err != nil {
		return err
	}
	if a.jsonOut {
		return a.printJSON("memories consolidate", res)
	}
	a.printf("Consolidated %d memories into %d.\n", res.Before, res.After)
	return nil
}
