// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package memory

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/instantcoffee/internal/store"
)

// Store is the slice of the persistence layer memories need.
type Store interface {
	CreateMemory(ctx context.Context, category store.MemoryCategory, name, content string) (int64, error)
	UpdateMemory(ctx context.Context, id int64, u store.MemoryUpdate) error
	DeleteMemory(ctx context.Context, id int64) error
	ListMemories(ctx context.Context, order store.MemoryOrder) ([]store.Memory, error)
	ReplaceMemories(ctx context.Context, contents []string) (int, error)
	MemoriesForPrompt(ctx context.Context) (string, error)
}

// Service applies memory commands against a Store.
type Service struct {
	store  Store
	logger *zap.Logger
}

// NewService creates a Service.
func NewService(s Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: s, logger: logger}
}

// NameKey normalizes a memory name for comparison: NFC, then Unicode case
// folding, with surrounding space removed.
func NameKey(name string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(name)))
}

// Apply executes cmd and returns the confirmation shown in the chat.
func (s *Service) Apply(ctx context.Context, cmd Command) (string, error) {
	switch cmd.Action {
	case ActionRemember:
		fact := cmd.Fact()
		if _, err := s.store.CreateMemory(ctx, store.CategoryGeneral, cmd.Name, fact); err != nil {
			return "", fmt.Errorf("remember %q: %w", cmd.Name, err)
		}
		s.logger.Info("MEMORY_REMEMBERED", zap.String("name", cmd.Name))
		return "✓ I'll remember that " + fact + ".", nil

	case ActionForget:
		matches, err := s.matching(ctx, cmd.Name)
		if err != nil {
			return "", err
		}
		if len(matches) == 0 {
			return "I don't have any memories about " + cmd.Name + ".", nil
		}
		for _, m := range matches {
			if err := s.store.DeleteMemory(ctx, m.ID); err != nil {
				return "", fmt.Errorf("forget %q: %w", cmd.Name, err)
			}
		}
		s.logger.Info("MEMORY_FORGOTTEN", zap.String("name", cmd.Name), zap.Int("count", len(matches)))
		return fmt.Sprintf("✓ Forgot %d %s about %s.", len(matches), plural(len(matches), "memory", "memories"), cmd.Name), nil

	case ActionUpdate:
		fact := cmd.Fact()
		matches, err := s.matching(ctx, cmd.Name)
		if err != nil {
			return "", err
		}
		if len(matches) == 0 {
			if _, err := s.store.CreateMemory(ctx, store.CategoryGeneral, cmd.Name, fact); err != nil {
				return "", fmt.Errorf("update %q: %w", cmd.Name, err)
			}
			return "✓ I'll remember that " + fact + ".", nil
		}
		for _, m := range matches {
			if err := s.store.UpdateMemory(ctx, m.ID, store.MemoryUpdate{Content: &fact}); err != nil {
				return "", fmt.Errorf("update %q: %w", cmd.Name, err)
			}
		}
		s.logger.Info("MEMORY_UPDATED", zap.String("name", cmd.Name), zap.Int("count", len(matches)))
		return "✓ Updated: " + fact + ".", nil

	default:
		return "", fmt.Errorf("unknown memory action %q", cmd.Action)
	}
}

// ForPrompt returns the "- fact" lines for the system prompt.
func (s *Service) ForPrompt(ctx context.Context) (string, error) {
	return s.store.MemoriesForPrompt(ctx)
}

func (s *Service) matching(ctx context.Context, name string) ([]store.Memory, error) {
	all, err := s.store.ListMemories(ctx, store.OrderByCreated)
	if err != nil {
		return nil, err
	}
	key := NameKey(name)
	var out []store.Memory
	for _, m := range all {
		if NameKey(m.Name) == key {
			out = append(out, m)
		}
	}
	return out, nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
