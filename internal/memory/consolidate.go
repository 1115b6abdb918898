// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/instantcoffee/internal/config"
	"github.com/jeranaias/instantcoffee/internal/llm"
	"github.com/jeranaias/instantcoffee/internal/store"
	"github.com/jeranaias/instantcoffee/internal/telemetry"
)

// Consolidation errors.
var (
	ErrNoMemories           = errors.New("no memories to consolidate")
	ErrInvalidConsolidation = errors.New("Invalid consolidation response format - expected non-empty array")
	ErrUnparseable          = errors.New("Failed to parse consolidation response from AI. The AI may not have returned valid JSON.")
	ErrConsolidationTimeout = errors.New("Request timed out after 2 minutes. This usually means Ollama is taking too long to process your memories. Try:\n" +
		"1. Check if Ollama is running (ollama serve)\n" +
		"2. Use a faster model\n" +
		"3. Reduce the number of memories before consolidating")
)

// ConsolidationPrompt is the system instruction for consolidation.
const ConsolidationPrompt = `You are a memory consolidation assistant. Consolidate memories by:
1. Removing duplicates
2. Keeping the LATEST version when there are contradictions (memories are in chronological order)
3. Keeping each fact atomic and separate
4. Removing trivial information

Return ONLY a valid JSON array of strings. Example: ["fact 1", "fact 2", "fact 3"]`

var jsonArrayRe = regexp.MustCompile(`\[[\s\S]*\]`)

// Result reports the memory count before and after a run.
type Result struct {
	Before int `json:"before"`
	After  int `json:"after"`
}

// Consolidator asks the model to merge duplicate and stale memories.
type Consolidator struct {
	store    Store
	provider llm.Provider
	model    string
	cfg      config.MemoryConfig
	logger   *zap.Logger
	recorder telemetry.Recorder
}

// NewConsolidator creates a Consolidator. Zero fields in cfg take the
// defaults (120s, temperature 0.3, num_ctx 8192, num_predict 4096).
func NewConsolidator(s Store, p llm.Provider, model string, cfg config.MemoryConfig, logger *zap.Logger, recorder telemetry.Recorder) *Consolidator {
	d := config.Default().Memory
	if cfg.ConsolidationTimeout.Duration <= 0 {
		cfg.ConsolidationTimeout = d.ConsolidationTimeout
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = d.Temperature
	}
	if cfg.NumCtx <= 0 {
		cfg.NumCtx = d.NumCtx
	}
	if cfg.NumPredict <= 0 {
		cfg.NumPredict = d.NumPredict
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consolidator{
		store:    s,
		provider: p,
		model:    model,
		cfg:      cfg,
		logger:   logger,
		recorder: telemetry.OrNoop(recorder),
	}
}

// UserPrompt lists the memories oldest first as the consolidation request.
func UserPrompt(memories []store.Memory) string {
	contents := make([]string, len(memories))
	for i, m := range memories {
		contents[i] = m.Content
	}
	return "Consolidate these " + strconv.Itoa(len(memories)) +
		" memories (oldest to newest). Remove duplicates, keep latest info for contradictions:\n\n- " +
		strings.Join(contents, "\n- ") +
		"\n\nReturn valid JSON array only:"
}

// ParseResponse pulls the JSON string array out of a model reply.
// Non-string and blank entries are dropped.
func ParseResponse(content string) ([]string, error) {
	raw := content
	if m := jsonArrayRe.FindString(content); m != "" {
		raw = m
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, ErrUnparseable
	}
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return nil, ErrInvalidConsolidation
	}

	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out, nil
}

// Propose returns the consolidated facts for memories without touching
// the store.
func (c *Consolidator) Propose(ctx context.Context, memories []store.Memory) ([]string, error) {
	if len(memories) == 0 {
		return nil, ErrNoMemories
	}

	sorted := append([]store.Memory(nil), memories...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt < sorted[j].CreatedAt })

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConsolidationTimeout.Duration)
	defer cancel()

	start := time.Now()
	content, err := c.provider.Complete(ctx, c.model, []llm.Message{
		llm.SystemMessage(ConsolidationPrompt),
		llm.UserMessage(UserPrompt(sorted)),
	}, llm.Options{
		Temperature: c.cfg.Temperature,
		NumCtx:      c.cfg.NumCtx,
		NumPredict:  c.cfg.NumPredict,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrConsolidationTimeout
		}
		return nil, err
	}

	c.logger.Debug("CONSOLIDATION_RESPONSE",
		zap.Int("memories", len(sorted)),
		zap.Int("content_len", len(content)),
		zap.Duration("duration", time.Since(start)))
	return ParseResponse(content)
}

// Consolidate replaces every stored memory with the model's consolidated
// list. With no memories it does nothing and returns a zero Result.
func (c *Consolidator) Consolidate(ctx context.Context) (Result, error) {
	memories, err := c.store.ListMemories(ctx, store.OrderByCreated)
	if err != nil {
		return Result{}, fmt.Errorf("list memories: %w", err)
	}
	if len(memories) == 0 {
		c.logger.Debug("CONSOLIDATION_SKIPPED")
		return Result{}, nil
	}

	facts, err := c.Propose(ctx, memories)
	if err == nil && len(facts) == 0 {
		err = ErrInvalidConsolidation
	}
	if err != nil {
		c.recorder.RecordConsolidation(ctx, len(memories), len(memories), err)
		c.logger.Warn("CONSOLIDATION_FAILED", zap.Error(err))
		return Result{Before: len(memories), After: len(memories)}, err
	}

	after, err := c.store.ReplaceMemories(ctx, facts)
	c.recorder.RecordConsolidation(ctx, len(memories), after, err)
	if err != nil {
		return Result{Before: len(memories), After: len(memories)}, fmt.Errorf("replace memories: %w", err)
	}

	c.logger.Info("CONSOLIDATION_COMPLETE", zap.Int("before", len(memories)), zap.Int("after", after))
	return Result{Before: len(memories), After: after}, nil
}
