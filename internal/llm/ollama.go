// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/instantcoffee/internal/ollama"
)

// OllamaProvider talks to a local Ollama daemon over its native /api/chat.
type OllamaProvider struct {
	client *ollama.Client
	logger *zap.Logger
}

// NewOllamaProvider wraps client.
func NewOllamaProvider(client *ollama.Client, logger *zap.Logger) *OllamaProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OllamaProvider{client: client, logger: logger}
}

// Name implements Provider.
func (p *OllamaProvider) Name() string { return "ollama" }

// Client exposes the wire client.
func (p *OllamaProvider) Client() *ollama.Client { return p.client }

// StreamChat implements Provider. Ollama has no call IDs, so each call is
// given a positional one.
func (p *OllamaProvider) StreamChat(ctx context.Context, model string, msgs []Message, tools []Tool, onChunk ChunkFunc) (Result, error) {
	start := time.Now()
	acc := ollama.NewStreamAccumulator()

	err := p.client.ChatStreamWithTools(ctx, model, toOllamaMessages(msgs), toOllamaTools(tools), func(c ollama.StreamChunk) {
		acc.Add(c)
		if c.Content != "" && onChunk != nil {
			onChunk(c.Content)
		}
	})
	if err != nil {
		return Result{Content: acc.Content()}, err
	}

	res := Result{Content: acc.Content()}
	for i, tc := range acc.ToolCalls() {
		res.ToolCalls = append(res.ToolCalls, ToolCall{
			ID:        fmt.Sprintf("call_%d", i),
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments.JSON(),
		})
	}

	p.logger.Debug("OLLAMA_STREAM_COMPLETE",
		zap.Int("content_len", len(res.Content)),
		zap.Int("tool_calls", len(res.ToolCalls)),
		zap.Int("prompt_tokens", acc.PromptTokens),
		zap.Int("completion_tokens", acc.CompletionTokens),
		zap.Float64("tokens_per_sec", acc.TokensPerSecond()),
		zap.Duration("duration", time.Since(start)))
	return res, nil
}

// Complete implements Provider with stream:false.
func (p *OllamaProvider) Complete(ctx context.Context, model string, msgs []Message, opts Options) (string, error) {
	resp, err := p.client.ChatWithOptions(ctx, model, toOllamaMessages(msgs), &ollama.Options{
		Temperature: opts.Temperature,
		NumCtx:      opts.NumCtx,
		NumPredict:  opts.NumPredict,
	})
	if err != nil {
		return "", err
	}
	p.logger.Debug("OLLAMA_COMPLETE",
		zap.Int("completion_tokens", resp.EvalCount),
		zap.Float64("tokens_per_sec", resp.TokensPerSecond()))
	return resp.Message.Content, nil
}

// Health implements Provider.
func (p *OllamaProvider) Health(ctx context.Context) error {
	return p.client.CheckRunning(ctx)
}

// Models implements Provider.
func (p *OllamaProvider) Models(ctx context.Context) ([]string, error) {
	infos, err := p.client.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, m := range infos {
		names = append(names, m.Name)
	}
	return names, nil
}

func toOllamaMessages(msgs []Message) []ollama.Message {
	out := make([]ollama.Message, 0, len(msgs))
	for _, m := range msgs {
		om := ollama.Message{Role: m.Role, Content: m.Content}
		if m.Role == RoleTool {
			om.ToolName = m.ToolName
		}
		for _, tc := range m.ToolCalls {
			var args ollama.ToolArguments
			if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
				args = ollama.ToolArguments{}
			}
			om.ToolCalls = append(om.ToolCalls, ollama.ToolCall{
				Function: ollama.ToolFunction{Name: tc.Name, Arguments: args},
			})
		}
		out = append(out, om)
	}
	return out
}

func toOllamaTools(tools []Tool) []ollama.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]ollama.Tool, 0, len(tools))
	for _, t := range tools {
		props := make(map[string]ollama.ToolProperty, len(t.Parameters))
		for name, raw := range t.Parameters {
			var prop ollama.ToolProperty
			if m, ok := raw.(map[string]any); ok {
				prop.Type, _ = m["type"].(string)
				prop.Description, _ = m["description"].(string)
				switch enum := m["enum"].(type) {
				case []string:
					prop.Enum = enum
				case []any:
					for _, e := range enum {
						if s, ok := e.(string); ok {
							prop.Enum = append(prop.Enum, s)
						}
					}
				}
			}
			if prop.Type == "" {
				prop.Type = "string"
			}
			props[name] = prop
		}
		out = append(out, ollama.Tool{
			Type: "function",
			Function: ollama.ToolSchema{
				Name:        t.Name,
				Description: t.Description,
				Parameters: ollama.ToolParameters{
					Type:       "object",
					Properties: props,
					Required:   t.Required,
				},
			},
		})
	}
	return out
}
