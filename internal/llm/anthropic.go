// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"go.uber.org/zap"
)

// DefaultAnthropicModel is used when neither the request nor the config
// names a model.
const DefaultAnthropicModel = "claude-3-5-sonnet-latest"

// AnthropicProvider calls the Anthropic Messages API. Replies are fetched
// whole and delivered to the chunk callback in one piece.
type AnthropicProvider struct {
	client       *anthropic.Client
	defaultModel string
	maxTokens    int64
	apiKey       string
	logger       *zap.Logger
}

// AnthropicOptions configures NewAnthropicProvider.
type AnthropicOptions struct {
	APIKey    string
	Model     string
	MaxTokens int

	// BaseURL overrides the API endpoint, mostly for tests.
	BaseURL string
}

// NewAnthropicProvider builds a provider from opts.
func NewAnthropicProvider(opts AnthropicOptions, logger *zap.Logger) *AnthropicProvider {
	if logger == nil {
		logger = zap.NewNop()
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	model := opts.Model
	if model == "" {
		model = DefaultAnthropicModel
	}

	client := anthropic.NewClient(clientOpts...)
	return &AnthropicProvider{
		client:       &client,
		defaultModel: model,
		maxTokens:    maxTokens,
		apiKey:       opts.APIKey,
		logger:       logger,
	}
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// StreamChat implements Provider without incremental streaming.
func (p *AnthropicProvider) StreamChat(ctx context.Context, model string, msgs []Message, tools []Tool, onChunk ChunkFunc) (Result, error) {
	params := p.params(model, msgs)
	params.Tools = toAnthropicTools(tools)
	return p.send(ctx, params, onChunk)
}

func (p *AnthropicProvider) send(ctx context.Context, params anthropic.MessageNewParams, onChunk ChunkFunc) (Result, error) {
	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("anthropic api error: %w", err)
	}

	var res Result
	var text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.AsText().Text)
		case "tool_use":
			tu := block.AsToolUse()
			args := "{}"
			if tu.Input != nil {
				if b, err := json.Marshal(tu.Input); err == nil {
					args = string(b)
				}
			}
			res.ToolCalls = append(res.ToolCalls, ToolCall{ID: tu.ID, Name: tu.Name, Arguments: args})
		}
	}
	res.Content = text.String()
	if res.Content != "" && onChunk != nil {
		onChunk(res.Content)
	}

	p.logger.Debug("ANTHROPIC_MESSAGE_COMPLETE",
		zap.String("stop_reason", string(resp.StopReason)),
		zap.Int("content_len", len(res.Content)),
		zap.Int("tool_calls", len(res.ToolCalls)))
	return res, nil
}

// Complete implements Provider. NumCtx is ignored; NumPredict caps tokens.
func (p *AnthropicProvider) Complete(ctx context.Context, model string, msgs []Message, opts Options) (string, error) {
	params := p.params(model, msgs)
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}
	if opts.NumPredict > 0 {
		params.MaxTokens = int64(opts.NumPredict)
	}

	res, err := p.send(ctx, params, nil)
	if err != nil {
		return "", err
	}
	return res.Content, nil
}

// Health implements Provider. Without a key every request fails, so that
// is the only thing checked locally.
func (p *AnthropicProvider) Health(ctx context.Context) error {
	if p.apiKey == "" {
		return errors.New("anthropic: no API key configured")
	}
	return ctx.Err()
}

// Models implements Provider with the configured model only.
func (p *AnthropicProvider) Models(ctx context.Context) ([]string, error) {
	return []string{p.defaultModel}, nil
}

func (p *AnthropicProvider) params(model string, msgs []Message) anthropic.MessageNewParams {
	if model == "" {
		model = p.defaultModel
	}
	system, rest := splitSystem(msgs)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  toAnthropicMessages(rest),
		MaxTokens: p.maxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}

// toAnthropicMessages maps the conversation. Consecutive tool results are
// grouped into one user turn, which is where the API expects them.
func toAnthropicMessages(msgs []Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	var results []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(results) > 0 {
			out = append(out, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, m := range msgs {
		if m.Role == RoleTool {
			results = append(results, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))
			continue
		}
		flush()

		switch m.Role {
		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any = map[string]any{}
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
						input = tc.Arguments
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		default:
			if m.Content != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			}
		}
	}
	flush()
	return out
}

func toAnthropicTools(tools []Tool) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := anthropic.ToolInputSchemaParam{
			Type:       constant.Object("object"),
			Properties: t.Parameters,
			Required:   t.Required,
		}
		tool := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if tool.OfTool != nil && t.Description != "" {
			tool.OfTool.Description = anthropic.String(t.Description)
		}
		out = append(out, tool)
	}
	return out
}
