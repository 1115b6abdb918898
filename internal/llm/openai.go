// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

// OpenAIProvider speaks the OpenAI chat completions protocol. BaseURL may
// point at any compatible server, Ollama's /v1 included.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
	maxTokens    int64
	logger       *zap.Logger
}

// OpenAIOptions configures NewOpenAIProvider.
type OpenAIOptions struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int

	// MaxRetries overrides the SDK's retry count when positive; negative
	// disables retries.
	MaxRetries int
}

// NewOpenAIProvider builds a provider from opts.
func NewOpenAIProvider(opts OpenAIOptions, logger *zap.Logger) *OpenAIProvider {
	if logger == nil {
		logger = zap.NewNop()
	}

	var clientOpts []option.RequestOption
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	// Local servers ignore the key but the SDK insists on one.
	key := opts.APIKey
	if key == "" {
		key = "ollama"
	}
	clientOpts = append(clientOpts, option.WithAPIKey(key))
	switch {
	case opts.MaxRetries > 0:
		clientOpts = append(clientOpts, option.WithMaxRetries(opts.MaxRetries))
	case opts.MaxRetries < 0:
		clientOpts = append(clientOpts, option.WithMaxRetries(0))
	}

	client := openai.NewClient(clientOpts...)
	return &OpenAIProvider{
		client:       &client,
		defaultModel: opts.Model,
		maxTokens:    int64(opts.MaxTokens),
		logger:       logger,
	}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return "openai" }

// StreamChat implements Provider. Tool-call fragments are merged by the
// SDK's ChatCompletionAccumulator.
func (p *OpenAIProvider) StreamChat(ctx context.Context, model string, msgs []Message, tools []Tool, onChunk ChunkFunc) (Result, error) {
	params := p.params(model, msgs)
	params.Tools = toOpenAITools(tools)

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		ck := stream.Current()
		if !acc.AddChunk(ck) {
			p.logger.Debug("OPENAI_CHUNK_SKIPPED", zap.String("chunk_id", ck.ID))
			continue
		}
		for _, ch := range ck.Choices {
			if ch.Delta.Content != "" && onChunk != nil {
				onChunk(ch.Delta.Content)
			}
		}
		if tc, ok := acc.JustFinishedToolCall(); ok {
			p.logger.Debug("OPENAI_TOOL_CALL", zap.String("name", tc.Name), zap.Int("index", tc.Index))
		}
	}

	var res Result
	if len(acc.Choices) > 0 {
		msg := acc.Choices[0].Message
		res.Content = msg.Content
		for _, tc := range msg.ToolCalls {
			args := tc.Function.Arguments
			if args == "" {
				args = "{}"
			}
			res.ToolCalls = append(res.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
		}
	}
	if err := stream.Err(); err != nil {
		return res, fmt.Errorf("openai stream: %w", err)
	}

	p.logger.Debug("OPENAI_STREAM_COMPLETE",
		zap.Int("content_len", len(res.Content)),
		zap.Int("tool_calls", len(res.ToolCalls)),
		zap.Int64("completion_tokens", acc.Usage.CompletionTokens))
	return res, nil
}

// Complete implements Provider. NumCtx has no equivalent and is ignored.
func (p *OpenAIProvider) Complete(ctx context.Context, model string, msgs []Message, opts Options) (string, error) {
	params := p.params(model, msgs)
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}
	if opts.NumPredict > 0 {
		params.MaxCompletionTokens = openai.Int(int64(opts.NumPredict))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai completion: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// Health implements Provider by listing models.
func (p *OpenAIProvider) Health(ctx context.Context) error {
	_, err := p.Models(ctx)
	return err
}

// Models implements Provider.
func (p *OpenAIProvider) Models(ctx context.Context) ([]string, error) {
	page, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("openai models: %w", err)
	}
	names := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		names = append(names, m.ID)
	}
	return names, nil
}

func (p *OpenAIProvider) params(model string, msgs []Message) openai.ChatCompletionNewParams {
	if model == "" {
		model = p.defaultModel
	}
	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: toOpenAIMessages(msgs),
	}
	if p.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(p.maxTokens)
	}
	return params
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		case RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			asst := &openai.ChatCompletionAssistantMessageParam{Role: "assistant"}
			if m.Content != "" {
				asst.Content.OfString = openai.String(m.Content)
			}
			for _, tc := range m.ToolCalls {
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: asst})
		}
	}
	return out
}

func toOpenAITools(tools []Tool) []openai.ChatCompletionToolParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  openai.FunctionParameters(t.Schema()),
			},
		})
	}
	return out
}
