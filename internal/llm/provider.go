// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/jeranaias/instantcoffee/internal/config"
	"github.com/jeranaias/instantcoffee/internal/offline"
	"github.com/jeranaias/instantcoffee/internal/ollama"
)

// New builds the provider named by cfg.Provider. An empty provider means
// ollama. With cfg.Offline set, providers that would leave the machine are
// refused.
func New(cfg config.LLMConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("llm")

	baseURL := cfg.OllamaURL
	switch cfg.Provider {
	case "openai":
		baseURL = cfg.OpenAIURL
	case "anthropic":
		baseURL = ""
	}
	if err := (offline.Policy{Enabled: cfg.Offline}).CheckProvider(cfg.Provider, baseURL); err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case "", "ollama":
		client := ollama.NewClientWithConfig(&ollama.ClientConfig{
			BaseURL:       cfg.OllamaURL,
			Timeout:       cfg.RequestTimeout.Duration,
			HealthTimeout: cfg.HealthTimeout.Duration,
			DefaultModel:  cfg.Model,
		})
		return NewOllamaProvider(client, logger), nil

	case "openai":
		return NewOpenAIProvider(OpenAIOptions{
			BaseURL:   cfg.OpenAIURL,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		}, logger), nil

	case "anthropic":
		return NewAnthropicProvider(AnthropicOptions{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		}, logger), nil

	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
