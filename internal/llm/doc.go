// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm puts Ollama, OpenAI-compatible endpoints and Anthropic behind
// one Provider interface.
//
// Providers stream content deltas to a callback and return the final text
// together with any tool calls the model made. Tool calls are normalized to
// a name plus a JSON-encoded argument object regardless of how the backend
// encodes them on the wire.
//
// Usage:
//
//	p, err := llm.New(cfg.LLM, logger)
//	res, err := p.StreamChat(ctx, "", msgs, tools, func(d string) { fmt.Print(d) })
//	if err != nil {
//	    fmt.Println(llm.FormatError(err))
//	}
package llm
