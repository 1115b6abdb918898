// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with Ollama API.
//
// This package implements a client for a local Ollama server, supporting
// streaming and non-streaming chat completions with tool calling. It is the
// wire layer beneath internal/llm, which adapts it to the provider interface
// used by the chat orchestrator.
//
// # Key Types
//
//   - Client: HTTP client for Ollama API communication
//   - Message: Chat message with role, content, tool calls and tool name
//   - ToolArguments: tool-call arguments, decoded from an object or a string
//   - StreamReader: NDJSON line reader for /api/chat streams
//   - StreamAccumulator: collects content and tool calls across chunks
//
// # Usage
//
//	client := ollama.NewClientWithConfig(&ollama.ClientConfig{BaseURL: "http://localhost:11434"})
//	acc := ollama.NewStreamAccumulator()
//	err := client.ChatStreamWithTools(ctx, "gpt-oss:20b", messages, tools, acc.Add)
//	if err != nil {
//	    return err
//	}
//	for _, tc := range acc.ToolCalls() {
//	    fmt.Println(tc.Function.Name, tc.Function.Arguments.JSON())
//	}
//
// # Errors
//
// Failures are returned as *ClientError. Use errors.Is with ErrNotRunning,
// ErrTimeout or ErrModelNotFound, or the IsNotRunning/IsTimeout/IsModelNotFound
// helpers.
package ollama
