// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/jeranaias/instantcoffee/internal/ollama"
)

// User-facing error texts.
const (
	MsgCannotConnect = "Cannot connect to Ollama. Please ensure Ollama is running on your system."
	MsgTimeout       = "Request timed out. Ollama may be taking too long to respond."
	MsgModelNotFound = "Model not found. Please ensure the model is installed."
	MsgRateLimited   = "Rate limit exceeded. Please wait a moment and try again."
	MsgUnknown       = "An unknown error occurred"
)

// FormatError turns a provider error into a message fit for the chat panel.
// Unrecognized errors are returned verbatim.
func FormatError(err error) string {
	if err == nil {
		return MsgUnknown
	}

	switch {
	case ollama.IsNotRunning(err):
		return MsgCannotConnect
	case ollama.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return MsgTimeout
	case ollama.IsModelNotFound(err):
		return MsgModelNotFound
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case containsAny(lower, "connection refused", "fetch failed", "econnrefused", "no such host"):
		return MsgCannotConnect
	case containsAny(lower, "timeout", "timed out", "deadline", "abort"):
		return MsgTimeout
	case strings.Contains(lower, "not found"):
		return MsgModelNotFound
	case containsAny(lower, "rate limit", "too many requests"):
		return MsgRateLimited
	}
	return msg
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
