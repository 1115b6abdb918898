// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"

	"github.com/jeranaias/instantcoffee/internal/config"
	"github.com/jeranaias/instantcoffee/internal/ollama"
	"github.com/jeranaias/instantcoffee/internal/render"
	"github.com/jeranaias/instantcoffee/internal/store"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitNetworkError  = 5
	ExitNotFoundError = 7
	ExitTimeoutError  = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError pins an exit code to an error.
type CommandError struct {
	Code int
	Err  error
}

func (e *CommandError) Error() string { return e.Err.Error() }

func (e *CommandError) Unwrap() error { return e.Err }

// usageError reports bad arguments.
func usageError(err error) error {
	return &CommandError{Code: ExitUsageError, Err: err}
}

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code
	}
	var validation config.ValidateErrors
	switch {
	case errors.As(err, &validation):
		return ExitConfigError
	case errors.Is(err, store.ErrNotFound):
		return ExitNotFoundError
	case ollama.IsNotRunning(err), errors.Is(err, render.ErrRendererUnavailable):
		return ExitNetworkError
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, render.ErrTimeout), ollama.IsTimeout(err):
		return ExitTimeoutError
	default:
		return ExitGeneralError
	}
}
