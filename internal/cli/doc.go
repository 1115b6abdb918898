// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the instantcoffee command line.
//
// Commands:
//
//	serve                      Run the HTTP and WebSocket API
//	render [file]              Render Mermaid or D2 to SVG (--watch to follow edits)
//	chat <id|new> <message>    Send one message through the chat pipeline
//	sessions list|show|rename|delete|diff|export
//	memories list|add|forget|consolidate
//	health                     Check the LLM, renderers and database
//	config [--init [--force]]  Print the effective configuration, or write the default
//
// Every command accepts --config, --verbose and --json. Under --json the
// result is wrapped in a JSONResponse envelope, errors included. Failures
// map to the exit codes in errors.go.
//
// On a terminal, output is styled with lipgloss and assistant replies are
// rendered as markdown. NO_COLOR turns colors off. Pipes get plain text.
package cli
