// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package diagram

import (
	"encoding/json"

	"github.com/jeranaias/instantcoffee/internal/llm"
)

// ToolName is the function the model calls to replace the diagram.
const ToolName = "update_diagram"

// ToolArgument is the name of the code argument for d.
func ToolArgument(d Dialect) string {
	if d == D2 {
		return "d2_code"
	}
	return "mermaid_code"
}

// UpdateTool returns the update_diagram definition for d.
func UpdateTool(d Dialect) llm.Tool {
	arg := ToolArgument(d)
	return llm.Tool{
		Name: ToolName,
		Description: "Update the " + d.Title() + " diagram with new content. " +
			"Use this when the user wants to create or modify a diagram. " +
			"If the user is just asking a question without requesting a diagram change, do NOT call this tool.",
		Parameters: map[string]any{
			arg: map[string]any{
				"type":        "string",
				"description": "The complete " + d.Title() + " diagram code to render",
			},
		},
		Required: []string{arg},
	}
}

// CodeFromArguments reads the code argument from a JSON object. Malformed
// input and non-string values give "".
func CodeFromArguments(d Dialect, arguments string) string {
	var args map[string]any
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return ""
	}
	code, _ := args[ToolArgument(d)].(string)
	return code
}

// ToolResult is the JSON content returned to the model after a successful
// update.
func ToolResult(d Dialect, code string) string {
	data, err := json.Marshal(map[string]any{
		"success":       true,
		ToolArgument(d): code,
	})
	if err != nil {
		return `{"success":true}`
	}
	return string(data)
}
