// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package diagram

import "strings"

type promptVars struct {
	docs     string
	kinds    []string
	examples []string
}

var dialectPrompts = map[Dialect]promptVars{
	Mermaid: {
		docs: "https://mermaid.js.org/intro/",
		kinds: []string{
			"Sequence diagrams (showing interactions between actors/components)",
			"ERD (Entity-Relationship Diagrams)",
			"Flowcharts (process flows, decision trees)",
			"Architecture diagrams (system components, data flow)",
			"Class diagrams",
			"State diagrams",
			"Pie charts",
		},
		examples: []string{
			`"add a user approval step" → Add new node connected to existing flow`,
			`"make the arrows thicker" → Add style attribute to connections`,
			`"change the color of server to red" → Modify node style`,
			`"add another database" → Add new node and connection`,
		},
	},
	D2: {
		docs: "https://d2lang.com/tour/intro",
		kinds: []string{
			"Architecture diagrams (services, networks, data flow)",
			"Sequence diagrams (shape: sequence_diagram)",
			"SQL tables and entity relationships (shape: sql_table)",
			"Flowcharts (process flows, decision trees)",
			"Class diagrams (shape: class)",
			"Grid and container layouts",
		},
		examples: []string{
			`"add a cache between api and db" → Add a new shape and reconnect the edges`,
			`"group the workers" → Wrap the worker shapes in a container`,
			`"make the database a cylinder" → Set shape: cylinder on the node`,
			`"color the gateway red" → Add style.fill to the node`,
		},
	},
}

// SystemPrompt is the assistant instruction for d. Callers append the
// current diagram and memories.
func SystemPrompt(d Dialect) string {
	v, ok := dialectPrompts[d]
	if !ok {
		d = Mermaid
		v = dialectPrompts[Mermaid]
	}
	lang := d.Title()
	fence := "```" + d.String()

	var b strings.Builder
	b.WriteString("You are a " + lang + " diagram generation assistant. Your role is to help users create diagrams by generating " + lang + " code based on their descriptions.\n\n")

	b.WriteString("You can generate the following types of diagrams:\n")
	for _, k := range v.kinds {
		b.WriteString("- " + k + "\n")
	}

	b.WriteString("\nTOOL USE:\n")
	b.WriteString("- Use the '" + ToolName + "' tool when the user wants to create or modify a " + lang + " diagram\n")
	b.WriteString("- Do NOT use the tool if the user is just asking a question, making small talk, or not requesting any diagram changes\n")
	b.WriteString("- When using the tool, provide the COMPLETE updated diagram code, not just the changes\n")
	b.WriteString("- After using the tool, you can provide additional text explanation to the user\n")

	b.WriteString("\nITERATIVE REFINEMENT:\n")
	b.WriteString("When user requests changes to an existing diagram (e.g., 'add a node', 'make it bigger', 'change color to blue', 'move the arrow'), you must MODIFY the CURRENT DIAGRAM below, not create a new one from scratch.\n\n")
	b.WriteString("Examples of iterative changes:\n")
	for _, e := range v.examples {
		b.WriteString("- " + e + "\n")
	}

	b.WriteString("\nCRITICAL: Always output ONLY the modified " + lang + " code. Do NOT explain what changed. The user wants to see the result, not a description of changes.\n\n")

	b.WriteString("When generating diagrams:\n")
	b.WriteString("1. Use proper " + lang + " syntax: " + v.docs + "\n")
	b.WriteString("2. Always wrap " + lang + " code in markdown code blocks with the '" + d.String() + "' language identifier\n")
	b.WriteString("3. Keep diagrams clear and readable\n\n")

	b.WriteString("Format your response like this:\n")
	b.WriteString(fence + "\n# Your " + lang + " code here\n```\n\n")
	b.WriteString("If the user asks to modify an existing diagram, output the complete modified " + lang + " code (not just the changes).")
	return b.String()
}

// CodeBlock fences src for d.
func CodeBlock(d Dialect, src string) string {
	return "```" + d.String() + "\n" + src + "\n```"
}
