package tool

import (
	"fmt"
	"strings"
)

// FormatSystemPrompt renders the tool-calling instructions injected as the
// system prompt when tools are enabled for a generation.
func FormatSystemPrompt(defs []Definition) string {
	var b strings.Builder
	b.WriteString("You have access to the following tools:\n\n")

	for _, def := range defs {
		fmt.Fprintf(&b, "- %s: %s\n", def.Name, def.Description)
		for _, p := range def.Params {
			req := "optional"
			if p.Required {
				req = "required"
			}
			fmt.Fprintf(&b, "    %s (%s, %s): %s\n", p.Name, p.Type, req, p.Description)
		}
	}

	b.WriteString(`
To call a tool, respond with a JSON code block:

` + "```json" + `
{"tool": "<name>", "arguments": {"<param>": "<value>"}}
` + "```" + `

Call a tool only when it is needed to answer. After the tool result is
provided, answer the user's question using it. If no tool is needed,
answer directly.`)

	return b.String()
}

// FormatResults renders executed tool results as the follow-up prompt sent
// back to the model.
func FormatResults(results []Result) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if r.Error != "" {
			fmt.Fprintf(&b, "Tool %s failed: %s", r.Name, r.Error)
			continue
		}
		fmt.Fprintf(&b, "Tool %s returned:\n%s", r.Name, r.Content)
	}
	return b.String()
}
