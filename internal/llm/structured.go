// Package llm - structured.go builds prompts that ask for a fixed JSON shape.
package llm

import (
	"fmt"
	"strings"
)

// OutputSchema describes the JSON object an agent expects back from the model.
type OutputSchema struct {
	Name   string        // Schema name (e.g., "CategoryResult")
	Fields []SchemaField // Expected output fields
	Rules  []string      // Extra constraints appended to the instructions
}

// SchemaField defines a single field in the structured output.
type SchemaField struct {
	Name        string // JSON field name
	Type        string // Type hint rendered verbatim, e.g. "string" or `["string"]`
	Description string // Description for the LLM
	Required    bool   // Whether this field is required
}

// BuildStructuredPrompt combines a system preamble, the output contract and the input block.
func BuildStructuredPrompt(system string, schema OutputSchema, input string) string {
	var sb strings.Builder

	sb.WriteString(strings.TrimSpace(system))
	sb.WriteString("\n\n")

	sb.WriteString("Return ONLY valid JSON matching this exact structure:\n{\n")
	for i, field := range schema.Fields {
		typeHint := field.Type
		if typeHint == "" {
			typeHint = `"string"`
		}
		requiredHint := ""
		if field.Required {
			requiredHint = " (required)"
		}
		sb.WriteString(fmt.Sprintf("  %q: %s%s", field.Name, typeHint, requiredHint))
		if field.Description != "" {
			sb.WriteString(fmt.Sprintf(" // %s", field.Description))
		}
		if i < len(schema.Fields)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}\n\n")

	sb.WriteString("IMPORTANT:\n")
	for _, rule := range schema.Rules {
		sb.WriteString("- ")
		sb.WriteString(rule)
		sb.WriteString("\n")
	}
	sb.WriteString("- Return ONLY the JSON object, no markdown, no explanation, no code blocks.\n\n")

	sb.WriteString("Input:\n\"\"\"\n")
	sb.WriteString(strings.TrimSpace(input))
	sb.WriteString("\n\"\"\"\n")

	return sb.String()
}
