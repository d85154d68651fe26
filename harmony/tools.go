package harmony

import (
	"encoding/json"
	"fmt"
	"strings"

	codexpc "github.com/haowjy/codexpc-go"
)

// ToolDescription renders the manifest as the developer-turn text used in
// ToolsAsText mode.
func ToolDescription(tools []codexpc.Tool) string {
	names := make([]string, 0, len(tools))
	schemas := make([]string, 0, len(tools))
	for i := range tools {
		name := tools[i].Function.Name
		names = append(names, name)
		schemas = append(schemas, fmt.Sprintf("%s: %s", name, schemaString(tools[i].Function.Parameters)))
	}
	return fmt.Sprintf(
		"Available tools: %s. Schemas: %s. To call a tool, set the recipient to the tool name and provide JSON arguments in commentary channel.",
		strings.Join(names, ", "),
		strings.Join(schemas, "; "),
	)
}

// ToolsJSON renders the manifest passed to the daemon as tools_json.
// Returns nil when there are no tools.
func ToolsJSON(tools []codexpc.Tool) *string {
	if len(tools) == 0 {
		return nil
	}
	b, err := json.Marshal(tools)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}

// namespaceText renders a tools part as the Harmony developer-message
// namespace block used when the conversation is tokenized locally.
func namespaceText(p Part) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Tools\n\n## %s\n\nnamespace %s {\n\n", p.Namespace, p.Namespace)
	for _, t := range p.Tools {
		if t.Description != "" {
			fmt.Fprintf(&sb, "// %s\n", t.Description)
		}
		fmt.Fprintf(&sb, "type %s = (_: %s) => any;\n\n", t.Name, schemaString(t.Parameters))
	}
	fmt.Fprintf(&sb, "} // namespace %s", p.Namespace)
	return sb.String()
}

func schemaString(params map[string]interface{}) string {
	if params == nil {
		return "{}"
	}
	b, err := json.Marshal(params)
	if err != nil {
		return "{}"
	}
	return string(b)
}
