package codexpc

import (
	"fmt"
	"strings"
)

// AppendResponse returns history extended with the items of a completed
// response, so the next prompt carries the model's turn.
func AppendResponse(history []ResponseItem, resp *Response) []ResponseItem {
	if resp == nil {
		return history
	}
	out := make([]ResponseItem, 0, len(history)+len(resp.Items))
	out = append(out, history...)
	out = append(out, resp.Items...)
	return out
}

// PendingToolCalls returns the tool calls in items that have no matching
// tool output yet, in order.
func PendingToolCalls(items []ResponseItem) []ResponseItem {
	answered := make(map[string]bool)
	for _, item := range items {
		if item.IsToolOutput() {
			answered[item.CallID] = true
		}
	}

	var pending []ResponseItem
	for _, item := range items {
		if item.IsToolCall() && !answered[item.CallID] {
			pending = append(pending, item)
		}
	}
	return pending
}

// ToolOutput builds the output item answering a tool call
func ToolOutput(call ResponseItem, output string) ResponseItem {
	return ResponseItem{
		Type:   ItemTypeCustomToolCallOutput,
		CallID: call.CallID,
		Output: output,
	}
}

// FormatTranscript flattens instructions and history into plain text for
// backends that take a single prompt string. Tool calls and their outputs
// become bracketed lines; image parts are dropped.
func FormatTranscript(instructions string, items []ResponseItem) string {
	var sb strings.Builder
	if instructions != "" {
		sb.WriteString(instructions)
		sb.WriteString("\n\n")
	}

	for _, item := range items {
		switch item.Type {
		case ItemTypeMessage:
			text := item.Text()
			if text == "" {
				continue
			}
			fmt.Fprintf(&sb, "%s: %s\n", item.Role, text)
		case ItemTypeCustomToolCall:
			fmt.Fprintf(&sb, "[tool call %s %s] %s\n", item.Name, item.CallID, item.Input)
		case ItemTypeCustomToolCallOutput:
			fmt.Fprintf(&sb, "[tool output %s] %s\n", item.CallID, item.Output)
		}
	}

	return strings.TrimSpace(sb.String())
}

// FormatToolResults formats tool output items into text for a synthetic user turn.
func FormatToolResults(items []ResponseItem) string {
	var outputs []ResponseItem
	for _, item := range items {
		if item.IsToolOutput() {
			outputs = append(outputs, item)
		}
	}
	if len(outputs) == 0 {
		return "No results found."
	}

	var sb strings.Builder
	sb.WriteString("Tool results:\n\n")
	for _, item := range outputs {
		fmt.Fprintf(&sb, "%s: %s\n\n", item.CallID, item.Output)
	}
	return strings.TrimSpace(sb.String())
}
