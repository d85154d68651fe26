package codexpc

import "strings"

// Role constants for conversation turns
const (
	RoleSystem    = "system"
	RoleDeveloper = "developer"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Content part type constants
const (
	ContentTypeInputText  = "input_text"
	ContentTypeOutputText = "output_text"
	ContentTypeInputImage = "input_image"
)

// Response item type constants
const (
	ItemTypeMessage              = "message"
	ItemTypeCustomToolCall       = "custom_tool_call"
	ItemTypeCustomToolCallOutput = "custom_tool_call_output"
)

// ContentPart is one ordered piece of a message.
//
// Text parts (input_text, output_text) carry Text.
// Image parts (input_image) carry ImageURL as an opaque reference; the
// encoder forwards it untouched and never fetches it.
type ContentPart struct {
	// Type is one of ContentTypeInputText, ContentTypeOutputText, ContentTypeInputImage
	Type string `json:"type"`

	// Text is set for text parts
	Text string `json:"text,omitempty"`

	// ImageURL is set for image parts (data: URL or remote URL)
	ImageURL string `json:"image_url,omitempty"`
}

// IsText returns true if this part carries text
func (p ContentPart) IsText() bool {
	return p.Type == ContentTypeInputText || p.Type == ContentTypeOutputText
}

// IsImage returns true if this part is an image reference
func (p ContentPart) IsImage() bool {
	return p.Type == ContentTypeInputImage
}

// ResponseItem is one unit of conversation history, either supplied by the
// caller as prompt input or reassembled from the daemon's stream.
//
// Item types and the fields they use:
//   - message: Role, Content
//   - custom_tool_call: ID (optional), Status (optional), CallID, Name, Input
//   - custom_tool_call_output: CallID, Output
type ResponseItem struct {
	// Type is one of ItemTypeMessage, ItemTypeCustomToolCall, ItemTypeCustomToolCallOutput
	Type string `json:"type"`

	// ID is the provider item id (nil when the daemon does not assign one)
	ID *string `json:"id,omitempty"`

	// Role is set for message items
	Role string `json:"role,omitempty"`

	// Content is set for message items
	Content []ContentPart `json:"content,omitempty"`

	// Status is the tool call status reported by the daemon (nil if empty)
	Status *string `json:"status,omitempty"`

	// CallID links a tool call to its output
	CallID string `json:"call_id,omitempty"`

	// Name is the tool name for tool call items
	Name string `json:"name,omitempty"`

	// Input is the raw tool arguments (usually JSON) for tool call items
	Input string `json:"input,omitempty"`

	// Output is the raw tool output for tool output items
	Output string `json:"output,omitempty"`
}

// IsMessage returns true if this item is a conversation message
func (i *ResponseItem) IsMessage() bool {
	return i.Type == ItemTypeMessage
}

// IsToolCall returns true if this item is a tool invocation
func (i *ResponseItem) IsToolCall() bool {
	return i.Type == ItemTypeCustomToolCall
}

// IsToolOutput returns true if this item is a tool result
func (i *ResponseItem) IsToolOutput() bool {
	return i.Type == ItemTypeCustomToolCallOutput
}

// Text concatenates the text parts of a message item in order.
// Non-message items return the empty string.
func (i *ResponseItem) Text() string {
	if !i.IsMessage() {
		return ""
	}
	var b strings.Builder
	for _, part := range i.Content {
		if part.IsText() {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

// UserMessage builds a user message item with a single text part.
func UserMessage(text string) ResponseItem {
	return ResponseItem{
		Type:    ItemTypeMessage,
		Role:    RoleUser,
		Content: []ContentPart{{Type: ContentTypeInputText, Text: text}},
	}
}

// AssistantMessage builds an assistant message item with a single output text part.
func AssistantMessage(text string) ResponseItem {
	return ResponseItem{
		Type:    ItemTypeMessage,
		Role:    RoleAssistant,
		Content: []ContentPart{{Type: ContentTypeOutputText, Text: text}},
	}
}

// TokenUsage reports token accounting for one completed request.
// CachedInputTokens and ReasoningOutputTokens are not tracked by the daemon
// and are always zero on this path.
type TokenUsage struct {
	InputTokens           uint64 `json:"input_tokens"`
	CachedInputTokens     uint64 `json:"cached_input_tokens"`
	OutputTokens          uint64 `json:"output_tokens"`
	ReasoningOutputTokens uint64 `json:"reasoning_output_tokens"`
	TotalTokens           uint64 `json:"total_tokens"`
}
