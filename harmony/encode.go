// Package harmony builds Harmony-format conversations from prompt history and
// a tool manifest, as a JSON document for the daemon's parsing path or as a
// rendered token prefill.
package harmony

import (
	"encoding/json"

	codexpc "github.com/haowjy/codexpc-go"
)

// DefaultSystemText is the system message used when the caller supplies no instructions.
const DefaultSystemText = "# Valid channels: analysis, commentary, final.\n" +
	"Always write user-facing responses in the final channel; use analysis only for internal reasoning."

// Part types in the encoded conversation
const (
	PartText  = "text"
	PartImage = "image"
	PartTools = "tools"
)

// ToolMode selects how the developer message carries the tool manifest.
type ToolMode int

const (
	// ToolsAsText embeds a single text part describing the tools.
	ToolsAsText ToolMode = iota
	// ToolsAsNamespace embeds a structured tools part under the functions namespace.
	ToolsAsNamespace
)

func (m ToolMode) String() string {
	switch m {
	case ToolsAsText:
		return "text"
	case ToolsAsNamespace:
		return "namespace"
	default:
		return "unknown"
	}
}

// ToolSpec is one tool in a namespace part.
type ToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// Part is one content part of an encoded message.
type Part struct {
	Type      string     `json:"type"`
	Text      string     `json:"text,omitempty"`
	ImageURL  string     `json:"image_url,omitempty"`
	Namespace string     `json:"namespace,omitempty"`
	Tools     []ToolSpec `json:"tools,omitempty"`
}

// Message is one encoded conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content []Part `json:"content"`
}

// Conversation is the encoded prompt. It is built once per request and not
// modified afterwards.
type Conversation struct {
	Messages []Message `json:"messages"`
}

// Options configures Encode.
type Options struct {
	ToolMode ToolMode
}

// Encode builds the conversation: a system message (instructions, or
// DefaultSystemText when empty), a developer message carrying the tool
// manifest when tools is non-empty, then one message per message item of
// history with its role preserved. Items that are not messages, and messages
// with no parts, are skipped. Identical inputs always give identical output.
func Encode(instructions string, history []codexpc.ResponseItem, tools []codexpc.Tool, opts Options) Conversation {
	var conv Conversation

	system := instructions
	if system == "" {
		system = DefaultSystemText
	}
	conv.Messages = append(conv.Messages, Message{
		Role:    codexpc.RoleSystem,
		Content: []Part{{Type: PartText, Text: system}},
	})

	if len(tools) > 0 {
		conv.Messages = append(conv.Messages, Message{
			Role:    codexpc.RoleDeveloper,
			Content: []Part{toolsPart(tools, opts.ToolMode)},
		})
	}

	for i := range history {
		item := &history[i]
		if !item.IsMessage() {
			continue
		}
		parts := make([]Part, 0, len(item.Content))
		for _, c := range item.Content {
			switch {
			case c.IsText():
				parts = append(parts, Part{Type: PartText, Text: c.Text})
			case c.IsImage():
				parts = append(parts, Part{Type: PartImage, ImageURL: c.ImageURL})
			}
		}
		if len(parts) == 0 {
			continue
		}
		conv.Messages = append(conv.Messages, Message{Role: item.Role, Content: parts})
	}

	return conv
}

func toolsPart(tools []codexpc.Tool, mode ToolMode) Part {
	if mode == ToolsAsNamespace {
		specs := make([]ToolSpec, 0, len(tools))
		for _, t := range tools {
			specs = append(specs, ToolSpec{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			})
		}
		return Part{Type: PartTools, Namespace: codexpc.ToolNamespace, Tools: specs}
	}
	return Part{Type: PartText, Text: ToolDescription(tools)}
}

// DeveloperMessages returns the developer-role messages.
func (c Conversation) DeveloperMessages() []Message {
	var out []Message
	for _, m := range c.Messages {
		if m.Role == codexpc.RoleDeveloper {
			out = append(out, m)
		}
	}
	return out
}

// JSON returns the {"messages":[...]} document, or nil when the conversation is empty.
func (c Conversation) JSON() []byte {
	if len(c.Messages) == 0 {
		return nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil
	}
	return b
}

// MessagesJSON returns the bare message array, or nil when the conversation is empty.
func (c Conversation) MessagesJSON() []byte {
	if len(c.Messages) == 0 {
		return nil
	}
	b, err := json.Marshal(c.Messages)
	if err != nil {
		return nil
	}
	return b
}

// JSONString is JSON as an optional string argument.
func (c Conversation) JSONString() *string {
	return optional(c.JSON())
}

// MessagesJSONString is MessagesJSON as an optional string argument.
func (c Conversation) MessagesJSONString() *string {
	return optional(c.MessagesJSON())
}

func optional(b []byte) *string {
	if b == nil {
		return nil
	}
	s := string(b)
	return &s
}
