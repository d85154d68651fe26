package harmony

import (
	"fmt"
	"strings"

	codexpc "github.com/haowjy/codexpc-go"
)

// Harmony framing tokens
const (
	TokenStart   = "<|start|>"
	TokenMessage = "<|message|>"
	TokenEnd     = "<|end|>"
)

// Tokenizer turns ordinary text into token ids. Special tokens are never
// passed through it; Render looks them up in RenderOptions.SpecialTokens.
type Tokenizer interface {
	Encode(text string) ([]uint32, error)
}

// TokenizerFunc adapts a function to Tokenizer.
type TokenizerFunc func(text string) ([]uint32, error)

// Encode calls f.
func (f TokenizerFunc) Encode(text string) ([]uint32, error) { return f(text) }

// RenderOptions configures Render.
type RenderOptions struct {
	// SpecialTokens maps framing token strings to ids, typically from the
	// encoding's capability profile.
	SpecialTokens map[string]uint32
}

// Render turns the conversation into a token prefill:
//
//	<|start|>{role}<|message|>{text}<|end|>
//
// per message. Image parts are skipped, and a message left with no text is
// dropped. Tool namespace parts are rendered as a namespace text block. A
// tokenizer failure or a missing framing token fails the whole render with
// an error wrapping codexpc.ErrRender.
func Render(conv Conversation, tok Tokenizer, opts RenderOptions) ([]uint32, error) {
	if tok == nil {
		return nil, fmt.Errorf("%w: no tokenizer", codexpc.ErrRender)
	}

	start, err := special(opts, TokenStart)
	if err != nil {
		return nil, err
	}
	msg, err := special(opts, TokenMessage)
	if err != nil {
		return nil, err
	}
	end, err := special(opts, TokenEnd)
	if err != nil {
		return nil, err
	}

	var out []uint32
	for i, m := range conv.Messages {
		text := renderableText(m)
		if text == "" {
			continue
		}

		role, err := tok.Encode(m.Role)
		if err != nil {
			return nil, fmt.Errorf("%w: message %d role: %v", codexpc.ErrRender, i, err)
		}
		body, err := tok.Encode(text)
		if err != nil {
			return nil, fmt.Errorf("%w: message %d: %v", codexpc.ErrRender, i, err)
		}

		out = append(out, start)
		out = append(out, role...)
		out = append(out, msg)
		out = append(out, body...)
		out = append(out, end)
	}
	return out, nil
}

// RenderText returns the same framing as Render with special tokens left as text.
// Useful for diagnostics; the daemon never receives this form.
func RenderText(conv Conversation) string {
	var sb strings.Builder
	for _, m := range conv.Messages {
		text := renderableText(m)
		if text == "" {
			continue
		}
		sb.WriteString(TokenStart)
		sb.WriteString(m.Role)
		sb.WriteString(TokenMessage)
		sb.WriteString(text)
		sb.WriteString(TokenEnd)
	}
	return sb.String()
}

func renderableText(m Message) string {
	var sb strings.Builder
	for _, p := range m.Content {
		switch p.Type {
		case PartText:
			sb.WriteString(p.Text)
		case PartTools:
			sb.WriteString(namespaceText(p))
		}
	}
	return sb.String()
}

func special(opts RenderOptions, name string) (uint32, error) {
	id, ok := opts.SpecialTokens[name]
	if !ok {
		return 0, fmt.Errorf("%w: special token %s not defined", codexpc.ErrRender, name)
	}
	return id, nil
}

// ByteTokenizer maps each UTF-8 byte to its value. It keeps ids below 256 so
// they never collide with Harmony special tokens; it is meant for diagnostics
// and simulated daemons, not for a real checkpoint.
type ByteTokenizer struct{}

// Encode returns the bytes of text as ids.
func (ByteTokenizer) Encode(text string) ([]uint32, error) {
	out := make([]uint32, len(text))
	for i := 0; i < len(text); i++ {
		out[i] = uint32(text[i])
	}
	return out, nil
}

