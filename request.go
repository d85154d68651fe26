package codexpc

import "fmt"

// Prompt is the internal representation of one generation request.
type Prompt struct {
	// Instructions become the system message. Empty means the default
	// channel-guidance text.
	Instructions string

	// Input is the ordered conversation history. Only message items are
	// encoded; tool call items are kept for the caller's bookkeeping.
	Input []ResponseItem

	// Tools is the optional tool manifest. Empty means no developer tool message.
	Tools []Tool

	// Params contains sampling and generation controls (may be nil)
	Params *RequestParams

	// Encoding selects the capability profile used for validation and token
	// rendering. Empty means the handshake result or DefaultEncoding.
	Encoding string
}

// Validate checks the prompt's structural requirements. It does not consult
// capability profiles; see GetValidationWarnings for advisory checks.
func (p *Prompt) Validate() error {
	if p == nil {
		return &ValidationError{Field: "prompt", Reason: "prompt is required", Err: ErrInvalidRequest}
	}
	for i := range p.Tools {
		if err := p.Tools[i].Validate(); err != nil {
			return &ValidationError{
				Field:  fmt.Sprintf("tools[%d]", i),
				Value:  p.Tools[i].Function.Name,
				Reason: err.Error(),
				Err:    ErrInvalidRequest,
			}
		}
	}
	for i, item := range p.Input {
		switch item.Type {
		case ItemTypeMessage, ItemTypeCustomToolCall, ItemTypeCustomToolCallOutput:
		default:
			return &ValidationError{
				Field:  fmt.Sprintf("input[%d].type", i),
				Value:  item.Type,
				Reason: "unknown item type",
				Err:    ErrInvalidRequest,
			}
		}
	}
	return ValidateRequestParams(p.Params)
}

// EncodingOr returns the prompt's encoding, or fallback when unset
func (p *Prompt) EncodingOr(fallback string) string {
	if p.Encoding != "" {
		return p.Encoding
	}
	return fallback
}
