package codexpc

import (
	"context"
	"strings"
)

// Response is a fully drained response stream.
type Response struct {
	// Items are the output items in arrival order (tool calls, tool outputs and
	// the synthesized assistant message)
	Items []ResponseItem

	// ResponseID is the daemon-assigned id (empty if the stream closed without completing)
	ResponseID string

	// Usage is the token accounting of the completed event (nil if unknown)
	Usage *TokenUsage

	// Completed is true if a completed event was received
	Completed bool
}

// Text returns the concatenated text of the assistant messages in the response
func (r *Response) Text() string {
	var b strings.Builder
	for i := range r.Items {
		if r.Items[i].IsMessage() && r.Items[i].Role == RoleAssistant {
			b.WriteString(r.Items[i].Text())
		}
	}
	return b.String()
}

// ToolCalls returns the tool call items in the response
func (r *Response) ToolCalls() []ResponseItem {
	var calls []ResponseItem
	for _, item := range r.Items {
		if item.IsToolCall() {
			calls = append(calls, item)
		}
	}
	return calls
}

// Accumulate drains stream into a Response. Deltas are not kept; the decoder's
// synthesized assistant message carries the full text. The first error event
// is returned together with the partial response.
func Accumulate(ctx context.Context, stream *ResponseStream) (*Response, error) {
	resp := &Response{}
	for {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				return resp, nil
			}
			switch ev.Type {
			case ResponseEventOutputItemDone:
				if ev.Item != nil {
					resp.Items = append(resp.Items, *ev.Item)
				}
			case ResponseEventCompleted:
				resp.ResponseID = ev.ResponseID
				resp.Usage = ev.Usage
				resp.Completed = true
			case ResponseEventError:
				_ = stream.Close()
				return resp, ev.Err
			}
		case <-ctx.Done():
			_ = stream.Close()
			return resp, ctx.Err()
		}
	}
}

// Generate runs prompt on p and blocks until the response is complete.
func Generate(ctx context.Context, p Provider, prompt *Prompt) (*Response, error) {
	stream, err := p.Stream(ctx, prompt)
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	return Accumulate(ctx, stream)
}
