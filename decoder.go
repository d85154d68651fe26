package codexpc

import (
	"log/slog"
	"strings"
)

// DecoderState is the reassembly state of one request.
type DecoderState int

const (
	// StateStreaming is the initial state; events are being consumed.
	StateStreaming DecoderState = iota
	// StateDone is reached on a completed or error event.
	StateDone
	// StateClosed is reached when the source ends without a terminal event.
	StateClosed
)

func (s DecoderState) String() string {
	switch s {
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// defaultToolName is used when the daemon reports neither a tool name nor an item type.
const defaultToolName = "tool"

// MetricsObserver receives the daemon's telemetry events.
type MetricsObserver interface {
	ObserveMetrics(MetricsEvent)
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithMetricsObserver forwards metrics events to obs.
func WithMetricsObserver(obs MetricsObserver) DecoderOption {
	return func(d *Decoder) { d.metrics = obs }
}

// WithDecoderLogger sets the logger used for metrics and dropped events.
func WithDecoderLogger(logger *slog.Logger) DecoderOption {
	return func(d *Decoder) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Decoder reassembles bridge events into caller-facing response events.
//
// It accumulates output text and, on completion, emits one assistant message
// carrying the full text ahead of the completed event. At most one completed
// or error event is ever produced. A Decoder serves a single request and is
// not safe for concurrent use.
type Decoder struct {
	state   DecoderState
	text    strings.Builder
	metrics MetricsObserver
	logger  *slog.Logger
}

// NewDecoder returns a decoder in the streaming state.
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the current state.
func (d *Decoder) State() DecoderState {
	return d.state
}

// Step consumes one bridge event and returns the response events to emit, in order.
// Once the decoder has left the streaming state every event is ignored.
func (d *Decoder) Step(ev Event) []ResponseEvent {
	if d.state != StateStreaming {
		d.logger.Debug("event after terminal state ignored", "kind", ev.Kind(), "state", d.state.String())
		return nil
	}

	switch e := ev.(type) {
	case CreatedEvent:
		return []ResponseEvent{{Type: ResponseEventCreated}}

	case OutputTextDeltaEvent:
		d.text.WriteString(e.Text)
		return []ResponseEvent{{Type: ResponseEventOutputTextDelta, Delta: e.Text}}

	case OutputItemDoneEvent:
		item := toolCallItem(e)
		return []ResponseEvent{{Type: ResponseEventOutputItemDone, Item: &item}}

	case OutputItemOutputEvent:
		item := toolOutputItem(e)
		return []ResponseEvent{{Type: ResponseEventOutputItemDone, Item: &item}}

	case MetricsEvent:
		d.logger.Debug("codexpc metrics",
			"ttfb_ms", e.TTFBMillis,
			"tokens_per_sec", e.TokensPerSec,
			"delta_count", e.DeltaCount,
			"tool_calls", e.ToolCalls,
		)
		if d.metrics != nil {
			d.metrics.ObserveMetrics(e)
		}
		return nil

	case CompletedEvent:
		d.state = StateDone
		out := make([]ResponseEvent, 0, 2)
		if d.text.Len() > 0 {
			msg := AssistantMessage(d.text.String())
			d.text.Reset()
			out = append(out, ResponseEvent{Type: ResponseEventOutputItemDone, Item: &msg})
		}
		completed := ResponseEvent{Type: ResponseEventCompleted, ResponseID: e.ResponseID}
		if e.HasUsage {
			completed.Usage = &TokenUsage{
				InputTokens:  e.InputTokens,
				OutputTokens: e.OutputTokens,
				TotalTokens:  e.TotalTokens,
			}
		}
		return append(out, completed)

	case ErrorEvent:
		d.state = StateDone
		return []ResponseEvent{{
			Type: ResponseEventError,
			Err:  &StreamError{Code: e.Code, Message: e.Message},
		}}

	default:
		d.logger.Debug("unknown event dropped", "kind", ev.Kind())
		return nil
	}
}

// Finish marks the event source as exhausted. Returns true if the request
// ended without a terminal event. That is still a normal end of stream.
func (d *Decoder) Finish() bool {
	if d.state != StateStreaming {
		return false
	}
	d.state = StateClosed
	return true
}

// Decode runs a complete event sequence through a fresh decoder.
func Decode(events []Event, opts ...DecoderOption) []ResponseEvent {
	d := NewDecoder(opts...)
	var out []ResponseEvent
	for _, ev := range events {
		out = append(out, d.Step(ev)...)
	}
	d.Finish()
	return out
}

func toolCallItem(e OutputItemDoneEvent) ResponseItem {
	name := e.Name
	if name == "" {
		name = e.ItemType
	}
	if name == "" {
		name = defaultToolName
	}
	callID := name
	if e.CallID != nil && *e.CallID != "" {
		callID = *e.CallID
	}
	var status *string
	if e.Status != "" {
		s := e.Status
		status = &s
	}
	return ResponseItem{
		Type:   ItemTypeCustomToolCall,
		Status: status,
		CallID: callID,
		Name:   name,
		Input:  e.Input,
	}
}

func toolOutputItem(e OutputItemOutputEvent) ResponseItem {
	callID := e.Name
	if e.CallID != nil && *e.CallID != "" {
		callID = *e.CallID
	}
	return ResponseItem{
		Type:   ItemTypeCustomToolCallOutput,
		CallID: callID,
		Output: e.Output,
	}
}
