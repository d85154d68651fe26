package bridge

import (
	"errors"

	"github.com/tidwall/gjson"

	codexpc "github.com/haowjy/codexpc-go"
)

// Drop reasons reported to a DropObserver
const (
	DropUntranslatable = "untranslatable"
	DropAfterTerminal  = "after_terminal"
	DropDetached       = "detached"
)

// DropObserver is told about callbacks that produced no queued event.
type DropObserver interface {
	ObserveDropped(reason string)
}

// Translate demultiplexes one callback invocation into a typed event.
//
// Field reuse by discriminator:
//
//	created            no fields
//	output_text.delta  Text = delta (nil Text yields no event)
//	completed          ResponseID, token counts
//	metrics            Text = JSON object
//	output_item.done   Code = item_type, Message = status, ResponseID = call_id,
//	                   ToolName, ToolInput, ToolOutput (for tool_call.output)
//	error              Code, Message
//
// Unknown discriminators and malformed metrics JSON return false.
func Translate(f CallbackFields) (codexpc.Event, bool) {
	switch codexpc.EventKind(f.Type) {
	case codexpc.EventKindCreated:
		return codexpc.CreatedEvent{}, true

	case codexpc.EventKindOutputTextDelta:
		if f.Text == nil {
			return nil, false
		}
		return codexpc.OutputTextDeltaEvent{Text: *f.Text}, true

	case codexpc.EventKindCompleted:
		return codexpc.CompletedEvent{
			ResponseID:   str(f.ResponseID),
			HasUsage:     true,
			InputTokens:  f.InputTokens,
			OutputTokens: f.OutputTokens,
			TotalTokens:  f.TotalTokens,
		}, true

	case codexpc.EventKindMetrics:
		return parseMetrics(str(f.Text))

	case codexpc.EventKindOutputItemDone:
		itemType := str(f.Code)
		callID := optional(f.ResponseID)
		if itemType == codexpc.ItemTypeToolCallOutput {
			return codexpc.OutputItemOutputEvent{
				Name:   str(f.ToolName),
				Output: str(f.ToolOutput),
				CallID: callID,
			}, true
		}
		return codexpc.OutputItemDoneEvent{
			ItemType: itemType,
			Status:   str(f.Message),
			Name:     str(f.ToolName),
			Input:    str(f.ToolInput),
			CallID:   callID,
		}, true

	case codexpc.EventKindError:
		return codexpc.ErrorEvent{Code: str(f.Code), Message: str(f.Message)}, true

	default:
		return nil, false
	}
}

func parseMetrics(raw string) (codexpc.Event, bool) {
	if !gjson.Valid(raw) {
		return nil, false
	}
	doc := gjson.Parse(raw)
	if !doc.IsObject() {
		return nil, false
	}
	return codexpc.MetricsEvent{
		TTFBMillis:   number(doc.Get("ttfb_ms")),
		TokensPerSec: number(doc.Get("tokens_per_sec")),
		DeltaCount:   int64(number(doc.Get("delta_count"))),
		ToolCalls:    int64(number(doc.Get("tool_calls"))),
	}, true
}

func number(r gjson.Result) float64 {
	if r.Type != gjson.Number {
		return 0
	}
	return r.Float()
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// optional maps nil and "" to nil.
func optional(p *string) *string {
	if p == nil || *p == "" {
		return nil
	}
	s := *p
	return &s
}

// Translator is the callback handed to the surface for one request.
type Translator struct {
	queue    *Queue
	observer DropObserver
}

// NewTranslator returns a translator feeding q. observer may be nil.
func NewTranslator(q *Queue, observer DropObserver) *Translator {
	return &Translator{queue: q, observer: observer}
}

// OnEvent translates and enqueues one callback invocation. It never blocks
// and never fails: untranslatable invocations, invocations arriving after a
// terminal event and invocations arriving after the consumer detached are
// dropped. A terminal event closes the send side.
func (t *Translator) OnEvent(f CallbackFields) {
	ev, ok := Translate(f)
	if !ok {
		t.drop(DropUntranslatable)
		return
	}
	if err := t.queue.Push(ev); err != nil {
		if errors.Is(err, ErrQueueDetached) {
			t.drop(DropDetached)
		} else {
			t.drop(DropAfterTerminal)
		}
		return
	}
	if codexpc.IsTerminal(ev) {
		t.queue.CloseSend()
	}
}

func (t *Translator) drop(reason string) {
	if t.observer != nil {
		t.observer.ObserveDropped(reason)
	}
}
