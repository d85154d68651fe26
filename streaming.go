package codexpc

import (
	"context"
	"sync"
)

// ResponseEventType identifies the kind of a ResponseEvent.
type ResponseEventType string

// Response event kinds surfaced to callers.
const (
	ResponseEventCreated         ResponseEventType = "created"
	ResponseEventOutputTextDelta ResponseEventType = "output_text.delta"
	ResponseEventOutputItemDone  ResponseEventType = "output_item.done"
	ResponseEventCompleted       ResponseEventType = "completed"
	ResponseEventError           ResponseEventType = "error"
)

// ResponseEvent is one caller-facing unit of a streamed response.
//
// Exactly one of the payload fields is meaningful, depending on Type:
//   - created: none
//   - output_text.delta: Delta
//   - output_item.done: Item (a tool call, tool output or assistant message)
//   - completed: ResponseID and Usage (Usage may be nil)
//   - error: Err
type ResponseEvent struct {
	Type ResponseEventType

	// Delta is the verbatim text fragment for output_text.delta
	Delta string

	// Item is the reassembled response item for output_item.done
	Item *ResponseItem

	// ResponseID is the daemon-assigned id for completed
	ResponseID string

	// Usage is the token accounting for completed (nil when unknown)
	Usage *TokenUsage

	// Err is the stream-level failure for error
	Err error
}

// IsTerminal returns true if no further events follow this one.
func (e ResponseEvent) IsTerminal() bool {
	return e.Type == ResponseEventCompleted || e.Type == ResponseEventError
}

// ResponseStream is the ordered, cancellable event stream returned by a Provider.
//
// The producer calls Send for each event and CloseSend exactly once when it is
// finished. The consumer ranges over Events and may call Close at any time to
// abandon the stream; Close cancels the producer and waits for it to finish.
type ResponseStream struct {
	events   chan ResponseEvent
	cancel   context.CancelFunc
	once     sync.Once
	sendOnce sync.Once
	done     chan struct{}
}

// NewResponseStream creates a stream whose Close invokes cancel.
func NewResponseStream(cancel context.CancelFunc) *ResponseStream {
	return &ResponseStream{
		events: make(chan ResponseEvent, 64),
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Events returns the receive side of the stream. It is closed after the
// terminal event, or when the producer gives up.
func (s *ResponseStream) Events() <-chan ResponseEvent { return s.events }

// Close cancels the producer and blocks until it has called CloseSend.
func (s *ResponseStream) Close() error {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		<-s.done
	})
	return nil
}

// Done is closed once the producer has called CloseSend.
func (s *ResponseStream) Done() <-chan struct{} { return s.done }

// CloseSend closes the event channel. Safe to call more than once.
func (s *ResponseStream) CloseSend() {
	s.sendOnce.Do(func() {
		close(s.done)
		close(s.events)
	})
}

// Send publishes an event. It returns false without sending if ctx is done or
// the stream has already been closed.
func (s *ResponseStream) Send(ctx context.Context, ev ResponseEvent) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Collect drains the stream and returns every event in order. It stops early
// if ctx is cancelled.
func Collect(ctx context.Context, s *ResponseStream) ([]ResponseEvent, error) {
	var out []ResponseEvent
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return out, nil
			}
			out = append(out, ev)
		case <-ctx.Done():
			return out, ctx.Err()
		}
	}
}
