package bridge

import (
	"context"
	"fmt"
	"sync"

	codexpc "github.com/haowjy/codexpc-go"
)

// Input selects the start operation for a request. It is one of TextInput,
// MessagesInput or TokensInput.
type Input interface {
	isInput()
}

// TextInput starts from instructions plus a Harmony conversation document.
type TextInput struct {
	Instructions     string
	ConversationJSON *string
}

// MessagesInput starts from a bare JSON array of messages.
type MessagesInput struct {
	MessagesJSON *string
}

// TokensInput starts from a pre-rendered token prefill.
type TokensInput struct {
	Tokens     []uint32
	PrimeFinal bool
}

func (TextInput) isInput()     {}
func (MessagesInput) isInput() {}
func (TokensInput) isInput()   {}

// StartRequest describes one streaming request.
type StartRequest struct {
	Service      string
	Checkpoint   string
	Input        Input
	ToolsJSON    *string
	SamplingJSON *string
	MaxTokens    uint64 // 0 = unlimited
}

func (r StartRequest) common() CommonArgs {
	return CommonArgs{
		Service:      r.Service,
		Checkpoint:   r.Checkpoint,
		ToolsJSON:    r.ToolsJSON,
		SamplingJSON: r.SamplingJSON,
		MaxTokens:    r.MaxTokens,
	}
}

// StartOption configures Start.
type StartOption func(*startOptions)

type startOptions struct {
	drops DropObserver
}

// WithDropObserver reports dropped callbacks to o.
func WithDropObserver(o DropObserver) StartOption {
	return func(so *startOptions) {
		so.drops = o
	}
}

// noCopy may be embedded into structs which must not be copied after first
// use. go vet's copylocks check reports copies.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Handle owns the foreign reference of one request. Always use it through
// the pointer returned by Start.
//
// Release must run after the event stream has been drained to a terminal
// event or io.EOF (or after the caller gave up waiting); it frees the
// foreign reference exactly once.
type Handle struct {
	_ noCopy

	surface Surface
	ref     Ref
	queue   *Queue

	mu       sync.RWMutex
	released bool
	once     sync.Once
}

// Start begins a request on s. The callback is installed before the foreign
// start call, so events emitted synchronously during the call are kept.
//
// A null foreign reference yields an error wrapping codexpc.ErrStartFailed.
func Start(s Surface, req StartRequest, opts ...StartOption) (*Handle, *EventStream, error) {
	var so startOptions
	for _, opt := range opts {
		opt(&so)
	}

	q := NewQueue()
	tr := NewTranslator(q, so.drops)

	ref, err := dispatch(s, req, tr.OnEvent)
	if err != nil {
		q.Detach()
		return nil, nil, err
	}
	if ref == 0 {
		q.Detach()
		return nil, nil, fmt.Errorf("%w: service %q returned no request", codexpc.ErrStartFailed, req.Service)
	}

	h := &Handle{surface: s, ref: ref, queue: q}
	return h, &EventStream{queue: q}, nil
}

func dispatch(s Surface, req StartRequest, cb Callback) (Ref, error) {
	switch in := req.Input.(type) {
	case TextInput:
		return s.StartFromText(TextArgs{
			CommonArgs:       req.common(),
			Instructions:     in.Instructions,
			ConversationJSON: in.ConversationJSON,
		}, cb)
	case MessagesInput:
		return s.StartFromMessages(MessagesArgs{
			CommonArgs:   req.common(),
			MessagesJSON: in.MessagesJSON,
		}, cb)
	case TokensInput:
		return s.StartFromTokens(TokensArgs{
			CommonArgs: req.common(),
			Tokens:     in.Tokens,
			PrimeFinal: in.PrimeFinal,
		}, cb)
	default:
		return 0, fmt.Errorf("%w: unsupported input %T", codexpc.ErrInvalidRequest, req.Input)
	}
}

// Cancel asks the daemon to stop generating. It is advisory: events may
// still arrive, normally ending with an error event. Safe from any
// goroutine; a no-op after Release.
func (h *Handle) Cancel() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.released {
		return
	}
	h.surface.Cancel(h.ref)
}

// Release frees the foreign reference and closes the event stream. Only the
// first call has any effect.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.mu.Lock()
		h.released = true
		h.surface.Release(h.ref)
		h.mu.Unlock()
		h.queue.Detach()
	})
}

// Released reports whether Release has run.
func (h *Handle) Released() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.released
}

// EventStream is the consumer side of one request.
type EventStream struct {
	queue *Queue
}

// Next returns the next bridge event in daemon order. It returns io.EOF once
// a terminal event has been consumed or the handle has been released, and
// ctx.Err() if ctx ends first.
func (s *EventStream) Next(ctx context.Context) (codexpc.Event, error) {
	return s.queue.Recv(ctx)
}
