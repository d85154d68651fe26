package bridge

import (
	"context"
	"errors"
	"io"
	"sync"

	codexpc "github.com/haowjy/codexpc-go"
)

// Push failures.
var (
	// ErrQueueClosed reports a push after the send side was closed by a
	// terminal event; the consumer is still reading.
	ErrQueueClosed = errors.New("bridge: queue closed")

	// ErrQueueDetached reports a push after the consumer went away.
	ErrQueueDetached = errors.New("bridge: queue detached")
)

// Queue is an unbounded multi-producer, single-consumer event queue.
//
// Push never waits on the consumer: it appends under a short mutex and
// signals a one-slot channel without blocking. Recv is the only operation
// that waits.
type Queue struct {
	mu       sync.Mutex
	items    []codexpc.Event
	closed   bool
	detached bool
	signal   chan struct{}
}

// NewQueue returns an empty, open queue.
func NewQueue() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Push enqueues ev. When ev cannot be queued it is dropped and Push returns
// ErrQueueDetached if the consumer has gone, or ErrQueueClosed if only the
// send side has been closed.
func (q *Queue) Push(ev codexpc.Event) error {
	q.mu.Lock()
	switch {
	case q.detached:
		q.mu.Unlock()
		return ErrQueueDetached
	case q.closed:
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()
	q.notify()
	return nil
}

// CloseSend closes the send side. Queued events remain receivable.
func (q *Queue) CloseSend() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notify()
}

// Detach marks the consumer as gone: pending events are discarded and every
// later Push fails.
func (q *Queue) Detach() {
	q.mu.Lock()
	q.detached = true
	q.closed = true
	q.items = nil
	q.mu.Unlock()
	q.notify()
}

// Recv returns the next event in push order. It returns io.EOF once the send
// side is closed and the queue is empty, or ctx.Err() if ctx ends first.
func (q *Queue) Recv(ctx context.Context) (codexpc.Event, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			ev := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return ev, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return nil, io.EOF
		}

		select {
		case <-q.signal:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
