// Package xpc binds bridge.Surface to the codexpc daemon's XPC client
// library (libcodexpc_xpc) through cgo.
//
// The binding is compiled only on darwin with cgo and the codexpc_xpc build
// tag; elsewhere every start operation fails with
// codexpc.ErrSurfaceUnavailable and Handshake reports no answer.
//
//	go build -tags codexpc_xpc ./...
package xpc

import (
	"log/slog"

	"github.com/haowjy/codexpc-go/bridge"
)

// callbacks is shared by every Surface: the exported trampoline has no
// receiver.
var callbacks = newRegistry()

var _ bridge.Surface = (*Surface)(nil)

// Option configures a Surface.
type Option func(*Surface)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Surface) {
		s.logger = l
	}
}

// Surface is the XPC-backed foreign call surface.
type Surface struct {
	logger *slog.Logger
}

// New returns the XPC surface.
func New(opts ...Option) *Surface {
	s := &Surface{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pending returns the number of requests not yet released.
func Pending() int {
	return callbacks.len()
}
