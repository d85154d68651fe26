//go:build !(darwin && cgo && codexpc_xpc)

package xpc

import (
	codexpc "github.com/haowjy/codexpc-go"
	"github.com/haowjy/codexpc-go/bridge"
)

// Available reports whether the XPC binding is compiled in.
const Available = false

// StartFromText implements bridge.Surface.
func (s *Surface) StartFromText(bridge.TextArgs, bridge.Callback) (bridge.Ref, error) {
	return 0, codexpc.ErrSurfaceUnavailable
}

// StartFromMessages implements bridge.Surface.
func (s *Surface) StartFromMessages(bridge.MessagesArgs, bridge.Callback) (bridge.Ref, error) {
	return 0, codexpc.ErrSurfaceUnavailable
}

// StartFromTokens implements bridge.Surface.
func (s *Surface) StartFromTokens(bridge.TokensArgs, bridge.Callback) (bridge.Ref, error) {
	return 0, codexpc.ErrSurfaceUnavailable
}

// Cancel implements bridge.Surface.
func (s *Surface) Cancel(bridge.Ref) {}

// Release implements bridge.Surface.
func (s *Surface) Release(bridge.Ref) {}

// Handshake implements bridge.Surface.
func (s *Surface) Handshake(string) (string, bool) {
	return "", false
}
