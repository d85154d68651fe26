//go:build darwin && cgo && codexpc_xpc

package xpc

/*
#cgo LDFLAGS: -lcodexpc_xpc -framework Foundation -framework CoreFoundation
#include <stdlib.h>
#include "codexpc_xpc.h"
*/
import "C"

import (
	"unsafe"

	"github.com/haowjy/codexpc-go/bridge"
)

// Available reports whether the XPC binding is compiled in.
const Available = true

//export goCodexpcEvent
func goCodexpcEvent(ctx C.uintptr_t, typ, text, code, message, responseID *C.char,
	inputTokens, outputTokens, totalTokens C.uint64_t, toolName, toolInput, toolOutput *C.char) {
	fields := bridge.CallbackFields{
		Type:         C.GoString(typ),
		Text:         goOptional(text),
		Code:         goOptional(code),
		Message:      goOptional(message),
		ResponseID:   goOptional(responseID),
		InputTokens:  uint64(inputTokens),
		OutputTokens: uint64(outputTokens),
		TotalTokens:  uint64(totalTokens),
		ToolName:     goOptional(toolName),
		ToolInput:    goOptional(toolInput),
		ToolOutput:   goOptional(toolOutput),
	}
	callbacks.dispatch(uintptr(ctx), fields)
}

func goOptional(s *C.char) *string {
	if s == nil {
		return nil
	}
	v := C.GoString(s)
	return &v
}

// cstrings owns the C copies of one call's arguments.
type cstrings []unsafe.Pointer

func (c *cstrings) str(s string) *C.char {
	p := C.CString(s)
	*c = append(*c, unsafe.Pointer(p))
	return p
}

func (c *cstrings) optional(s *string) *C.char {
	if s == nil {
		return nil
	}
	return c.str(*s)
}

func (c *cstrings) free() {
	for _, p := range *c {
		C.free(p)
	}
}

// StartFromText implements bridge.Surface.
func (s *Surface) StartFromText(args bridge.TextArgs, cb bridge.Callback) (bridge.Ref, error) {
	var cs cstrings
	defer cs.free()

	id := callbacks.add(cb)
	h := C.codexpc_go_start_text(
		cs.str(args.Service), cs.str(args.Checkpoint), cs.str(args.Instructions),
		cs.optional(args.ConversationJSON), cs.optional(args.ToolsJSON), cs.optional(args.SamplingJSON),
		C.uint64_t(args.MaxTokens), C.uintptr_t(id))
	return s.started(id, h, "text"), nil
}

// StartFromMessages implements bridge.Surface.
func (s *Surface) StartFromMessages(args bridge.MessagesArgs, cb bridge.Callback) (bridge.Ref, error) {
	var cs cstrings
	defer cs.free()

	id := callbacks.add(cb)
	h := C.codexpc_go_start_messages(
		cs.str(args.Service), cs.str(args.Checkpoint), cs.optional(args.MessagesJSON),
		cs.optional(args.ToolsJSON), cs.optional(args.SamplingJSON),
		C.uint64_t(args.MaxTokens), C.uintptr_t(id))
	return s.started(id, h, "messages"), nil
}

// StartFromTokens implements bridge.Surface. The token slice is only read
// during the call.
func (s *Surface) StartFromTokens(args bridge.TokensArgs, cb bridge.Callback) (bridge.Ref, error) {
	var cs cstrings
	defer cs.free()

	var tokens *C.uint32_t
	if len(args.Tokens) > 0 {
		tokens = (*C.uint32_t)(unsafe.Pointer(&args.Tokens[0]))
	}
	primeFinal := C.int(0)
	if args.PrimeFinal {
		primeFinal = 1
	}

	id := callbacks.add(cb)
	h := C.codexpc_go_start_tokens(
		cs.str(args.Service), cs.str(args.Checkpoint), tokens, C.size_t(len(args.Tokens)), primeFinal,
		cs.optional(args.ToolsJSON), cs.optional(args.SamplingJSON),
		C.uint64_t(args.MaxTokens), C.uintptr_t(id))
	return s.started(id, h, "tokens"), nil
}

func (s *Surface) started(id uintptr, h unsafe.Pointer, mode string) bridge.Ref {
	if h == nil {
		callbacks.remove(id)
		s.logger.Warn("xpc: start returned no handle", "mode", mode)
		return 0
	}
	callbacks.setHandle(id, h)
	return bridge.Ref(id)
}

// Cancel implements bridge.Surface.
func (s *Surface) Cancel(ref bridge.Ref) {
	if h, ok := callbacks.handle(uintptr(ref)); ok {
		C.codexpc_xpc_cancel(h)
	}
}

// Release implements bridge.Surface. The registry entry is removed before
// the foreign handle is freed, so callbacks racing the release are dropped.
func (s *Surface) Release(ref bridge.Ref) {
	h, ok := callbacks.remove(uintptr(ref))
	if !ok || h == nil {
		return
	}
	C.codexpc_xpc_free(h)
}

// Handshake implements bridge.Surface.
func (s *Surface) Handshake(service string) (string, bool) {
	cs := C.CString(service)
	defer C.free(unsafe.Pointer(cs))

	raw := C.codexpc_xpc_handshake(cs)
	if raw == nil {
		return "", false
	}
	defer C.free(unsafe.Pointer(raw))
	return C.GoString(raw), true
}
