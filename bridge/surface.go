// Package bridge turns the daemon's callback-driven foreign call surface into
// an ordered, cancellable event stream.
//
// One request is represented by a Handle, which owns exactly one foreign
// reference, and an EventStream fed by a Translator. The translator runs on
// threads this package does not control and only ever enqueues; the single
// consumer goroutine is the only place that waits.
package bridge

// Ref is an opaque foreign reference to one in-flight request. Zero is the
// null reference.
type Ref uintptr

// CallbackFields is one callback invocation: the discriminator followed by the
// positional fields the daemon reuses across event kinds. Nil pointers are
// absent fields.
type CallbackFields struct {
	Type         string
	Text         *string
	Code         *string
	Message      *string
	ResponseID   *string
	InputTokens  uint64
	OutputTokens uint64
	TotalTokens  uint64
	ToolName     *string
	ToolInput    *string
	ToolOutput   *string
}

// Callback receives callback invocations. Implementations must not block.
type Callback func(CallbackFields)

// CommonArgs are the arguments shared by the three start operations.
type CommonArgs struct {
	Service      string
	Checkpoint   string
	ToolsJSON    *string
	SamplingJSON *string
	MaxTokens    uint64 // 0 = unlimited
}

// TextArgs are the arguments of start-from-text.
type TextArgs struct {
	CommonArgs
	Instructions     string
	ConversationJSON *string
}

// MessagesArgs are the arguments of start-from-messages.
type MessagesArgs struct {
	CommonArgs
	MessagesJSON *string
}

// TokensArgs are the arguments of start-from-tokens.
type TokensArgs struct {
	CommonArgs
	Tokens     []uint32
	PrimeFinal bool
}

// Surface is the foreign call surface exposed by the daemon's IPC runtime.
//
// Start operations return the null Ref when the runtime refuses the request,
// and an error only when the surface itself cannot be used (for example, it
// is not compiled into this binary). The callback may be invoked from any
// goroutine or foreign thread, including before the start call returns.
// After Release returns, the callback is never invoked again for that Ref.
type Surface interface {
	StartFromText(args TextArgs, cb Callback) (Ref, error)
	StartFromMessages(args MessagesArgs, cb Callback) (Ref, error)
	StartFromTokens(args TokensArgs, cb Callback) (Ref, error)
	Cancel(ref Ref)
	Release(ref Ref)

	// Handshake returns the daemon's capability JSON, or false when the
	// daemon gave no answer.
	Handshake(service string) (string, bool)
}
