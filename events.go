package codexpc

// EventKind is the wire discriminator the daemon uses for a callback invocation.
type EventKind string

// Known discriminators. Anything else is dropped by the translator.
const (
	EventKindCreated         EventKind = "created"
	EventKindOutputTextDelta EventKind = "output_text.delta"
	EventKindCompleted       EventKind = "completed"
	EventKindMetrics         EventKind = "metrics"
	EventKindOutputItemDone  EventKind = "output_item.done"
	EventKindError           EventKind = "error"
)

// ItemTypeToolCallOutput is the output_item.done item_type that carries a tool result.
const ItemTypeToolCallOutput = "tool_call.output"

// Event is one decoded callback invocation from the daemon.
//
// The set of implementations is closed: CreatedEvent, OutputTextDeltaEvent,
// CompletedEvent, MetricsEvent, ErrorEvent, OutputItemDoneEvent and
// OutputItemOutputEvent. Events are produced by the bridge translator and
// consumed by Decoder; nothing past the translator sees positional fields.
type Event interface {
	Kind() EventKind
	isEvent()
}

// CreatedEvent signals that the daemon accepted the request.
type CreatedEvent struct{}

// OutputTextDeltaEvent carries a fragment of user-facing text.
type OutputTextDeltaEvent struct {
	Text string
}

// CompletedEvent is the successful terminal event.
// Token counts are meaningful only when HasUsage is set; sources that do not
// report usage leave it false and the completed response carries no usage.
type CompletedEvent struct {
	ResponseID   string
	HasUsage     bool
	InputTokens  uint64
	OutputTokens uint64
	TotalTokens  uint64
}

// MetricsEvent carries generation telemetry. Never forwarded to callers.
type MetricsEvent struct {
	TTFBMillis   float64
	TokensPerSec float64
	DeltaCount   int64
	ToolCalls    int64
}

// ErrorEvent is the failing terminal event.
type ErrorEvent struct {
	Code    string
	Message string
}

// OutputItemDoneEvent reports a finished output item (a tool call).
type OutputItemDoneEvent struct {
	ItemType string
	Status   string
	Name     string
	Input    string
	CallID   *string
}

// OutputItemOutputEvent reports the output of a tool call executed by the daemon.
type OutputItemOutputEvent struct {
	Name   string
	Output string
	CallID *string
}

func (CreatedEvent) Kind() EventKind          { return EventKindCreated }
func (OutputTextDeltaEvent) Kind() EventKind  { return EventKindOutputTextDelta }
func (CompletedEvent) Kind() EventKind        { return EventKindCompleted }
func (MetricsEvent) Kind() EventKind          { return EventKindMetrics }
func (ErrorEvent) Kind() EventKind            { return EventKindError }
func (OutputItemDoneEvent) Kind() EventKind   { return EventKindOutputItemDone }
func (OutputItemOutputEvent) Kind() EventKind { return EventKindOutputItemDone }

func (CreatedEvent) isEvent()          {}
func (OutputTextDeltaEvent) isEvent()  {}
func (CompletedEvent) isEvent()        {}
func (MetricsEvent) isEvent()          {}
func (ErrorEvent) isEvent()            {}
func (OutputItemDoneEvent) isEvent()   {}
func (OutputItemOutputEvent) isEvent() {}

// IsTerminal returns true for events after which the daemon sends nothing else
// for the request.
func IsTerminal(ev Event) bool {
	switch ev.(type) {
	case CompletedEvent, ErrorEvent:
		return true
	default:
		return false
	}
}
