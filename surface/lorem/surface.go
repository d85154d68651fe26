// Package lorem is a simulated codexpc daemon. It implements bridge.Surface
// and emits lorem ipsum responses from its own goroutines, the way the real
// IPC runtime calls back from its own threads. Used for tests, examples and
// development without the daemon.
package lorem

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	loremgen "github.com/bozaro/golorem"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	codexpc "github.com/haowjy/codexpc-go"
	"github.com/haowjy/codexpc-go/bridge"
)

// DefaultWords is the response length when max_tokens is unlimited.
const DefaultWords = 20

// Option configures a Surface.
type Option func(*Surface)

// WithDelay fixes the delay between deltas, overriding the checkpoint name.
func WithDelay(d time.Duration) Option {
	return func(s *Surface) {
		s.delay = &d
	}
}

// WithWords sets the response length used when max_tokens is unlimited.
func WithWords(n int) Option {
	return func(s *Surface) {
		s.words = n
	}
}

// WithScript replays fields verbatim instead of generating a response. The
// script is replayed for every request; cancellation is still honoured
// between entries.
func WithScript(fields ...bridge.CallbackFields) Option {
	return func(s *Surface) {
		s.script = fields
	}
}

// WithHandshake sets the raw handshake answer. A nil answer simulates a
// daemon that does not report capabilities.
func WithHandshake(raw *string) Option {
	return func(s *Surface) {
		s.handshake = raw
		s.handshakeSet = true
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Surface) {
		s.logger = l
	}
}

// Surface is the simulated daemon.
type Surface struct {
	delay        *time.Duration
	words        int
	script       []bridge.CallbackFields
	handshake    *string
	handshakeSet bool
	logger       *slog.Logger

	next     atomic.Uint64
	mu       sync.Mutex
	requests map[bridge.Ref]*request
}

type request struct {
	cancelOnce sync.Once
	cancel     chan struct{}
	done       chan struct{}
}

// NewSurface creates a simulated daemon.
func NewSurface(opts ...Option) *Surface {
	s := &Surface{
		words:    DefaultWords,
		logger:   slog.Default(),
		requests: make(map[bridge.Ref]*request),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartFromText implements bridge.Surface.
func (s *Surface) StartFromText(args bridge.TextArgs, cb bridge.Callback) (bridge.Ref, error) {
	input := wordsIn(args.Instructions) + wordsIn(gjsonTexts(args.ConversationJSON, "messages.#.content.#.text"))
	return s.start("text", args.CommonArgs, input, cb), nil
}

// StartFromMessages implements bridge.Surface.
func (s *Surface) StartFromMessages(args bridge.MessagesArgs, cb bridge.Callback) (bridge.Ref, error) {
	input := wordsIn(gjsonTexts(args.MessagesJSON, "#.content.#.text"))
	return s.start("messages", args.CommonArgs, input, cb), nil
}

// StartFromTokens implements bridge.Surface.
func (s *Surface) StartFromTokens(args bridge.TokensArgs, cb bridge.Callback) (bridge.Ref, error) {
	return s.start("tokens", args.CommonArgs, uint64(len(args.Tokens)), cb), nil
}

// Cancel implements bridge.Surface. Unknown references are ignored.
func (s *Surface) Cancel(ref bridge.Ref) {
	s.mu.Lock()
	req := s.requests[ref]
	s.mu.Unlock()
	if req != nil {
		req.cancelOnce.Do(func() { close(req.cancel) })
	}
}

// Release implements bridge.Surface. It stops the request's goroutine and
// waits for it, so the callback is never invoked after Release returns.
func (s *Surface) Release(ref bridge.Ref) {
	s.mu.Lock()
	req := s.requests[ref]
	delete(s.requests, ref)
	s.mu.Unlock()
	if req == nil {
		return
	}
	req.cancelOnce.Do(func() { close(req.cancel) })
	<-req.done
}

// Handshake implements bridge.Surface. By default it answers with the
// embedded o200k_harmony profile.
func (s *Surface) Handshake(service string) (string, bool) {
	if s.handshakeSet {
		if s.handshake == nil {
			return "", false
		}
		return *s.handshake, true
	}
	return defaultHandshake()
}

// Active returns the number of requests not yet released.
func (s *Surface) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func defaultHandshake() (string, bool) {
	profile, err := codexpc.GetCapabilityRegistry().GetProfile(codexpc.DefaultEncoding)
	if err != nil {
		return "", false
	}
	data, err := json.Marshal(map[string]interface{}{
		"encoding_name":                     codexpc.DefaultEncoding,
		"special_tokens":                    profile.SpecialTokenNames(),
		"stop_tokens_for_assistant_actions": profile.StopTokensForAssistantActions,
	})
	if err != nil {
		return "", false
	}
	return string(data), true
}

// start registers the request and launches its goroutine. An empty
// checkpoint is refused with the null reference, like the daemon does.
func (s *Surface) start(mode string, args bridge.CommonArgs, inputTokens uint64, cb bridge.Callback) bridge.Ref {
	if args.Checkpoint == "" {
		s.logger.Warn("lorem: refusing request without checkpoint", "service", args.Service)
		return 0
	}

	ref := bridge.Ref(s.next.Add(1))
	req := &request{cancel: make(chan struct{}), done: make(chan struct{})}

	s.mu.Lock()
	s.requests[ref] = req
	s.mu.Unlock()

	s.logger.Debug("lorem: request started",
		"ref", uint64(ref), "mode", mode, "checkpoint", args.Checkpoint, "max_tokens", args.MaxTokens)

	g := &generation{
		surface:     s,
		req:         req,
		cb:          cb,
		args:        args,
		inputTokens: inputTokens,
		delay:       s.streamDelay(args.Checkpoint),
		gen:         loremgen.New(),
	}
	go g.run()
	return ref
}

// streamDelay returns the delay between deltas based on the checkpoint name.
//   - *slow*: 2 words/second
//   - *fast*: 200 words/second
//   - *instant*: no delay
//   - default: 30 words/second
func (s *Surface) streamDelay(checkpoint string) time.Duration {
	if s.delay != nil {
		return *s.delay
	}
	switch {
	case strings.Contains(checkpoint, "instant"):
		return 0
	case strings.Contains(checkpoint, "slow"):
		return 500 * time.Millisecond
	case strings.Contains(checkpoint, "fast"):
		return 5 * time.Millisecond
	default:
		return 33 * time.Millisecond
	}
}

// generation is one simulated response.
type generation struct {
	surface     *Surface
	req         *request
	cb          bridge.Callback
	args        bridge.CommonArgs
	inputTokens uint64
	delay       time.Duration
	gen         *loremgen.Lorem
}

func (g *generation) run() {
	defer close(g.req.done)

	if g.surface.script != nil {
		g.replay()
		return
	}

	started := time.Now()
	g.cb(bridge.CallbackFields{Type: string(codexpc.EventKindCreated)})

	target := uint64(g.surface.words)
	if g.args.MaxTokens > 0 && g.args.MaxTokens < target {
		target = g.args.MaxTokens
	}

	var ttfb time.Duration
	words := strings.Fields(g.textWords(int(target)))
	if uint64(len(words)) > target {
		words = words[:target]
	}
	for i, word := range words {
		if !g.wait() {
			g.cancelled()
			return
		}
		if i == 0 {
			ttfb = time.Since(started)
		}
		delta := word
		if i < len(words)-1 {
			delta += " "
		}
		g.cb(bridge.CallbackFields{Type: string(codexpc.EventKindOutputTextDelta), Text: &delta})
	}

	toolCalls := 0
	if name, ok := firstToolName(g.args.ToolsJSON); ok {
		if !g.wait() {
			g.cancelled()
			return
		}
		g.toolCall(name)
		toolCalls++
	}

	elapsed := time.Since(started)
	g.metrics(ttfb, elapsed, len(words), toolCalls)

	responseID := "resp_" + uuid.NewString()
	output := uint64(len(words))
	g.cb(bridge.CallbackFields{
		Type:         string(codexpc.EventKindCompleted),
		ResponseID:   &responseID,
		InputTokens:  g.inputTokens,
		OutputTokens: output,
		TotalTokens:  g.inputTokens + output,
	})
}

func (g *generation) replay() {
	for _, f := range g.surface.script {
		if !g.wait() {
			g.cancelled()
			return
		}
		g.cb(f)
		if f.Type == string(codexpc.EventKindCompleted) || f.Type == string(codexpc.EventKindError) {
			return
		}
	}
}

// wait sleeps for one delta interval. It returns false if the request was
// cancelled.
func (g *generation) wait() bool {
	if g.delay <= 0 {
		select {
		case <-g.req.cancel:
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(g.delay)
	defer t.Stop()
	select {
	case <-g.req.cancel:
		return false
	case <-t.C:
		return true
	}
}

func (g *generation) cancelled() {
	code, msg := "cancelled", "request cancelled"
	g.cb(bridge.CallbackFields{Type: string(codexpc.EventKindError), Code: &code, Message: &msg})
}

// toolCall emits a tool call followed by its output. echo and upper are
// executed; other tools echo their input.
func (g *generation) toolCall(name string) {
	itemType, status := "tool_call", "completed"
	callID := "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	msg := strings.TrimSuffix(g.gen.Sentence(2, 5), ".")
	inputData, _ := json.Marshal(codexpc.EchoArgs{Msg: msg})
	input := string(inputData)

	g.cb(bridge.CallbackFields{
		Type:       string(codexpc.EventKindOutputItemDone),
		Code:       &itemType,
		Message:    &status,
		ResponseID: &callID,
		ToolName:   &name,
		ToolInput:  &input,
	})

	output := input
	switch name {
	case codexpc.ToolNameEcho:
		output = msg
	case codexpc.ToolNameUpper:
		output = strings.ToUpper(msg)
	}
	outputType := codexpc.ItemTypeToolCallOutput
	g.cb(bridge.CallbackFields{
		Type:       string(codexpc.EventKindOutputItemDone),
		Code:       &outputType,
		ResponseID: &callID,
		ToolName:   &name,
		ToolOutput: &output,
	})
}

func (g *generation) metrics(ttfb, elapsed time.Duration, deltas, toolCalls int) {
	tps := 0.0
	if elapsed > 0 {
		tps = float64(deltas) / elapsed.Seconds()
	}
	data, err := json.Marshal(struct {
		TTFBMillis   float64 `json:"ttfb_ms"`
		TokensPerSec float64 `json:"tokens_per_sec"`
		DeltaCount   int     `json:"delta_count"`
		ToolCalls    int     `json:"tool_calls"`
	}{
		TTFBMillis:   float64(ttfb.Microseconds()) / 1000,
		TokensPerSec: tps,
		DeltaCount:   deltas,
		ToolCalls:    toolCalls,
	})
	if err != nil {
		g.surface.logger.Warn("lorem: failed to encode metrics", "error", err)
		return
	}
	text := string(data)
	g.cb(bridge.CallbackFields{Type: string(codexpc.EventKindMetrics), Text: &text})
}

// textWords generates lorem ipsum text with at least targetWords words.
func (g *generation) textWords(targetWords int) string {
	var sb strings.Builder
	count := 0
	for count < targetWords {
		sentence := g.gen.Sentence(5, 15)
		sb.WriteString(sentence)
		sb.WriteString(" ")
		count += len(strings.Fields(sentence))
	}
	return strings.TrimSpace(sb.String())
}

// firstToolName returns the name of the first tool in an OpenAI-shaped
// manifest.
func firstToolName(toolsJSON *string) (string, bool) {
	if toolsJSON == nil {
		return "", false
	}
	name := gjson.Get(*toolsJSON, "0.function.name")
	if name.Type != gjson.String || name.String() == "" {
		return "", false
	}
	return name.String(), true
}

func gjsonTexts(doc *string, path string) string {
	if doc == nil {
		return ""
	}
	var sb strings.Builder
	gjson.Get(*doc, path).ForEach(func(_, msg gjson.Result) bool {
		msg.ForEach(func(_, text gjson.Result) bool {
			sb.WriteString(text.String())
			sb.WriteString(" ")
			return true
		})
		return true
	})
	return sb.String()
}

func wordsIn(s string) uint64 {
	return uint64(len(strings.Fields(s)))
}

// String describes the surface for logs.
func (s *Surface) String() string {
	return fmt.Sprintf("lorem(words=%d, active=%d)", s.words, s.Active())
}
