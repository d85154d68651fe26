package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	codexpc "github.com/haowjy/codexpc-go"
	"github.com/haowjy/codexpc-go/bridge"
	"github.com/haowjy/codexpc-go/harmony"
	"github.com/haowjy/codexpc-go/surface/lorem"
	"github.com/haowjy/codexpc-go/telemetry"
)

func intPtr(i int) *int { return &i }

func testConfig() *codexpc.Config {
	return &codexpc.Config{Service: "com.example.codexpc", Checkpoint: "/models/gpt-oss-instant"}
}

func userPrompt(text string, maxTokens int) *codexpc.Prompt {
	return &codexpc.Prompt{
		Input:  []codexpc.ResponseItem{codexpc.UserMessage(text)},
		Params: &codexpc.RequestParams{MaxTokens: intPtr(maxTokens)},
	}
}

func collect(t *testing.T, stream *codexpc.ResponseStream) []codexpc.ResponseEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events, err := codexpc.Collect(ctx, stream)
	require.NoError(t, err)
	return events
}

func typesOf(events []codexpc.ResponseEvent) []codexpc.ResponseEventType {
	out := make([]codexpc.ResponseEventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

// recordingSurface wraps the simulated daemon and records the arguments of
// the last start call.
type recordingSurface struct {
	*lorem.Surface
	text     *bridge.TextArgs
	messages *bridge.MessagesArgs
	tokens   *bridge.TokensArgs
	nullRef  bool
}

func (s *recordingSurface) StartFromText(args bridge.TextArgs, cb bridge.Callback) (bridge.Ref, error) {
	s.text = &args
	if s.nullRef {
		return 0, nil
	}
	return s.Surface.StartFromText(args, cb)
}

func (s *recordingSurface) StartFromMessages(args bridge.MessagesArgs, cb bridge.Callback) (bridge.Ref, error) {
	s.messages = &args
	return s.Surface.StartFromMessages(args, cb)
}

func (s *recordingSurface) StartFromTokens(args bridge.TokensArgs, cb bridge.Callback) (bridge.Ref, error) {
	s.tokens = &args
	return s.Surface.StartFromTokens(args, cb)
}

func newRecording(opts ...lorem.Option) *recordingSurface {
	return &recordingSurface{Surface: lorem.NewSurface(append([]lorem.Option{lorem.WithDelay(0)}, opts...)...)}
}

func TestNewProvider_Errors(t *testing.T) {
	_, err := NewProvider(nil, testConfig())
	assert.ErrorIs(t, err, codexpc.ErrSurfaceUnavailable)

	_, err = NewProvider(lorem.NewSurface(), &codexpc.Config{})
	var envErr *codexpc.EnvVarError
	require.ErrorAs(t, err, &envErr)
	assert.Equal(t, codexpc.EnvCheckpoint, envErr.Var)

	_, err = NewProvider(lorem.NewSurface(), testConfig(), WithMode(ModeTokens))
	assert.ErrorIs(t, err, codexpc.ErrInvalidRequest)

	_, err = NewProvider(lorem.NewSurface(), testConfig(), WithMode("binary"))
	assert.ErrorIs(t, err, codexpc.ErrInvalidRequest)
}

func TestNewProvider_Defaults(t *testing.T) {
	p, err := NewProvider(lorem.NewSurface(), &codexpc.Config{Checkpoint: "ckpt"})
	require.NoError(t, err)

	assert.Equal(t, codexpc.ProviderXPC, p.Name())
	assert.Equal(t, ModeText, p.Mode())
	assert.Equal(t, codexpc.DefaultService, p.service)
	assert.Equal(t, codexpc.DefaultDrainTimeout, p.drainTimeout)
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"text", "messages", "tokens"} {
		m, err := ParseMode(s)
		require.NoError(t, err)
		assert.Equal(t, Mode(s), m)
	}
	_, err := ParseMode("xml")
	assert.Error(t, err)
}

func TestStream_TextMode(t *testing.T) {
	s := newRecording()
	p, err := NewProvider(s, testConfig())
	require.NoError(t, err)

	stream, err := p.Stream(context.Background(), userPrompt("hello there", 5))
	require.NoError(t, err)
	events := collect(t, stream)

	types := typesOf(events)
	require.GreaterOrEqual(t, len(types), 4)
	assert.Equal(t, codexpc.ResponseEventCreated, types[0])
	assert.Equal(t, codexpc.ResponseEventCompleted, types[len(types)-1])

	var deltas string
	for _, ev := range events {
		if ev.Type == codexpc.ResponseEventOutputTextDelta {
			deltas += ev.Delta
		}
	}
	// The synthesized assistant message precedes completed and carries the full text.
	msg := events[len(events)-2]
	require.Equal(t, codexpc.ResponseEventOutputItemDone, msg.Type)
	require.NotNil(t, msg.Item)
	assert.True(t, msg.Item.IsMessage())
	assert.Equal(t, deltas, msg.Item.Text())

	completed := events[len(events)-1]
	assert.Contains(t, completed.ResponseID, "resp_")
	require.NotNil(t, completed.Usage)
	assert.Equal(t, uint64(5), completed.Usage.OutputTokens)

	require.NotNil(t, s.text)
	assert.Equal(t, "", s.text.Instructions)
	require.NotNil(t, s.text.ConversationJSON)
	assert.Contains(t, *s.text.ConversationJSON, "hello there")
	assert.Equal(t, uint64(5), s.text.MaxTokens)
	assert.Equal(t, "/models/gpt-oss-instant", s.text.Checkpoint)
	assert.Equal(t, 0, s.Active())
}

func TestStream_MessagesMode(t *testing.T) {
	s := newRecording()
	p, err := NewProvider(s, testConfig(), WithMode(ModeMessages))
	require.NoError(t, err)

	stream, err := p.Stream(context.Background(), userPrompt("list the planets", 3))
	require.NoError(t, err)
	events := collect(t, stream)
	assert.Equal(t, codexpc.ResponseEventCompleted, events[len(events)-1].Type)

	require.NotNil(t, s.messages)
	require.NotNil(t, s.messages.MessagesJSON)
	var messages []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(*s.messages.MessagesJSON), &messages))
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0]["role"])
	assert.Equal(t, "user", messages[1]["role"])
}

func TestStream_TokensMode(t *testing.T) {
	s := newRecording()
	p, err := NewProvider(s, testConfig(), WithMode(ModeTokens), WithTokenizer(harmony.ByteTokenizer{}))
	require.NoError(t, err)

	prompt := userPrompt("hi", 4)
	prompt.Params.PrimeFinal = func() *bool { b := false; return &b }()
	stream, err := p.Stream(context.Background(), prompt)
	require.NoError(t, err)
	events := collect(t, stream)
	assert.Equal(t, codexpc.ResponseEventCompleted, events[len(events)-1].Type)

	require.NotNil(t, s.tokens)
	require.NotEmpty(t, s.tokens.Tokens)
	profile, err := codexpc.GetCapabilityRegistry().GetProfile(codexpc.DefaultEncoding)
	require.NoError(t, err)
	assert.Equal(t, profile.SpecialTokens[harmony.TokenStart], s.tokens.Tokens[0])
	assert.False(t, s.tokens.PrimeFinal)
}

func TestStream_TokensModeRenderFailure(t *testing.T) {
	failing := harmony.TokenizerFunc(func(string) ([]uint32, error) { return nil, errors.New("vocab missing") })
	s := newRecording()
	p, err := NewProvider(s, testConfig(), WithMode(ModeTokens), WithTokenizer(failing))
	require.NoError(t, err)

	_, err = p.Stream(context.Background(), userPrompt("hi", 4))
	var perr *codexpc.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "encode", perr.Op)
	assert.ErrorIs(t, err, codexpc.ErrRender)
	assert.Nil(t, s.tokens, "nothing should reach the daemon")
}

func TestStream_StartFailure(t *testing.T) {
	s := newRecording()
	s.nullRef = true
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	p, err := NewProvider(s, testConfig(), WithMetrics(metrics))
	require.NoError(t, err)

	stream, err := p.Stream(context.Background(), userPrompt("hi", 2))
	assert.Nil(t, stream)
	assert.ErrorIs(t, err, codexpc.ErrStartFailed)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("text", telemetry.StatusStartFailed)))
}

func TestStream_InvalidPrompt(t *testing.T) {
	p, err := NewProvider(newRecording(), testConfig())
	require.NoError(t, err)

	_, err = p.Stream(context.Background(), nil)
	assert.ErrorIs(t, err, codexpc.ErrInvalidRequest)

	_, err = p.Stream(context.Background(), &codexpc.Prompt{
		Params: &codexpc.RequestParams{ReasoningEffort: func() *string { s := "extreme"; return &s }()},
	})
	assert.ErrorIs(t, err, codexpc.ErrInvalidRequest)
}

func TestStream_ToolCall(t *testing.T) {
	echo, err := codexpc.NewEchoTool()
	require.NoError(t, err)

	s := newRecording()
	p, err := NewProvider(s, testConfig())
	require.NoError(t, err)

	prompt := userPrompt("call the tool", 2)
	prompt.Tools = []codexpc.Tool{*echo}
	stream, err := p.Stream(context.Background(), prompt)
	require.NoError(t, err)
	events := collect(t, stream)

	var call, output *codexpc.ResponseItem
	for _, ev := range events {
		if ev.Item == nil {
			continue
		}
		switch {
		case ev.Item.IsToolCall():
			call = ev.Item
		case ev.Item.IsToolOutput():
			output = ev.Item
		}
	}
	require.NotNil(t, call)
	require.NotNil(t, output)
	assert.Equal(t, codexpc.ToolNameEcho, call.Name)
	assert.Equal(t, call.CallID, output.CallID)
	assert.NoError(t, echo.ValidateInput(call.Input))

	require.NotNil(t, s.text.ToolsJSON)
	assert.Contains(t, *s.text.ToolsJSON, codexpc.ToolNameEcho)
	assert.Contains(t, *s.text.ConversationJSON, "developer")
}

func TestStream_DaemonError(t *testing.T) {
	code, msg := "checkpoint_missing", "no such checkpoint"
	s := newRecording(lorem.WithScript(
		bridge.CallbackFields{Type: string(codexpc.EventKindCreated)},
		bridge.CallbackFields{Type: string(codexpc.EventKindError), Code: &code, Message: &msg},
	))
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	p, err := NewProvider(s, testConfig(), WithMetrics(metrics))
	require.NoError(t, err)

	stream, err := p.Stream(context.Background(), userPrompt("hi", 2))
	require.NoError(t, err)
	events := collect(t, stream)

	require.Len(t, events, 2)
	last := events[1]
	assert.Equal(t, codexpc.ResponseEventError, last.Type)
	se, ok := codexpc.IsStreamError(last.Err)
	require.True(t, ok)
	assert.Equal(t, "checkpoint_missing", se.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("text", telemetry.StatusError)))
}

func TestStream_EndsWithoutTerminal(t *testing.T) {
	text := "partial"
	s := newRecording(lorem.WithScript(
		bridge.CallbackFields{Type: string(codexpc.EventKindCreated)},
		bridge.CallbackFields{Type: string(codexpc.EventKindOutputTextDelta), Text: &text},
	))
	cfg := testConfig()
	cfg.DrainTimeout = 50 * time.Millisecond
	p, err := NewProvider(s, cfg)
	require.NoError(t, err)

	stream, err := p.Stream(context.Background(), userPrompt("hi", 2))
	require.NoError(t, err)

	// The script never completes; closing the stream is the caller's way out.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, stream.Close())
	assert.Equal(t, 0, s.Active())
}

func TestStream_CloseCancels(t *testing.T) {
	s := lorem.NewSurface(lorem.WithDelay(20 * time.Millisecond))
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	p, err := NewProvider(s, testConfig(), WithMetrics(metrics), WithMode(ModeMessages))
	require.NoError(t, err)

	stream, err := p.Stream(context.Background(), userPrompt("a long answer", 0))
	require.NoError(t, err)

	select {
	case ev := <-stream.Events():
		assert.Equal(t, codexpc.ResponseEventCreated, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no created event")
	}

	require.NoError(t, stream.Close())
	assert.Equal(t, 0, s.Active())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("messages", telemetry.StatusCancelled)))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ActiveRequests.WithLabelValues("messages")))
}

func TestStream_ContextCancel(t *testing.T) {
	s := lorem.NewSurface(lorem.WithDelay(20 * time.Millisecond))
	p, err := NewProvider(s, testConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := p.Stream(ctx, userPrompt("a long answer", 0))
	require.NoError(t, err)
	cancel()

	select {
	case <-stream.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not finish after context cancel")
	}
	assert.Equal(t, 0, s.Active())
}

func TestStream_Telemetry(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer := telemetry.NewTracerFromProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)), "test")
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	p, err := NewProvider(newRecording(), testConfig(), WithTracer(tracer), WithMetrics(metrics))
	require.NoError(t, err)

	stream, err := p.Stream(context.Background(), userPrompt("hi", 3))
	require.NoError(t, err)
	collect(t, stream)
	require.NoError(t, stream.Close())

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	attrs := map[string]string{}
	for _, kv := range ended[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "completed", attrs["codexpc.status"])
	assert.Equal(t, "text", attrs["codexpc.mode"])
	assert.NotEmpty(t, attrs["codexpc.request_id"])

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("text", telemetry.StatusCompleted)))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.Deltas))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.TokensUsed.WithLabelValues("output")))
}

func TestServiceInfo(t *testing.T) {
	p, err := NewProvider(lorem.NewSurface(), testConfig())
	require.NoError(t, err)
	info := p.ServiceInfo()
	require.NotNil(t, info)
	assert.Equal(t, codexpc.DefaultEncoding, info.Encoding())

	p, err = NewProvider(lorem.NewSurface(lorem.WithHandshake(nil)), testConfig())
	require.NoError(t, err)
	assert.Nil(t, p.ServiceInfo())

	p, err = NewProvider(lorem.NewSurface(), testConfig(), WithHandshake(false))
	require.NoError(t, err)
	assert.Nil(t, p.ServiceInfo())
}

func TestResolveToolMode(t *testing.T) {
	profile, err := codexpc.GetCapabilityRegistry().GetProfile(codexpc.DefaultEncoding)
	require.NoError(t, err)

	text, err := NewProvider(lorem.NewSurface(), testConfig())
	require.NoError(t, err)
	assert.Equal(t, harmony.ToolsAsText, text.resolveToolMode(profile))

	tokens, err := NewProvider(lorem.NewSurface(), testConfig(), WithMode(ModeTokens), WithTokenizer(harmony.ByteTokenizer{}))
	require.NoError(t, err)
	assert.Equal(t, harmony.ToolsAsNamespace, tokens.resolveToolMode(profile))

	forced, err := NewProvider(lorem.NewSurface(), testConfig(), WithMode(ModeTokens),
		WithTokenizer(harmony.ByteTokenizer{}), WithToolMode(harmony.ToolsAsText))
	require.NoError(t, err)
	assert.Equal(t, harmony.ToolsAsText, forced.resolveToolMode(profile))
}
