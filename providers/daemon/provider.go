// Package daemon implements codexpc.Provider on top of a bridge.Surface:
// prompts are encoded to Harmony, streamed through the daemon's callback
// surface, and reassembled by codexpc.Decoder.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	codexpc "github.com/haowjy/codexpc-go"
	"github.com/haowjy/codexpc-go/bridge"
	"github.com/haowjy/codexpc-go/harmony"
	"github.com/haowjy/codexpc-go/telemetry"
)

// Mode selects the start operation used for each request.
type Mode string

const (
	// ModeText sends empty instructions plus the conversation document.
	ModeText Mode = "text"
	// ModeMessages sends the bare messages array.
	ModeMessages Mode = "messages"
	// ModeTokens renders the conversation to tokens locally.
	ModeTokens Mode = "tokens"
)

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeText, ModeMessages, ModeTokens:
		return Mode(s), nil
	default:
		return "", &codexpc.ValidationError{Field: "mode", Value: s, Reason: "must be text, messages or tokens", Err: codexpc.ErrInvalidRequest}
	}
}

// Option configures a Provider.
type Option func(*Provider)

// WithMode sets the input mode (default ModeText).
func WithMode(m Mode) Option {
	return func(p *Provider) { p.mode = m }
}

// WithTokenizer sets the tokenizer used by ModeTokens.
func WithTokenizer(t harmony.Tokenizer) Option {
	return func(p *Provider) { p.tokenizer = t }
}

// WithToolMode forces how the tool manifest is encoded. By default tools are
// described in text, except in tokens mode on encodings with tool_namespace.
func WithToolMode(m harmony.ToolMode) Option {
	return func(p *Provider) { p.toolMode = &m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithMetrics records request telemetry.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Provider) { p.metrics = m }
}

// WithTracer records a span per request.
func WithTracer(t *telemetry.Tracer) Option {
	return func(p *Provider) { p.tracer = t }
}

// WithCapabilities sets the capability registry (default: the embedded one).
func WithCapabilities(r *codexpc.CapabilityRegistry) Option {
	return func(p *Provider) { p.registry = r }
}

// WithValidationEngine sets the advisory validation engine.
func WithValidationEngine(e *codexpc.ValidationEngine) Option {
	return func(p *Provider) { p.validator = e }
}

// WithHandshake controls whether the provider asks the daemon for its
// capabilities before the first request (default true).
func WithHandshake(enabled bool) Option {
	return func(p *Provider) { p.handshake = enabled }
}

// Provider streams prompts through the daemon.
type Provider struct {
	surface      bridge.Surface
	service      string
	checkpoint   string
	drainTimeout time.Duration

	mode      Mode
	tokenizer harmony.Tokenizer
	toolMode  *harmony.ToolMode
	handshake bool

	registry  *codexpc.CapabilityRegistry
	validator *codexpc.ValidationEngine
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	tracer    *telemetry.Tracer

	infoOnce sync.Once
	info     *codexpc.ServiceInfo
}

// NewProvider creates a provider for the daemon reachable through surface.
func NewProvider(surface bridge.Surface, cfg *codexpc.Config, opts ...Option) (*Provider, error) {
	if surface == nil {
		return nil, fmt.Errorf("%w: no surface", codexpc.ErrSurfaceUnavailable)
	}
	if cfg == nil || cfg.Checkpoint == "" {
		return nil, &codexpc.EnvVarError{
			Var:          codexpc.EnvCheckpoint,
			Alternatives: []string{codexpc.EnvCheckpointPath},
			Instructions: "Set CODEXPC_CHECKPOINT to your GPT-OSS checkpoint path",
		}
	}

	p := &Provider{
		surface:      surface,
		service:      cfg.Service,
		checkpoint:   cfg.Checkpoint,
		drainTimeout: cfg.DrainTimeout,
		mode:         ModeText,
		handshake:    true,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.service == "" {
		p.service = codexpc.DefaultService
	}
	if p.drainTimeout <= 0 {
		p.drainTimeout = codexpc.DefaultDrainTimeout
	}
	if p.registry == nil {
		p.registry = codexpc.GetCapabilityRegistry()
	}
	if p.validator == nil {
		p.validator = codexpc.NewValidationEngine(p.registry)
	}
	if p.tracer == nil {
		p.tracer = telemetry.DefaultTracer()
	}
	if _, err := ParseMode(string(p.mode)); err != nil {
		return nil, err
	}
	if p.mode == ModeTokens && p.tokenizer == nil {
		return nil, &codexpc.ValidationError{Field: "tokenizer", Reason: "tokens mode requires a tokenizer", Err: codexpc.ErrInvalidRequest}
	}
	return p, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() codexpc.ProviderID {
	return codexpc.ProviderXPC
}

// Mode returns the configured input mode.
func (p *Provider) Mode() Mode {
	return p.mode
}

// ServiceInfo returns the daemon's handshake answer, asking at most once.
// Nil means the capabilities are unknown.
func (p *Provider) ServiceInfo() *codexpc.ServiceInfo {
	p.infoOnce.Do(func() {
		if !p.handshake {
			return
		}
		info, ok := bridge.Handshake(p.surface, p.service)
		if !ok {
			p.logger.Debug("handshake returned no capabilities", "service", p.service)
			return
		}
		p.info = info
		p.logger.Debug("handshake", "service", p.service, "encoding", info.Encoding(),
			"special_tokens", len(info.SpecialTokens))
	})
	return p.info
}

// Stream starts prompt on the daemon. Errors that prevent the request from
// starting are returned directly; everything after that arrives on the
// stream. A start call that yields no request (ErrStartFailed) is such an
// error and never appears as a stream event.
func (p *Provider) Stream(ctx context.Context, prompt *codexpc.Prompt) (*codexpc.ResponseStream, error) {
	if err := prompt.Validate(); err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	logger := p.logger.With("request_id", requestID, "mode", string(p.mode), "checkpoint", p.checkpoint)

	profile, encoding := p.profile(prompt)
	warnings := p.validator.Validate(codexpc.ValidationContext{Encoding: encoding, TokenMode: p.mode == ModeTokens}, prompt)
	logWarnings(logger, warnings)
	if p.metrics != nil {
		p.metrics.RecordWarnings(warnings)
	}

	req, err := p.buildStartRequest(prompt, profile)
	if err != nil {
		return nil, &codexpc.ProviderError{Provider: p.Name(), Op: "encode", Message: "failed to encode prompt", Err: err}
	}

	spanCtx, span := p.tracer.TraceRequest(ctx, p.Name().String(), string(p.mode), p.checkpoint)
	p.tracer.SetAttributes(span, "codexpc.request_id", requestID, "codexpc.max_tokens", req.MaxTokens)

	var startOpts []bridge.StartOption
	if p.metrics != nil {
		startOpts = append(startOpts, bridge.WithDropObserver(p.metrics))
	}
	handle, events, err := bridge.Start(p.surface, req, startOpts...)
	if err != nil {
		p.tracer.RecordError(span, err)
		span.End()
		if p.metrics != nil {
			p.metrics.RecordStartFailure(string(p.mode))
		}
		logger.Error("start failed", "error", err)
		return nil, &codexpc.ProviderError{Provider: p.Name(), Op: "start", Message: "daemon did not start the request", Err: err}
	}
	logger.Debug("request started", "encoding", encoding)

	streamCtx, cancel := context.WithCancel(spanCtx)
	stream := codexpc.NewResponseStream(cancel)
	if p.metrics != nil {
		p.metrics.RequestStarted(string(p.mode))
	}

	r := &run{
		provider: p,
		prompt:   prompt,
		handle:   handle,
		events:   events,
		stream:   stream,
		span:     span,
		logger:   logger,
		started:  time.Now(),
	}
	go r.pump(streamCtx)

	return stream, nil
}

// profile resolves the capability profile for prompt: the prompt's own
// encoding, else the handshake's, else the default. Unknown encodings fall
// back to the default profile.
func (p *Provider) profile(prompt *codexpc.Prompt) (*codexpc.EncodingProfile, string) {
	info := p.ServiceInfo()

	encoding := prompt.EncodingOr(info.Encoding())
	if prompt.Encoding == "" && info != nil {
		if merged, err := info.Profile(p.registry); err == nil {
			return merged, encoding
		}
	}
	if profile, err := p.registry.GetProfile(encoding); err == nil {
		return profile, encoding
	}
	profile, err := p.registry.GetProfile(codexpc.DefaultEncoding)
	if err != nil {
		return &codexpc.EncodingProfile{}, encoding
	}
	return profile, encoding
}

func logWarnings(logger *slog.Logger, warnings []codexpc.ValidationWarning) {
	for _, w := range warnings {
		level := slog.LevelWarn
		switch w.Severity {
		case codexpc.SeverityInfo:
			level = slog.LevelInfo
		case codexpc.SeverityError:
			level = slog.LevelError
		}
		logger.Log(context.Background(), level, w.Message,
			"code", string(w.Code), "category", w.Category, "field", w.Field)
	}
}
