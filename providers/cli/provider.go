// Package cli is the fallback codexpc.Provider for hosts without the XPC
// surface: it runs codexpc-cli once per request and scrapes its stdout.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/google/uuid"

	codexpc "github.com/haowjy/codexpc-go"
	"github.com/haowjy/codexpc-go/telemetry"
)

// Mode is the metrics label for CLI requests.
const Mode = "cli"

// Option configures a Provider.
type Option func(*Provider)

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

// WithEnv adds KEY=VALUE entries to the child's environment.
func WithEnv(env ...string) Option {
	return func(p *Provider) { p.env = append(p.env, env...) }
}

// Provider streams prompts through codexpc-cli.
type Provider struct {
	path         string
	service      string
	checkpoint   string
	drainTimeout time.Duration
	env          []string

	logger  *slog.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
}

// NewProvider creates a provider that runs cfg.CLIPath.
func NewProvider(cfg *codexpc.Config, opts ...Option) (*Provider, error) {
	if cfg == nil || cfg.Checkpoint == "" {
		return nil, &codexpc.EnvVarError{
			Var:          codexpc.EnvCheckpoint,
			Alternatives: []string{codexpc.EnvCheckpointPath},
			Instructions: "Set CODEXPC_CHECKPOINT to your GPT-OSS checkpoint path",
		}
	}

	p := &Provider{
		path:         cfg.CLIPath,
		service:      cfg.Service,
		checkpoint:   cfg.Checkpoint,
		drainTimeout: cfg.DrainTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.path == "" {
		p.path = codexpc.DefaultCLI
	}
	if p.service == "" {
		p.service = codexpc.DefaultService
	}
	if p.drainTimeout <= 0 {
		p.drainTimeout = codexpc.DefaultDrainTimeout
	}
	if p.tracer == nil {
		p.tracer = telemetry.DefaultTracer()
	}
	return p, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() codexpc.ProviderID {
	return codexpc.ProviderCLI
}

// Args returns the command line used for prompt, without the program name.
func (p *Provider) Args(prompt *codexpc.Prompt) []string {
	return []string{
		"--service", p.service,
		"--checkpoint", p.checkpoint,
		"--prompt", codexpc.FormatTranscript(prompt.Instructions, prompt.Input),
		"--max-tokens", strconv.FormatUint(prompt.Params.GetMaxTokens(), 10),
	}
}

// Stream starts codexpc-cli for prompt. A binary that cannot be found or
// started is returned as an error; everything after that arrives on the
// stream.
func (p *Provider) Stream(ctx context.Context, prompt *codexpc.Prompt) (*codexpc.ResponseStream, error) {
	if err := prompt.Validate(); err != nil {
		return nil, err
	}
	if len(prompt.Tools) > 0 {
		p.logger.Warn("codexpc-cli does not accept tools; manifest ignored", "tools", codexpc.ToolNames(prompt.Tools))
	}

	requestID := uuid.NewString()
	logger := p.logger.With("request_id", requestID, "mode", Mode, "checkpoint", p.checkpoint)

	spanCtx, span := p.tracer.TraceRequest(ctx, p.Name().String(), Mode, p.checkpoint)
	p.tracer.SetAttributes(span, "codexpc.request_id", requestID, "codexpc.cli", p.path)

	streamCtx, cancel := context.WithCancel(spanCtx)
	cmd := exec.CommandContext(streamCtx, p.path, p.Args(prompt)...)
	cmd.Env = append(os.Environ(), p.env...)
	cmd.WaitDelay = p.drainTimeout

	r := &run{provider: p, cmd: cmd, span: span, logger: logger, started: time.Now()}
	if err := r.start(); err != nil {
		cancel()
		p.tracer.RecordError(span, err)
		span.End()
		if p.metrics != nil {
			p.metrics.RecordStartFailure(Mode)
		}
		logger.Error("codexpc-cli failed to start", "error", err)

		if errors.Is(err, exec.ErrNotFound) {
			err = fmt.Errorf("%w: %s not found: %w", codexpc.ErrSurfaceUnavailable, p.path, err)
		}
		return nil, &codexpc.ProviderError{Provider: p.Name(), Op: "start", Message: "failed to run " + p.path, Err: err}
	}

	stream := codexpc.NewResponseStream(cancel)
	r.stream = stream
	if p.metrics != nil {
		p.metrics.RequestStarted(Mode)
	}
	logger.Debug("codexpc-cli started", "pid", cmd.Process.Pid)
	go r.pump(streamCtx)
	return stream, nil
}
