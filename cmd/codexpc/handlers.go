package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	codexpc "github.com/haowjy/codexpc-go"
	"github.com/haowjy/codexpc-go/bridge"
	"github.com/haowjy/codexpc-go/harmony"
	"github.com/haowjy/codexpc-go/providers/cli"
	"github.com/haowjy/codexpc-go/providers/daemon"
	"github.com/haowjy/codexpc-go/surface/lorem"
	"github.com/haowjy/codexpc-go/surface/xpc"
	"github.com/haowjy/codexpc-go/telemetry"
)

// loremCheckpoint is used with --surface lorem when no checkpoint is configured.
const loremCheckpoint = "gpt-oss-lorem-fast"

type streamOptions struct {
	prompt      promptOptions
	text        string
	provider    string
	mode        string
	jsonOutput  bool
	showMetrics bool
}

func loadConfig(root *rootOptions) (*codexpc.Config, error) {
	path, err := codexpc.LoadEnv()
	if err != nil {
		return nil, err
	}
	if path != "" {
		slog.Debug("loaded .env", "path", path)
	}

	overrides := codexpc.Overrides{
		Service:      root.service,
		Checkpoint:   root.checkpoint,
		CLIPath:      root.cliPath,
		DrainTimeout: root.drainTimeout,
		ConfigFile:   root.configFile,
	}
	cfg, err := codexpc.LoadConfig(overrides)
	var envErr *codexpc.EnvVarError
	if errors.As(err, &envErr) && root.surface == "lorem" {
		overrides.Checkpoint = loremCheckpoint
		return codexpc.LoadConfig(overrides)
	}
	return cfg, err
}

func newSurface(root *rootOptions, logger *slog.Logger) (bridge.Surface, error) {
	switch root.surface {
	case "lorem":
		return lorem.NewSurface(lorem.WithLogger(logger)), nil
	case "xpc":
		if !xpc.Available {
			return nil, fmt.Errorf("%w: this binary was built without the XPC binding (rebuild on macOS with -tags codexpc_xpc, or use --surface lorem)",
				codexpc.ErrSurfaceUnavailable)
		}
		return xpc.New(xpc.WithLogger(logger)), nil
	default:
		return nil, fmt.Errorf("unknown surface %q (expected xpc or lorem)", root.surface)
	}
}

// parseParams decodes --params, inline or from the file named after '@'.
// YAML is a superset of JSON, so both forms are accepted.
func parseParams(raw string) (*codexpc.RequestParams, error) {
	if raw == "" {
		return &codexpc.RequestParams{}, nil
	}
	data := []byte(raw)
	if path, ok := strings.CutPrefix(raw, "@"); ok {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("read params: %w", err)
		}
	}
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse params: %w", err)
	}
	return codexpc.GetRequestParamStruct(doc)
}

func buildPrompt(opts promptOptions, text string) (*codexpc.Prompt, error) {
	params, err := parseParams(opts.params)
	if err != nil {
		return nil, err
	}
	if params.PrimeFinal == nil {
		params.PrimeFinal = &opts.primeFinal
	}
	prompt := &codexpc.Prompt{
		Instructions: opts.instructions,
		Input:        []codexpc.ResponseItem{codexpc.UserMessage(text)},
		Encoding:     opts.encoding,
		Params:       params,
	}
	if opts.maxTokens > 0 {
		prompt.Params.MaxTokens = &opts.maxTokens
	}
	if opts.temperature >= 0 {
		prompt.Params.Temperature = &opts.temperature
	}
	tools, err := codexpc.ToolManifest(opts.tools...)
	if err != nil {
		return nil, err
	}
	prompt.Tools = tools
	return prompt, prompt.Validate()
}

func runStream(cmd *cobra.Command, root *rootOptions, opts streamOptions) error {
	logger, err := newLogger(root.logLevel)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	prompt, err := buildPrompt(opts.prompt, opts.text)
	if err != nil {
		return err
	}

	tracer, shutdown := telemetry.NewTracer(telemetry.TraceConfig{
		Endpoint:       root.otlpEndpoint,
		Insecure:       root.otlpInsecure,
		ServiceVersion: version,
	})
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("trace shutdown failed", "error", err)
		}
	}()
	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)

	var provider codexpc.Provider
	switch opts.provider {
	case "daemon":
		mode, err := daemon.ParseMode(opts.mode)
		if err != nil {
			return err
		}
		surface, err := newSurface(root, logger)
		if err != nil {
			return err
		}
		daemonOpts := []daemon.Option{
			daemon.WithMode(mode),
			daemon.WithLogger(logger),
			daemon.WithMetrics(metrics),
			daemon.WithTracer(tracer),
		}
		if mode == daemon.ModeTokens {
			logger.Warn("tokens mode uses the byte tokenizer; only the simulated daemon accepts its ids")
			daemonOpts = append(daemonOpts, daemon.WithTokenizer(harmony.ByteTokenizer{}))
		}
		if provider, err = daemon.NewProvider(surface, cfg, daemonOpts...); err != nil {
			return err
		}
	case "cli":
		if provider, err = cli.NewProvider(cfg, cli.WithLogger(logger), cli.WithMetrics(metrics), cli.WithTracer(tracer)); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown provider %q (expected daemon or cli)", opts.provider)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stream, err := provider.Stream(ctx, prompt)
	if err != nil {
		return err
	}
	defer stream.Close()

	out := &printer{w: cmd.OutOrStdout(), jsonLines: opts.jsonOutput}
	var streamErr error
	for ev := range stream.Events() {
		if err := out.print(ev); err != nil {
			return err
		}
		if ev.Err != nil {
			streamErr = ev.Err
		}
	}
	out.finish()

	if opts.showMetrics {
		if err := writeMetrics(cmd.ErrOrStderr(), registry); err != nil {
			return err
		}
	}
	if streamErr != nil {
		return streamErr
	}
	if ctx.Err() != nil {
		return fmt.Errorf("interrupted: %w", ctx.Err())
	}
	return nil
}

func runHandshake(cmd *cobra.Command, root *rootOptions, raw bool) error {
	logger, err := newLogger(root.logLevel)
	if err != nil {
		return err
	}
	service := root.service
	if cfg, err := loadConfig(root); err == nil {
		service = cfg.Service
	} else if service == "" {
		service = codexpc.DefaultService
	}

	surface, err := newSurface(root, logger)
	if err != nil {
		return err
	}

	if raw {
		answer, ok := surface.Handshake(service)
		if !ok {
			return fmt.Errorf("service %s returned no handshake", service)
		}
		fmt.Fprintln(cmd.OutOrStdout(), answer)
		return nil
	}

	info, ok := bridge.Handshake(surface, service)
	if !ok {
		return fmt.Errorf("service %s returned no usable handshake", service)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "service:        %s\n", service)
	fmt.Fprintf(w, "encoding:       %s\n", info.Encoding())
	fmt.Fprintf(w, "special tokens: %s\n", strings.Join(info.SpecialTokens, " "))
	fmt.Fprintf(w, "stop tokens:    %s\n", strings.Join(info.StopTokensForAssistantActions, " "))

	profile, err := info.Profile(codexpc.GetCapabilityRegistry())
	if err != nil {
		fmt.Fprintf(w, "profile:        none (%v)\n", err)
		return nil
	}
	if missing := info.MissingSpecialTokens(profile); len(missing) > 0 {
		fmt.Fprintf(w, "missing ids:    %s\n", strings.Join(missing, " "))
	}
	return nil
}

func runEncode(cmd *cobra.Command, opts promptOptions, target, text string) error {
	prompt, err := buildPrompt(opts, text)
	if err != nil {
		return err
	}
	profile, err := codexpc.GetCapabilityRegistry().GetProfile(prompt.EncodingOr(codexpc.DefaultEncoding))
	if err != nil {
		return err
	}

	toolMode := harmony.ToolsAsText
	if target == "tokens" && profile.Features.ToolNamespace {
		toolMode = harmony.ToolsAsNamespace
	}
	conv := harmony.Encode(prompt.Instructions, prompt.Input, prompt.Tools, harmony.Options{ToolMode: toolMode})

	var data []byte
	switch target {
	case "text":
		data = conv.JSON()
	case "messages":
		data = conv.MessagesJSON()
	case "tokens":
		tokens, err := harmony.Render(conv, harmony.ByteTokenizer{}, harmony.RenderOptions{SpecialTokens: profile.SpecialTokens})
		if err != nil {
			return err
		}
		if data, err = json.Marshal(tokens); err != nil {
			return err
		}
	case "tools":
		data = []byte("[]")
		if tools := harmony.ToolsJSON(prompt.Tools); tools != nil {
			data = []byte(*tools)
		}
	default:
		return fmt.Errorf("unknown target %q (expected text, messages, tokens or tools)", target)
	}

	var pretty bytes.Buffer
	if target != "tokens" && json.Indent(&pretty, data, "", "  ") == nil {
		data = pretty.Bytes()
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func writeMetrics(w io.Writer, registry *prometheus.Registry) error {
	families, err := registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// printer renders response events for the terminal.
type printer struct {
	w         io.Writer
	jsonLines bool
	midLine   bool
}

type jsonEvent struct {
	Type       codexpc.ResponseEventType `json:"type"`
	Delta      string                    `json:"delta,omitempty"`
	Item       *codexpc.ResponseItem     `json:"item,omitempty"`
	ResponseID string                    `json:"response_id,omitempty"`
	Usage      *codexpc.TokenUsage       `json:"usage,omitempty"`
	Error      string                    `json:"error,omitempty"`
}

func (p *printer) print(ev codexpc.ResponseEvent) error {
	if p.jsonLines {
		line := jsonEvent{Type: ev.Type, Delta: ev.Delta, Item: ev.Item, ResponseID: ev.ResponseID, Usage: ev.Usage}
		if ev.Err != nil {
			line.Error = ev.Err.Error()
		}
		return json.NewEncoder(p.w).Encode(line)
	}

	switch ev.Type {
	case codexpc.ResponseEventOutputTextDelta:
		fmt.Fprint(p.w, ev.Delta)
		p.midLine = !strings.HasSuffix(ev.Delta, "\n")
	case codexpc.ResponseEventOutputItemDone:
		switch {
		case ev.Item.IsToolCall():
			p.finish()
			fmt.Fprintf(p.w, "[tool call %s %s] %s\n", ev.Item.Name, ev.Item.CallID, ev.Item.Input)
		case ev.Item.IsToolOutput():
			p.finish()
			fmt.Fprintf(p.w, "[tool output %s] %s\n", ev.Item.CallID, ev.Item.Output)
		}
	case codexpc.ResponseEventCompleted:
		p.finish()
		if ev.Usage != nil {
			fmt.Fprintf(p.w, "[completed %s: %d input, %d output tokens]\n",
				ev.ResponseID, ev.Usage.InputTokens, ev.Usage.OutputTokens)
		}
	case codexpc.ResponseEventError:
		p.finish()
	}
	return nil
}

func (p *printer) finish() {
	if p.midLine {
		fmt.Fprintln(p.w)
		p.midLine = false
	}
}
