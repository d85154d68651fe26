package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	service      string
	checkpoint   string
	cliPath      string
	configFile   string
	drainTimeout time.Duration
	surface      string
	logLevel     string
	otlpEndpoint string
	otlpInsecure bool
}

// promptOptions describe the prompt for stream and encode.
type promptOptions struct {
	instructions string
	tools        []string
	maxTokens    int
	temperature  float64
	encoding     string
	primeFinal   bool
	params       string
}

func buildRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "codexpc",
		Short: "Stream prompts through the codexpc generation daemon",
		Long: `codexpc streams Harmony-encoded prompts through a local GPT-OSS daemon
and reassembles the daemon's callbacks into an ordered event stream.

Surfaces:
  xpc    the daemon's XPC client library (darwin, built with -tags codexpc_xpc)
  lorem  an in-process simulated daemon, for development without a checkpoint`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.service, "service", "", "Daemon service name (or set CODEXPC_SERVICE)")
	flags.StringVar(&opts.checkpoint, "checkpoint", "", "Checkpoint path (or set CODEXPC_CHECKPOINT)")
	flags.StringVar(&opts.cliPath, "cli", "", "codexpc-cli binary for --provider cli (or set CODEXPC_CLI)")
	flags.StringVar(&opts.configFile, "config", "", "YAML configuration file (or set CODEXPC_CONFIG)")
	flags.DurationVar(&opts.drainTimeout, "drain-timeout", 0, "How long to wait for the daemon after cancel")
	flags.StringVar(&opts.surface, "surface", "xpc", "Foreign call surface: xpc or lorem")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	flags.StringVar(&opts.otlpEndpoint, "otlp-endpoint", "", "OTLP gRPC collector for request spans (e.g. localhost:4317)")
	flags.BoolVar(&opts.otlpInsecure, "otlp-insecure", false, "Disable TLS for the OTLP connection")

	rootCmd.AddCommand(
		buildStreamCmd(opts),
		buildHandshakeCmd(opts),
		buildEncodeCmd(),
	)
	return rootCmd
}

func addPromptFlags(cmd *cobra.Command, p *promptOptions) {
	cmd.Flags().StringVar(&p.instructions, "instructions", "", "System instructions (default: channel guidance)")
	cmd.Flags().StringSliceVar(&p.tools, "tool", nil, "Built-in tool to offer (echo, upper); repeatable")
	cmd.Flags().IntVar(&p.maxTokens, "max-tokens", 0, "Maximum generated tokens (0 means unlimited)")
	cmd.Flags().Float64Var(&p.temperature, "temperature", -1, "Sampling temperature (unset when negative)")
	cmd.Flags().StringVar(&p.encoding, "encoding", "", "Encoding profile (default: the daemon's)")
	cmd.Flags().BoolVar(&p.primeFinal, "prime-final", true, "Seed the final channel in tokens mode")
	cmd.Flags().StringVar(&p.params, "params", "", "Request params as a YAML/JSON object, or @file; explicit flags win")
}

func buildStreamCmd(root *rootOptions) *cobra.Command {
	var (
		prompt      promptOptions
		provider    string
		mode        string
		jsonOutput  bool
		showMetrics bool
	)

	cmd := &cobra.Command{
		Use:   "stream <prompt>",
		Short: "Stream a response for a prompt",
		Long: `Stream a response for a single user message.

Text deltas are printed as they arrive; tool calls and their outputs are
printed as bracketed lines. With --json every event is printed as one JSON
object per line. Interrupting the command cancels the request.

Providers:
  daemon  encode locally and stream through the selected surface (default)
  cli     run codexpc-cli and scrape its stdout`,
		Example: `  codexpc stream --surface lorem --checkpoint gpt-oss-fast "Hello"
  codexpc stream --mode tokens --max-tokens 64 "Count to five"
  codexpc stream --provider cli "Summarise XPC in one line"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStream(cmd, root, streamOptions{
				prompt:      prompt,
				text:        args[0],
				provider:    provider,
				mode:        mode,
				jsonOutput:  jsonOutput,
				showMetrics: showMetrics,
			})
		},
	}
	addPromptFlags(cmd, &prompt)
	cmd.Flags().StringVar(&provider, "provider", "daemon", "Provider: daemon or cli")
	cmd.Flags().StringVar(&mode, "mode", "text", "Input mode: text, messages or tokens")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print events as JSON lines")
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "Print request metrics to stderr when done")
	return cmd
}

func buildHandshakeCmd(root *rootOptions) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "handshake",
		Short: "Ask the daemon for its encoding and special tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHandshake(cmd, root, raw)
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the daemon's answer verbatim")
	return cmd
}

func buildEncodeCmd() *cobra.Command {
	var (
		prompt promptOptions
		target string
	)
	cmd := &cobra.Command{
		Use:   "encode <prompt>",
		Short: "Print what would be sent to the daemon for a prompt",
		Long: `Print the encoded request without contacting the daemon.

Targets:
  text      the conversation document sent by text mode
  messages  the messages array sent by messages mode
  tokens    the token prefill (byte tokenizer; diagnostic only)
  tools     the tool manifest JSON`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEncode(cmd, prompt, target, args[0])
		},
	}
	addPromptFlags(cmd, &prompt)
	cmd.Flags().StringVar(&target, "target", "text", "Encoding target: text, messages, tokens or tools")
	return cmd
}
