// Package main provides the codexpc command: stream prompts through the
// codexpc daemon, inspect its capabilities, and show what the encoder sends.
//
// # Basic Usage
//
// Stream a prompt through the simulated daemon:
//
//	codexpc stream --surface lorem --checkpoint gpt-oss-fast "Tell me about XPC"
//
// Ask the daemon for its encoding:
//
//	codexpc handshake
//
// Print the conversation document for a prompt:
//
//	codexpc encode --tool echo "Echo hello"
//
// # Environment Variables
//
//   - CODEXPC_SERVICE: daemon service name (default: com.yourorg.codexpc)
//   - CODEXPC_CHECKPOINT or CODEXPC_CHECKPOINT_PATH: checkpoint path (required)
//   - CODEXPC_CLI: codexpc-cli binary used by --provider cli
//   - CODEXPC_DRAIN_TIMEOUT: how long to drain after cancel
//   - CODEXPC_CONFIG: YAML configuration file
package main

import (
	"fmt"
	"log/slog"
	"os"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}
