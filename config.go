package codexpc

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read by LoadConfig
const (
	EnvService        = "CODEXPC_SERVICE"
	EnvCheckpoint     = "CODEXPC_CHECKPOINT"
	EnvCheckpointPath = "CODEXPC_CHECKPOINT_PATH"
	EnvCLI            = "CODEXPC_CLI"
	EnvDrainTimeout   = "CODEXPC_DRAIN_TIMEOUT"
	EnvConfigFile     = "CODEXPC_CONFIG"
)

// Defaults applied when nothing else sets a field
const (
	DefaultService      = "com.yourorg.codexpc"
	DefaultCLI          = "codexpc-cli"
	DefaultDrainTimeout = 5 * time.Second
)

// Config is the resolved configuration for reaching the daemon.
// Service and Checkpoint are opaque to this package.
type Config struct {
	Service      string
	Checkpoint   string
	CLIPath      string
	DrainTimeout time.Duration
}

// Overrides are explicit values that win over every other source.
// Empty fields are ignored.
type Overrides struct {
	Service      string
	Checkpoint   string
	CLIPath      string
	DrainTimeout time.Duration
	ConfigFile   string
}

// fileConfig is the YAML layout of CODEXPC_CONFIG
type fileConfig struct {
	Service      string `yaml:"service"`
	Checkpoint   string `yaml:"checkpoint"`
	CLI          string `yaml:"cli"`
	DrainTimeout string `yaml:"drain_timeout"`
}

// LoadConfig resolves each field from, in order: the explicit override, the
// environment, the YAML file named by CODEXPC_CONFIG, and a fixed default.
// A missing checkpoint is reported as *EnvVarError.
func LoadConfig(o Overrides) (*Config, error) {
	var file fileConfig
	path := firstNonEmpty(o.ConfigFile, os.Getenv(EnvConfigFile))
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		Service:    firstNonEmpty(o.Service, os.Getenv(EnvService), file.Service, DefaultService),
		Checkpoint: firstNonEmpty(o.Checkpoint, os.Getenv(EnvCheckpoint), os.Getenv(EnvCheckpointPath), file.Checkpoint),
		CLIPath:    firstNonEmpty(o.CLIPath, os.Getenv(EnvCLI), file.CLI, DefaultCLI),
	}

	if cfg.Checkpoint == "" {
		return nil, &EnvVarError{
			Var:          EnvCheckpoint,
			Alternatives: []string{EnvCheckpointPath},
			Instructions: "Set CODEXPC_CHECKPOINT to your GPT-OSS checkpoint path",
		}
	}

	drain, err := resolveDuration(o.DrainTimeout, os.Getenv(EnvDrainTimeout), file.DrainTimeout)
	if err != nil {
		return nil, err
	}
	cfg.DrainTimeout = drain

	return cfg, nil
}

func resolveDuration(override time.Duration, env, file string) (time.Duration, error) {
	if override > 0 {
		return override, nil
	}
	for _, src := range []struct{ name, value string }{{EnvDrainTimeout, env}, {"drain_timeout", file}} {
		if src.value == "" {
			continue
		}
		d, err := time.ParseDuration(src.value)
		if err != nil || d <= 0 {
			return 0, &ValidationError{Field: src.name, Value: src.value, Reason: "must be a positive duration", Err: ErrInvalidRequest}
		}
		return d, nil
	}
	return DefaultDrainTimeout, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// LoadEnv searches for a .env file starting from the current directory and
// walking up the directory tree, and loads the first one found. Variables
// already set in the environment are not overridden. Returns the loaded path,
// or "" when no .env file exists.
func LoadEnv() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return LoadEnvFrom(dir)
}

// LoadEnvFrom is LoadEnv starting at dir.
func LoadEnvFrom(dir string) (string, error) {
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				return "", fmt.Errorf("load %s: %w", envPath, err)
			}
			return envPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}
