package codexpc

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{EnvService, EnvCheckpoint, EnvCheckpointPath, EnvCLI, EnvDrainTimeout, EnvConfigFile} {
		t.Setenv(name, "")
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "codexpc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_MissingCheckpoint(t *testing.T) {
	clearConfigEnv(t)

	_, err := LoadConfig(Overrides{})
	require.Error(t, err)

	var envErr *EnvVarError
	require.True(t, errors.As(err, &envErr))
	assert.Equal(t, EnvCheckpoint, envErr.Var)
	assert.Contains(t, err.Error(), "CODEXPC_CHECKPOINT_PATH")
	assert.True(t, IsUnavailable(err))
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv(EnvCheckpoint, "/models/gpt-oss")

	cfg, err := LoadConfig(Overrides{})
	require.NoError(t, err)
	assert.Equal(t, DefaultService, cfg.Service)
	assert.Equal(t, "/models/gpt-oss", cfg.Checkpoint)
	assert.Equal(t, DefaultCLI, cfg.CLIPath)
	assert.Equal(t, DefaultDrainTimeout, cfg.DrainTimeout)
}

func TestLoadConfig_CheckpointPathFallback(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv(EnvCheckpointPath, "/models/alt")

	cfg, err := LoadConfig(Overrides{})
	require.NoError(t, err)
	assert.Equal(t, "/models/alt", cfg.Checkpoint)
}

func TestLoadConfig_ResolutionOrder(t *testing.T) {
	clearConfigEnv(t)
	path := writeConfigFile(t, `service: file.service
checkpoint: /file/ckpt
cli: /file/cli
drain_timeout: 3s
`)
	t.Setenv(EnvConfigFile, path)

	cfg, err := LoadConfig(Overrides{})
	require.NoError(t, err)
	assert.Equal(t, "file.service", cfg.Service)
	assert.Equal(t, "/file/ckpt", cfg.Checkpoint)
	assert.Equal(t, "/file/cli", cfg.CLIPath)
	assert.Equal(t, 3*time.Second, cfg.DrainTimeout)

	t.Setenv(EnvService, "env.service")
	t.Setenv(EnvDrainTimeout, "7s")
	cfg, err = LoadConfig(Overrides{})
	require.NoError(t, err)
	assert.Equal(t, "env.service", cfg.Service, "env beats file")
	assert.Equal(t, 7*time.Second, cfg.DrainTimeout)

	cfg, err = LoadConfig(Overrides{Service: "override.service", DrainTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "override.service", cfg.Service, "override beats env")
	assert.Equal(t, time.Second, cfg.DrainTimeout)
	assert.Equal(t, "/file/ckpt", cfg.Checkpoint)
}

func TestLoadConfig_BadInputs(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv(EnvCheckpoint, "/ckpt")

	t.Setenv(EnvDrainTimeout, "soon")
	_, err := LoadConfig(Overrides{})
	assert.True(t, IsInvalidRequest(err), "bad duration: %v", err)

	t.Setenv(EnvDrainTimeout, "")
	_, err = LoadConfig(Overrides{ConfigFile: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)

	_, err = LoadConfig(Overrides{ConfigFile: writeConfigFile(t, "service: [unterminated")})
	assert.Error(t, err)
}

func TestLoadEnvFrom_WalksUp(t *testing.T) {
	clearConfigEnv(t)
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("CODEXPC_CHECKPOINT=/from/dotenv\n"), 0o644))

	// godotenv does not override variables that are set, even to "".
	require.NoError(t, os.Unsetenv(EnvCheckpoint))

	path, err := LoadEnvFrom(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, ".env"), path)
	assert.Equal(t, "/from/dotenv", os.Getenv(EnvCheckpoint))
}

func TestLoadEnvFrom_NoFile(t *testing.T) {
	dir := t.TempDir()
	path, err := LoadEnvFrom(dir)
	require.NoError(t, err)
	// A .env above the temp dir would be found; only assert it is not in dir.
	assert.NotEqual(t, filepath.Join(dir, ".env"), path)
}
