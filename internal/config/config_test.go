package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/var/run/stpipc.sock", cfg.IPC.Socket)
	assert.Equal(t, ":9302", cfg.Metrics.Addr)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, uint16(255), cfg.Stp.MaxInstances)
	assert.Equal(t, int32(512), cfg.Stp.MaxPorts)
	assert.True(t, cfg.Stp.ExtendMode)
}

func TestLoadYamlFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stpd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
  format: text
stp:
  max_instances: 64
  extend_mode: false
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, uint16(64), cfg.Stp.MaxInstances)
	assert.False(t, cfg.Stp.ExtendMode)

	// Untouched sections keep their defaults.
	assert.Equal(t, ":9302", cfg.Metrics.Addr)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("STPD_LOG_LEVEL", "warn")
	t.Setenv("STPD_IPC_SOCKET", "/tmp/test-stpipc.sock")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "/tmp/test-stpipc.sock", cfg.IPC.Socket)
}

func TestValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IPC.Socket = ""
	assert.ErrorIs(t, Validate(cfg), ErrEmptyIPCSocket)

	cfg = DefaultConfig()
	cfg.Stp.MaxInstances = 0
	assert.ErrorIs(t, Validate(cfg), ErrInvalidMaxInstances)

	cfg = DefaultConfig()
	cfg.Stp.MaxPorts = 1
	assert.ErrorIs(t, Validate(cfg), ErrInvalidMaxPorts)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLogLevel("debug"))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel("info"))
	assert.Equal(t, slog.LevelWarn, ParseLogLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel("bogus"))
}
