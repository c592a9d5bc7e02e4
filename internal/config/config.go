// Package config manages stpd daemon configuration using koanf/v2.
//
// Supports YAML files and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration structures
// -------------------------------------------------------------------------

// Config holds the complete stpd configuration.
type Config struct {
	IPC     IPCConfig     `koanf:"ipc"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Stp     StpConfig     `koanf:"stp"`
	State   StateConfig   `koanf:"state"`
}

// IPCConfig holds the unix-socket control endpoint configuration.
type IPCConfig struct {
	// Socket is the unix datagram socket path for config and stpctl.
	Socket string `koanf:"socket"`
}

// MetricsConfig holds the Prometheus endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address (e.g., ":9302"). Empty disables
	// the endpoint.
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint.
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// StpConfig holds the protocol engine sizing and mode.
type StpConfig struct {
	// MaxInstances is the VLAN instance table capacity.
	MaxInstances uint16 `koanf:"max_instances"`

	// MaxPorts is the dense port id capacity (port-channels live in
	// the upper half).
	MaxPorts int32 `koanf:"max_ports"`

	// ExtendMode selects the 802.1t path-cost table.
	ExtendMode bool `koanf:"extend_mode"`
}

// StateConfig holds the published-state store configuration.
type StateConfig struct {
	// DBPath is the bbolt snapshot database path. Empty disables the
	// store.
	DBPath string `koanf:"db_path"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with production defaults.
// 255 instances matches the spanning tree group capacity of common
// switch ASICs; 512 ports leaves half the id space for port-channels.
func DefaultConfig() *Config {
	return &Config{
		IPC: IPCConfig{
			Socket: "/var/run/stpipc.sock",
		},
		Metrics: MetricsConfig{
			Addr: ":9302",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Stp: StpConfig{
			MaxInstances: 255,
			MaxPorts:     512,
			ExtendMode:   true,
		},
		State: StateConfig{
			DBPath: "/var/lib/stpd/state.db",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for stpd configuration.
// Variables are named STPD_<section>_<key>, e.g., STPD_LOG_LEVEL.
const envPrefix = "STPD_"

// Load reads configuration from a YAML file at path (optional), overlays
// environment variable overrides, and merges on top of DefaultConfig().
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k, DefaultConfig()); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// envKeyMapper transforms STPD_LOG_LEVEL -> log.level.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults seeds koanf with the default values as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"ipc.socket":        defaults.IPC.Socket,
		"metrics.addr":      defaults.Metrics.Addr,
		"metrics.path":      defaults.Metrics.Path,
		"log.level":         defaults.Log.Level,
		"log.format":        defaults.Log.Format,
		"stp.max_instances": defaults.Stp.MaxInstances,
		"stp.max_ports":     defaults.Stp.MaxPorts,
		"stp.extend_mode":   defaults.Stp.ExtendMode,
		"state.db_path":     defaults.State.DBPath,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyIPCSocket indicates the IPC socket path is empty.
	ErrEmptyIPCSocket = errors.New("ipc.socket must not be empty")

	// ErrInvalidMaxInstances indicates a zero instance table size.
	ErrInvalidMaxInstances = errors.New("stp.max_instances must be >= 1")

	// ErrInvalidMaxPorts indicates a port table too small to split
	// between physical ports and port-channels.
	ErrInvalidMaxPorts = errors.New("stp.max_ports must be >= 2")
)

// Validate checks the configuration for logical errors.
func Validate(cfg *Config) error {
	if cfg.IPC.Socket == "" {
		return ErrEmptyIPCSocket
	}
	if cfg.Stp.MaxInstances < 1 {
		return ErrInvalidMaxInstances
	}
	if cfg.Stp.MaxPorts < 2 {
		return ErrInvalidMaxPorts
	}
	return nil
}

// -------------------------------------------------------------------------
// Log level parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the
// corresponding slog.Level. Unknown values default to slog.LevelInfo.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
