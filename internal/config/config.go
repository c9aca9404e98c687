// Package config manages mcstrackd daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete mcstrackd configuration.
type Config struct {
	API        APIConfig        `koanf:"api"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Log        LogConfig        `koanf:"log"`
	Controller ControllerConfig `koanf:"controller"`
	Peers      []PeerConfig     `koanf:"peers"`
}

// APIConfig holds the read-only HTTP JSON API configuration.
type APIConfig struct {
	// Addr is the HTTP listen address (e.g., ":8760").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// ControllerConfig holds the controller core parameters.
type ControllerConfig struct {
	// TickInterval is the period of the controller's driver loop.
	TickInterval time.Duration `koanf:"tick_interval"`

	// AttemptCountMaximum is the number of failed connection attempts
	// before a peer session is aborted.
	AttemptCountMaximum int `koanf:"attempt_count_maximum"`

	// AttemptTimeGap is the delay between connection attempts.
	AttemptTimeGap time.Duration `koanf:"attempt_time_gap"`

	// WebsocketMaxFrameBytes bounds a received websocket frame. The default
	// accommodates uncompressed full-frame camera images.
	WebsocketMaxFrameBytes int64 `koanf:"websocket_max_frame_bytes"`
}

// PeerConfig describes a declarative fleet member from the configuration
// file. Each entry creates a peer record on daemon startup.
type PeerConfig struct {
	// Label is the unique fleet-wide peer identifier.
	Label string `koanf:"label"`

	// Role is the component role: "detector" or "pose_solver".
	Role string `koanf:"role"`

	// Host is the peer's address, IP or hostname.
	Host string `koanf:"host"`

	// Port is the peer's websocket port.
	Port uint16 `koanf:"port"`

	// ConnectOnStart connects the peer as soon as the daemon starts.
	ConnectOnStart bool `koanf:"connect_on_start"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
//
// The 15ms tick interval tracks a ~60Hz camera frame period so a detector
// poll is never more than one frame stale.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Addr: ":8760",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Controller: ControllerConfig{
			TickInterval:           15 * time.Millisecond,
			AttemptCountMaximum:    5,
			AttemptTimeGap:         5 * time.Second,
			WebsocketMaxFrameBytes: 1 << 48,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for mcstrackd configuration.
// Variables are named MCSTRACK_<section>_<key>, e.g., MCSTRACK_API_ADDR.
// Every underscore after the prefix becomes a key separator, so keys that
// themselves contain an underscore (such as controller.tick_interval) cannot
// be set from the environment.
const envPrefix = "MCSTRACK_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (MCSTRACK_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	MCSTRACK_API_ADDR     -> api.addr
//	MCSTRACK_METRICS_ADDR -> metrics.addr
//	MCSTRACK_METRICS_PATH -> metrics.path
//	MCSTRACK_LOG_LEVEL    -> log.level
//	MCSTRACK_LOG_FORMAT   -> log.format
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	// MCSTRACK_API_ADDR -> api.addr (strip prefix, lowercase, _ -> .).
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms MCSTRACK_API_ADDR -> api.addr.
// Strips the MCSTRACK_ prefix, lowercases, and replaces _ with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"api.addr":                             defaults.API.Addr,
		"metrics.addr":                         defaults.Metrics.Addr,
		"metrics.path":                         defaults.Metrics.Path,
		"log.level":                            defaults.Log.Level,
		"log.format":                           defaults.Log.Format,
		"controller.tick_interval":             defaults.Controller.TickInterval.String(),
		"controller.attempt_count_maximum":     defaults.Controller.AttemptCountMaximum,
		"controller.attempt_time_gap":          defaults.Controller.AttemptTimeGap.String(),
		"controller.websocket_max_frame_bytes": defaults.Controller.WebsocketMaxFrameBytes,
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
	// ErrEmptyAPIAddr indicates the API listen address is empty.
	ErrEmptyAPIAddr = errors.New("api.addr must not be empty")

	// ErrInvalidTickInterval indicates the tick interval is not positive.
	ErrInvalidTickInterval = errors.New("controller.tick_interval must be > 0")

	// ErrInvalidAttemptCount indicates the attempt maximum is below one.
	ErrInvalidAttemptCount = errors.New("controller.attempt_count_maximum must be >= 1")

	// ErrInvalidAttemptGap indicates the attempt gap is not positive.
	ErrInvalidAttemptGap = errors.New("controller.attempt_time_gap must be > 0")

	// ErrInvalidMaxFrameBytes indicates the frame limit is not positive.
	ErrInvalidMaxFrameBytes = errors.New("controller.websocket_max_frame_bytes must be > 0")

	// ErrEmptyPeerLabel indicates a peer entry has no label.
	ErrEmptyPeerLabel = errors.New("peer label must not be empty")

	// ErrInvalidPeerRole indicates a peer entry has an unrecognized role.
	ErrInvalidPeerRole = errors.New("peer role must be detector or pose_solver")

	// ErrEmptyPeerHost indicates a peer entry has no host.
	ErrEmptyPeerHost = errors.New("peer host must not be empty")

	// ErrInvalidPeerPort indicates a peer entry has a zero port.
	ErrInvalidPeerPort = errors.New("peer port must be nonzero")

	// ErrDuplicatePeerLabel indicates two peer entries share a label.
	ErrDuplicatePeerLabel = errors.New("duplicate peer label")
)

// ValidPeerRoles lists the recognized peer role strings.
var ValidPeerRoles = map[string]bool{
	"detector":    true,
	"pose_solver": true,
}

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.API.Addr == "" {
		return ErrEmptyAPIAddr
	}
	if cfg.Controller.TickInterval <= 0 {
		return ErrInvalidTickInterval
	}
	if cfg.Controller.AttemptCountMaximum < 1 {
		return ErrInvalidAttemptCount
	}
	if cfg.Controller.AttemptTimeGap <= 0 {
		return ErrInvalidAttemptGap
	}
	if cfg.Controller.WebsocketMaxFrameBytes <= 0 {
		return ErrInvalidMaxFrameBytes
	}
	return validatePeers(cfg.Peers)
}

// validatePeers checks each declarative peer entry for correctness.
func validatePeers(peers []PeerConfig) error {
	seen := make(map[string]struct{}, len(peers))

	for i, pc := range peers {
		if pc.Label == "" {
			return fmt.Errorf("peers[%d]: %w", i, ErrEmptyPeerLabel)
		}
		if !ValidPeerRoles[pc.Role] {
			return fmt.Errorf("peers[%d] role %q: %w", i, pc.Role, ErrInvalidPeerRole)
		}
		if pc.Host == "" {
			return fmt.Errorf("peers[%d]: %w", i, ErrEmptyPeerHost)
		}
		if pc.Port == 0 {
			return fmt.Errorf("peers[%d]: %w", i, ErrInvalidPeerPort)
		}
		if _, dup := seen[pc.Label]; dup {
			return fmt.Errorf("peers[%d] label %q: %w", i, pc.Label, ErrDuplicatePeerLabel)
		}
		seen[pc.Label] = struct{}{}
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
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
