package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/invisa-link/internal/ble"
	"github.com/chaz8081/invisa-link/internal/ble/protocol"
)

// Config holds all application configuration.
type Config struct {
	LogLevel string        `yaml:"log_level"`
	Address  string        `yaml:"address"` // known peripheral; empty means scan
	Scan     ScanConfig    `yaml:"scan"`
	Session  SessionConfig `yaml:"session"`
	Link     LinkConfig    `yaml:"link"`
	Roles    []RoleConfig  `yaml:"roles"`
	Relay    RelayConfig   `yaml:"relay"`
}

// ScanConfig holds device discovery settings.
type ScanConfig struct {
	NameMarker string        `yaml:"name_marker"`
	Period     time.Duration `yaml:"period"`
	Continuous bool          `yaml:"continuous"`
}

// SessionConfig holds GATT session settings.
type SessionConfig struct {
	OpTimeout   time.Duration  `yaml:"op_timeout"`
	EventBuffer int            `yaml:"event_buffer"`
	Assembly    AssemblyConfig `yaml:"assembly"`
}

// AssemblyConfig selects how notification fragments form messages.
type AssemblyConfig struct {
	Mode       string `yaml:"mode"`       // "none", "terminator" or "length-prefix"
	Terminator string `yaml:"terminator"` // payload notation, e.g. "0x0a"
	MaxSize    int    `yaml:"max_size"`
}

// LinkConfig holds write queueing and reconnection settings used by the
// long-running commands.
type LinkConfig struct {
	Reconnect       bool          `yaml:"reconnect"`
	ReconnectMax    int           `yaml:"reconnect_max"` // seconds
	ChunkSize       int           `yaml:"chunk_size"`
	InterChunkDelay time.Duration `yaml:"inter_chunk_delay"`
	QueueSize       int           `yaml:"queue_size"`
}

// RoleConfig binds a role name to its service and characteristic.
type RoleConfig struct {
	Name           string `yaml:"name"`
	Service        string `yaml:"service"`
	Characteristic string `yaml:"characteristic"`
	Ack            string `yaml:"ack,omitempty"` // written back after each read
}

// RelayConfig holds the event relay settings.
type RelayConfig struct {
	Listen string `yaml:"listen"`
}

// Assembly modes.
const (
	AssemblyNone         = "none"
	AssemblyTerminator   = "terminator"
	AssemblyLengthPrefix = "length-prefix"
)

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "invisa-link")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Scan: ScanConfig{
			NameMarker: ble.DefaultNameMarker,
			Period:     ble.DefaultScanPeriod,
		},
		Session: SessionConfig{
			OpTimeout:   10 * time.Second,
			EventBuffer: 64,
			Assembly: AssemblyConfig{
				Mode:       AssemblyNone,
				Terminator: "0x0a",
				MaxSize:    ble.DefaultMaxMessageSize,
			},
		},
		Link: LinkConfig{
			ReconnectMax:    30,
			ChunkSize:       protocol.MaxWritePayload(protocol.DefaultMTU),
			InterChunkDelay: 20 * time.Millisecond,
			QueueSize:       64,
		},
		Roles: []RoleConfig{
			{
				Name:           string(ble.RoleBatteryLevel),
				Service:        ble.BatteryServiceUUID,
				Characteristic: ble.BatteryLevelCharUUID,
			},
		},
		Relay: RelayConfig{
			Listen: "127.0.0.1:8787",
		},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. A roles list in the file replaces the default roles.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(expandTilde(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	cfg.Roles = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if cfg.Roles == nil {
		cfg.Roles = Default().Roles
	}

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	if strings.TrimSpace(c.Scan.NameMarker) == "" {
		return fmt.Errorf("scan.name_marker must not be empty")
	}
	if c.Scan.Period <= 0 {
		return fmt.Errorf("scan.period must be > 0")
	}

	if c.Session.EventBuffer <= 0 {
		return fmt.Errorf("session.event_buffer must be > 0")
	}
	switch c.Session.Assembly.Mode {
	case AssemblyNone, AssemblyLengthPrefix:
	case AssemblyTerminator:
		b, err := protocol.ParsePayload(c.Session.Assembly.Terminator)
		if err != nil {
			return fmt.Errorf("session.assembly.terminator: %w", err)
		}
		if len(b) != 1 {
			return fmt.Errorf("session.assembly.terminator must be a single byte, got %d", len(b))
		}
	default:
		return fmt.Errorf("session.assembly.mode must be none, terminator, or length-prefix, got %q", c.Session.Assembly.Mode)
	}
	if c.Session.Assembly.MaxSize <= 0 {
		return fmt.Errorf("session.assembly.max_size must be > 0")
	}

	if c.Link.ChunkSize <= 0 {
		return fmt.Errorf("link.chunk_size must be > 0")
	}
	if c.Link.ReconnectMax <= 0 {
		return fmt.Errorf("link.reconnect_max must be > 0")
	}
	if c.Link.QueueSize <= 0 {
		return fmt.Errorf("link.queue_size must be > 0")
	}

	if len(c.Roles) == 0 {
		return fmt.Errorf("roles must not be empty")
	}
	seen := make(map[string]bool)
	for i, r := range c.Roles {
		if r.Name == "" {
			return fmt.Errorf("roles[%d].name must not be empty", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("roles[%d].name %q is duplicated", i, r.Name)
		}
		seen[r.Name] = true
		if _, err := ble.ParseUUID(r.Service); err != nil {
			return fmt.Errorf("roles[%d].service: %w", i, err)
		}
		if _, err := ble.ParseUUID(r.Characteristic); err != nil {
			return fmt.Errorf("roles[%d].characteristic: %w", i, err)
		}
		if r.Ack != "" {
			if _, err := protocol.ParsePayload(r.Ack); err != nil {
				return fmt.Errorf("roles[%d].ack: %w", i, err)
			}
		}
	}

	if c.Relay.Listen == "" {
		return fmt.Errorf("relay.listen must not be empty")
	}

	return nil
}

// RoleSpecs converts the configured roles. Call Validate first.
func (c *Config) RoleSpecs() []ble.RoleSpec {
	specs := make([]ble.RoleSpec, 0, len(c.Roles))
	for _, r := range c.Roles {
		spec := ble.RoleSpec{
			Role:               ble.Role(r.Name),
			ServiceUUID:        r.Service,
			CharacteristicUUID: r.Characteristic,
		}
		if r.Ack != "" {
			spec.Ack, _ = protocol.ParsePayload(r.Ack)
		}
		specs = append(specs, spec)
	}
	return specs
}

// SessionOptions builds session options from the config. Call Validate
// first.
func (c *Config) SessionOptions() ble.SessionOptions {
	opts := ble.DefaultSessionOptions()
	opts.Roles = c.RoleSpecs()
	opts.OpTimeout = c.Session.OpTimeout
	if opts.OpTimeout == 0 {
		opts.OpTimeout = -1
	}
	opts.EventBuffer = c.Session.EventBuffer
	opts.MaxMessageSize = c.Session.Assembly.MaxSize

	switch c.Session.Assembly.Mode {
	case AssemblyTerminator:
		b, _ := protocol.ParsePayload(c.Session.Assembly.Terminator)
		if len(b) == 1 {
			opts.Complete = ble.Terminator(b[0])
		}
	case AssemblyLengthPrefix:
		opts.Complete = ble.LengthPrefix()
	}
	return opts
}

// ScannerOptions builds scanner options from the config.
func (c *Config) ScannerOptions() ble.ScannerOptions {
	return ble.ScannerOptions{
		NameMarker: c.Scan.NameMarker,
		Period:     c.Scan.Period,
	}
}

// ClientOptions builds client options from the config.
func (c *Config) ClientOptions() ble.ClientOptions {
	return ble.ClientOptions{
		QueueSize:       c.Link.QueueSize,
		ReconnectMax:    c.Link.ReconnectMax,
		InterChunkDelay: c.Link.InterChunkDelay,
		ChunkSize:       c.Link.ChunkSize,
		Reconnect:       c.Link.Reconnect,
	}
}

// ParseLogLevel maps a log_level value to a slog level. Unknown values
// map to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
