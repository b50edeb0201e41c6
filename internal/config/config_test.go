package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/invisa-link/internal/ble"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.Scan.NameMarker != "invisa" {
		t.Errorf("Scan.NameMarker = %q, want %q", cfg.Scan.NameMarker, "invisa")
	}
	if cfg.Scan.Period != 10*time.Second {
		t.Errorf("Scan.Period = %v, want 10s", cfg.Scan.Period)
	}
	if cfg.Session.OpTimeout != 10*time.Second {
		t.Errorf("Session.OpTimeout = %v, want 10s", cfg.Session.OpTimeout)
	}
	if cfg.Session.Assembly.Mode != AssemblyNone {
		t.Errorf("Session.Assembly.Mode = %q, want none", cfg.Session.Assembly.Mode)
	}
	if len(cfg.Roles) != 1 || cfg.Roles[0].Name != "battery-level" {
		t.Errorf("Roles = %+v, want only battery-level", cfg.Roles)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
log_level: debug
address: "AA:BB:CC:DD:EE:FF"
scan:
  name_marker: Tag
  period: 5s
  continuous: true
session:
  op_timeout: 2s
  assembly:
    mode: terminator
    terminator: "0x00"
roles:
  - name: emergency
    service: 6e400001-b5a3-f393-e0a9-e50e24dcca9e
    characteristic: 6e400002-b5a3-f393-e0a9-e50e24dcca9e
    ack: "0xff"
relay:
  listen: ":9000"
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.Address != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Address = %q", cfg.Address)
	}
	if cfg.Scan.NameMarker != "Tag" || cfg.Scan.Period != 5*time.Second || !cfg.Scan.Continuous {
		t.Errorf("Scan = %+v", cfg.Scan)
	}
	if cfg.Session.OpTimeout != 2*time.Second {
		t.Errorf("Session.OpTimeout = %v, want 2s", cfg.Session.OpTimeout)
	}
	// Unset fields keep defaults.
	if cfg.Session.EventBuffer != 64 {
		t.Errorf("Session.EventBuffer = %d, want default 64", cfg.Session.EventBuffer)
	}
	if len(cfg.Roles) != 1 || cfg.Roles[0].Name != "emergency" {
		t.Errorf("Roles = %+v, want the file's roles only", cfg.Roles)
	}
	if cfg.Relay.Listen != ":9000" {
		t.Errorf("Relay.Listen = %q", cfg.Relay.Listen)
	}
}

func TestLoadKeepsDefaultRoles(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("log_level: warn\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Roles) != 1 || cfg.Roles[0].Name != "battery-level" {
		t.Errorf("Roles = %+v, want defaults", cfg.Roles)
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)
	if err := os.WriteFile(filepath.Join(tmpHome, "c.yaml"), []byte("log_level: error\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load("~/c.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() should return error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("scan: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(cfgPath); err == nil {
		t.Error("Load() should fail on invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, true},
		{"empty name marker", func(c *Config) { c.Scan.NameMarker = " " }, true},
		{"zero scan period", func(c *Config) { c.Scan.Period = 0 }, true},
		{"zero event buffer", func(c *Config) { c.Session.EventBuffer = 0 }, true},
		{"unknown assembly mode", func(c *Config) { c.Session.Assembly.Mode = "json" }, true},
		{"terminator mode", func(c *Config) { c.Session.Assembly.Mode = AssemblyTerminator }, false},
		{"multi-byte terminator", func(c *Config) {
			c.Session.Assembly.Mode = AssemblyTerminator
			c.Session.Assembly.Terminator = "0x0d0a"
		}, true},
		{"length prefix mode", func(c *Config) { c.Session.Assembly.Mode = AssemblyLengthPrefix }, false},
		{"zero max size", func(c *Config) { c.Session.Assembly.MaxSize = 0 }, true},
		{"zero chunk size", func(c *Config) { c.Link.ChunkSize = 0 }, true},
		{"no roles", func(c *Config) { c.Roles = nil }, true},
		{"role without name", func(c *Config) { c.Roles[0].Name = "" }, true},
		{"duplicate role", func(c *Config) { c.Roles = append(c.Roles, c.Roles[0]) }, true},
		{"bad service uuid", func(c *Config) { c.Roles[0].Service = "nope" }, true},
		{"bad characteristic uuid", func(c *Config) { c.Roles[0].Characteristic = "12345" }, true},
		{"bad ack", func(c *Config) { c.Roles[0].Ack = "0xzz" }, true},
		{"text ack", func(c *Config) { c.Roles[0].Ack = "ok" }, false},
		{"empty relay listen", func(c *Config) { c.Relay.Listen = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSessionOptions(t *testing.T) {
	cfg := Default()
	cfg.Session.Assembly.Mode = AssemblyTerminator
	cfg.Session.Assembly.Terminator = "0x0a"
	cfg.Roles = append(cfg.Roles, RoleConfig{
		Name:           "emergency",
		Service:        "6e400001-b5a3-f393-e0a9-e50e24dcca9e",
		Characteristic: "6e400002-b5a3-f393-e0a9-e50e24dcca9e",
		Ack:            "0xff",
	})

	opts := cfg.SessionOptions()
	if len(opts.Roles) != 2 {
		t.Fatalf("Roles = %d, want 2", len(opts.Roles))
	}
	if opts.Roles[1].Role != ble.RoleEmergency {
		t.Errorf("role = %q", opts.Roles[1].Role)
	}
	if len(opts.Roles[1].Ack) != 1 || opts.Roles[1].Ack[0] != 0xff {
		t.Errorf("ack = %x, want ff", opts.Roles[1].Ack)
	}
	if opts.Complete == nil || !opts.Complete([]byte("x\n")) || opts.Complete([]byte("x")) {
		t.Error("terminator predicate not wired")
	}
	if opts.OpTimeout != 10*time.Second {
		t.Errorf("OpTimeout = %v", opts.OpTimeout)
	}
}

func TestSessionOptionsDisabledTimeout(t *testing.T) {
	cfg := Default()
	cfg.Session.OpTimeout = 0
	if opts := cfg.SessionOptions(); opts.OpTimeout >= 0 {
		t.Errorf("OpTimeout = %v, want disabled", opts.OpTimeout)
	}
	if opts := cfg.SessionOptions(); opts.Complete != nil {
		t.Error("assembly enabled in mode none")
	}
}

func TestScannerAndClientOptions(t *testing.T) {
	cfg := Default()
	cfg.Link.Reconnect = true

	so := cfg.ScannerOptions()
	if so.NameMarker != "invisa" || so.Period != 10*time.Second {
		t.Errorf("ScannerOptions() = %+v", so)
	}
	co := cfg.ClientOptions()
	if !co.Reconnect || co.ChunkSize != 20 || co.QueueSize != 64 {
		t.Errorf("ClientOptions() = %+v", co)
	}
}

func TestWriteDefault_CreatesFile(t *testing.T) {
	// Use a temp dir as fake home to avoid touching real config
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	expectedPath := filepath.Join(tmpHome, ".config", "invisa-link", "config.yaml")
	if path != expectedPath {
		t.Errorf("WriteDefault() path = %q, want %q", path, expectedPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}
	if !strings.HasPrefix(string(data), "# invisa-link") {
		t.Error("written config should start with header comment")
	}

	var raw Config
	if err := yaml.Unmarshal(data, &raw); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}

	// The template must load into a valid config equal to the defaults.
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("template does not validate: %v", err)
	}
	def := Default()
	if cfg.Scan != def.Scan || cfg.Session != def.Session || cfg.Link != def.Link || cfg.Relay != def.Relay {
		t.Errorf("template differs from defaults:\n got %+v\nwant %+v", cfg, def)
	}
}

func TestWriteDefault_NoOpIfExists(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	configDir := filepath.Join(tmpHome, ".config", "invisa-link")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	existingContent := []byte("log_level: debug\n")
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, existingContent, 0644); err != nil {
		t.Fatalf("failed to write existing config: %v", err)
	}

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if path != "" {
		t.Errorf("WriteDefault() path = %q, want empty string for existing file", path)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if string(data) != string(existingContent) {
		t.Error("WriteDefault() should not overwrite existing config file")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
