// Package cli implements the invisa-link command line.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/chaz8081/invisa-link/internal/config"
)

// CLI is the root command structure for invisa-link.
type CLI struct {
	ConfigPath string `name:"config" short:"c" type:"path" help:"Path to config file (default: ~/.config/invisa-link/config.yaml)"`
	Address    string `short:"a" help:"Peripheral address; overrides the config and skips scanning"`
	Verbose    bool   `short:"v" help:"Enable verbose debug output"`

	Scan   ScanCmd   `cmd:"" help:"Scan for a tag"`
	Read   ReadCmd   `cmd:"" help:"Read a characteristic by role"`
	Write  WriteCmd  `cmd:"" help:"Write a payload to a characteristic by role"`
	Watch  WatchCmd  `cmd:"" help:"Connect and watch session events"`
	Serve  ServeCmd  `cmd:"" help:"Relay session events over websocket"`
	Config ConfigCmd `cmd:"" help:"Config file operations"`
}

// setup loads and validates the config and installs the default logger.
func (g *CLI) setup() (*config.Config, error) {
	cfg, err := loadConfig(g.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if g.Address != "" {
		cfg.Address = g.Address
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	level := config.ParseLogLevel(cfg.LogLevel)
	if g.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return cfg, nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, nil
	}

	return config.Default(), nil
}
