package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const defaultTemplate = `# invisa-link configuration
#
# Log verbosity: debug, info, warn, error.
log_level: info

# Address of a known tag. Leave empty to scan for one.
address: ""

scan:
  # Devices whose name contains this (case-insensitive) are matches.
  name_marker: invisa
  # How long a non-continuous scan runs.
  period: 10s
  continuous: false

session:
  # Pending reads and writes fail after this long. 0 disables.
  op_timeout: 10s
  event_buffer: 64
  assembly:
    # How notification fragments form messages:
    # none, terminator, or length-prefix (2-byte big-endian total length).
    mode: none
    terminator: "0x0a"
    max_size: 512

link:
  # Reconnect with exponential backoff after the link drops (watch, serve).
  reconnect: false
  reconnect_max: 30
  # Bytes per write; 20 fits the default ATT MTU.
  chunk_size: 20
  inter_chunk_delay: 20ms
  queue_size: 64

# Characteristics tracked by role. 16-bit SIG UUIDs may be shortened.
roles:
  - name: battery-level
    service: "180f"
    characteristic: "2a19"
  # - name: emergency
  #   service: "<service uuid>"
  #   characteristic: "<characteristic uuid>"
  #   ack: "0xff"
  # - name: missed-connection
  #   service: "<service uuid>"
  #   characteristic: "<characteristic uuid>"

relay:
  listen: 127.0.0.1:8787
`

// WriteDefault writes a commented default config to DefaultConfigPath.
// It returns the written path, or "" if a config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("creating config file: %w", err)
	}
	if _, err := f.WriteString(defaultTemplate); err != nil {
		f.Close()
		return "", fmt.Errorf("writing config file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}
