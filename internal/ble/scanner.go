package ble

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultNameMarker is the substring identifying Invisa tags.
	DefaultNameMarker = "invisa"
	// DefaultScanPeriod bounds a non-continuous scan.
	DefaultScanPeriod = 10 * time.Second
	unknownDeviceName = "Unknown"
)

// DiscoveredDevice is a peripheral reported by the Scanner.
type DiscoveredDevice struct {
	Name    string
	Address string
	RSSI    int
}

// ScannerOptions configures scanning.
type ScannerOptions struct {
	NameMarker string        // substring matched case-insensitively against names
	Period     time.Duration // limit for non-continuous scans
}

// DefaultScannerOptions returns sensible defaults.
func DefaultScannerOptions() ScannerOptions {
	return ScannerOptions{
		NameMarker: DefaultNameMarker,
		Period:     DefaultScanPeriod,
	}
}

// MatchName reports whether name contains marker, ignoring case.
func MatchName(name, marker string) bool {
	if name == "" {
		return false
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(marker))
}

// Scanner finds the first advertising peripheral whose name carries the
// marker. One scan runs at a time.
type Scanner struct {
	adapter Adapter
	opts    ScannerOptions

	mu       sync.Mutex
	listener func(DiscoveredDevice)
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	found    *DiscoveredDevice
	err      error
}

// NewScanner creates a scanner over adapter.
func NewScanner(adapter Adapter, opts ScannerOptions) *Scanner {
	if opts.NameMarker == "" {
		opts.NameMarker = DefaultNameMarker
	}
	if opts.Period <= 0 {
		opts.Period = DefaultScanPeriod
	}
	done := make(chan struct{})
	close(done)
	return &Scanner{adapter: adapter, opts: opts, done: done, err: ErrDeviceNotFound}
}

// SetListener registers the single listener told about the match. It
// replaces any previous listener; nil removes it.
func (s *Scanner) SetListener(fn func(DiscoveredDevice)) {
	s.mu.Lock()
	s.listener = fn
	s.mu.Unlock()
}

// Scan starts scanning and returns immediately. A non-continuous scan
// gives up after the scan period; a continuous one runs until a match,
// Stop, or ctx is done.
func (s *Scanner) Scan(ctx context.Context, continuous bool) error {
	if s.adapter == nil {
		return newError("scan", KindAdapterUnavailable, "no adapter")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return newError("scan", KindTransportFailure, "scan already running")
	}

	var runCtx context.Context
	var cancel context.CancelFunc
	if continuous {
		runCtx, cancel = context.WithCancel(ctx)
	} else {
		runCtx, cancel = context.WithTimeout(ctx, s.opts.Period)
	}
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	s.found = nil
	s.err = nil

	slog.Info("[BLE] scanning", "marker", s.opts.NameMarker, "continuous", continuous)
	go s.run(runCtx, cancel, s.done)
	return nil
}

func (s *Scanner) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	defer cancel()

	err := s.adapter.Scan(ctx, func(adv Advertisement) {
		s.onAdvertisement(adv, cancel)
	})

	s.mu.Lock()
	s.running = false
	switch {
	case s.found != nil:
		s.err = nil
	case err != nil && ctx.Err() == nil:
		slog.Error("[BLE] scan failed", "error", err)
		s.err = wrapError("scan", KindTransportFailure, err)
	default:
		slog.Info("[BLE] scan finished without a match", "marker", s.opts.NameMarker)
		s.err = newError("scan", KindDeviceNotFound, "no device named like %q", s.opts.NameMarker)
	}
	s.mu.Unlock()
}

func (s *Scanner) onAdvertisement(adv Advertisement, cancel context.CancelFunc) {
	name := adv.Name
	if name == "" {
		name = unknownDeviceName
	}
	slog.Debug("[BLE] advertisement", "name", name, "addr", adv.Address, "rssi", adv.RSSI)
	if !MatchName(adv.Name, s.opts.NameMarker) {
		return
	}

	s.mu.Lock()
	if s.found != nil {
		s.mu.Unlock()
		return
	}
	dev := DiscoveredDevice{Name: name, Address: adv.Address, RSSI: adv.RSSI}
	s.found = &dev
	listener := s.listener
	s.mu.Unlock()

	slog.Info("[BLE] device found", "name", dev.Name, "addr", dev.Address, "rssi", dev.RSSI)
	if err := s.adapter.StopScan(); err != nil {
		slog.Warn("[BLE] stop scan failed", "error", err)
	}
	cancel()
	if listener != nil {
		listener(dev)
	}
}

// Stop ends a running scan. It is a no-op when no scan is running.
func (s *Scanner) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	running := s.running
	s.mu.Unlock()
	if !running {
		return
	}
	if err := s.adapter.StopScan(); err != nil {
		slog.Warn("[BLE] stop scan failed", "error", err)
	}
	if cancel != nil {
		cancel()
	}
}

// Scanning reports whether a scan is in progress.
func (s *Scanner) Scanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Done is closed when the current scan ends.
func (s *Scanner) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Result returns the device matched by the last scan. It fails with
// ErrDeviceNotFound when nothing matched and ErrTransportFailure when the
// platform scan failed. Call it after Done is closed.
func (s *Scanner) Result() (DiscoveredDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return DiscoveredDevice{}, newError("scan", KindNotInitialized, "scan still running")
	}
	if s.found != nil {
		return *s.found, nil
	}
	return DiscoveredDevice{}, s.err
}
