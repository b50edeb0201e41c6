package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaz8081/invisa-link/internal/ble"
	"github.com/chaz8081/invisa-link/internal/config"
)

// newAdapter is replaced in tests.
var newAdapter = func() ble.Adapter { return ble.NewTinyGoAdapter() }

// link is an initialized session bound to a resolved peripheral address.
type link struct {
	session *ble.Session
	address string
}

// dial initializes a session and resolves the peripheral address,
// scanning when none is configured. It does not connect.
func dial(ctx context.Context, cfg *config.Config) (*link, error) {
	adapter := newAdapter()
	s := ble.NewSession(adapter, cfg.SessionOptions())
	if err := s.Initialize(); err != nil {
		return nil, err
	}

	addr := cfg.Address
	if addr == "" {
		dev, err := scan(ctx, adapter, cfg, false)
		if err != nil {
			s.Close()
			return nil, err
		}
		fmt.Fprintf(os.Stderr, "Found %s (%s)\n", dev.Name, dev.Address)
		addr = dev.Address
	}
	slog.Debug("[CLI] resolved peripheral", "addr", addr)
	return &link{session: s, address: addr}, nil
}

func (l *link) close() {
	if err := l.session.Close(); err != nil {
		slog.Debug("[CLI] closing session", "error", err)
	}
}

func scan(ctx context.Context, adapter ble.Adapter, cfg *config.Config, continuous bool) (ble.DiscoveredDevice, error) {
	scanner := ble.NewScanner(adapter, cfg.ScannerOptions())
	if err := scanner.Scan(ctx, continuous); err != nil {
		return ble.DiscoveredDevice{}, err
	}
	<-scanner.Done()
	return scanner.Result()
}

// waitDiscovered blocks until services are discovered or the link fails.
// Errors that belong to roles other than role do not end the wait.
func waitDiscovered(ctx context.Context, events <-chan ble.Event, role ble.Role) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for service discovery: %w", ctx.Err())
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("session closed")
			}
			switch ev.Type {
			case ble.EventServicesDiscovered:
				return nil
			case ble.EventDisconnected:
				return fmt.Errorf("disconnected from %s before discovery", ev.Address)
			case ble.EventError:
				if ev.Role != "" && ev.Role != role {
					slog.Debug("[CLI] ignoring error for another role", "role", string(ev.Role), "error", ev.Err)
					continue
				}
				return ev.Err
			}
		}
	}
}

// waitFor blocks until an event matching match arrives. Error events for
// role, and disconnects, fail the wait.
func waitFor(ctx context.Context, events <-chan ble.Event, role ble.Role, match func(ble.Event) bool) (ble.Event, error) {
	for {
		select {
		case <-ctx.Done():
			return ble.Event{}, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return ble.Event{}, fmt.Errorf("session closed")
			}
			if match(ev) {
				return ev, nil
			}
			switch {
			case ev.Type == ble.EventError && (ev.Role == role || ev.Role == ""):
				return ev, ev.Err
			case ev.Type == ble.EventDisconnected:
				return ev, fmt.Errorf("disconnected from %s", ev.Address)
			}
		}
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
