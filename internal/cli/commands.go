package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/invisa-link/internal/ble"
	"github.com/chaz8081/invisa-link/internal/ble/protocol"
	"github.com/chaz8081/invisa-link/internal/config"
	"github.com/chaz8081/invisa-link/internal/relay"
	"github.com/chaz8081/invisa-link/internal/tui"
)

// --- Scan ---

type ScanCmd struct {
	Marker     string `help:"Name marker to match (overrides config)"`
	Continuous bool   `help:"Scan until a match or interrupt instead of for the scan period"`
}

func (c *ScanCmd) Run(globals *CLI) error {
	cfg, err := globals.setup()
	if err != nil {
		return err
	}
	if c.Marker != "" {
		cfg.Scan.NameMarker = c.Marker
	}

	ctx, cancel := signalContext()
	defer cancel()

	adapter := newAdapter()
	if err := adapter.Enable(); err != nil {
		return fmt.Errorf("enabling adapter: %w", err)
	}
	dev, err := scan(ctx, adapter, cfg, c.Continuous || cfg.Scan.Continuous)
	if err != nil {
		return err
	}
	fmt.Printf("%s\t%s\t%d dBm\n", dev.Address, dev.Name, dev.RSSI)
	return nil
}

// --- Read ---

type ReadCmd struct {
	Role    string        `arg:"" help:"Role name from the config"`
	Hex     bool          `help:"Always print the value as hex"`
	Timeout time.Duration `default:"20s" help:"Give up after this long"`
}

func (c *ReadCmd) Run(globals *CLI) error {
	cfg, err := globals.setup()
	if err != nil {
		return err
	}
	role := ble.Role(c.Role)

	sigCtx, stop := signalContext()
	defer stop()
	ctx, cancel := withTimeout(sigCtx, c.Timeout)
	defer cancel()

	l, err := dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer l.close()

	events, unsubscribe := l.session.Subscribe(cfg.Session.EventBuffer)
	defer unsubscribe()

	if err := l.session.Connect(l.address); err != nil {
		return err
	}
	if err := waitDiscovered(ctx, events, role); err != nil {
		return err
	}
	if err := l.session.ReadRole(role); err != nil {
		return err
	}

	ev, err := waitFor(ctx, events, role, func(ev ble.Event) bool {
		return ev.Type == ble.EventDataAvailable && ev.Role == role
	})
	if err != nil {
		return fmt.Errorf("reading %s: %w", role, err)
	}
	fmt.Println(formatValue(ev.Data, c.Hex))
	return nil
}

func formatValue(b []byte, forceHex bool) string {
	if !forceHex && protocol.Printable(b) {
		return protocol.DecodeText(b)
	}
	return "0x" + protocol.FormatHex(b)
}

// --- Write ---

type WriteCmd struct {
	Role    string        `arg:"" help:"Role name from the config"`
	Payload string        `arg:"" help:"Text, or hex with a 0x prefix (e.g. 0xfe, \"0x01 00\")"`
	Timeout time.Duration `default:"20s" help:"Give up after this long"`
}

func (c *WriteCmd) Run(globals *CLI) error {
	cfg, err := globals.setup()
	if err != nil {
		return err
	}
	role := ble.Role(c.Role)
	data, err := protocol.ParsePayload(c.Payload)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("empty payload")
	}

	sigCtx, stop := signalContext()
	defer stop()
	ctx, cancel := withTimeout(sigCtx, c.Timeout)
	defer cancel()

	l, err := dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer l.close()

	events, unsubscribe := l.session.Subscribe(cfg.Session.EventBuffer)
	defer unsubscribe()

	opts := cfg.ClientOptions()
	opts.Reconnect = false
	client := ble.NewClient(l.session, l.address, opts)
	defer client.Close()

	// Queued until discovery, then flushed in chunks.
	text := !strings.HasPrefix(strings.ToLower(c.Payload), "0x")
	if text {
		err = client.SendText(role, c.Payload)
	} else {
		err = client.Send(role, data)
	}
	if err != nil {
		return err
	}
	if err := client.Connect(); err != nil {
		return err
	}
	if err := waitDiscovered(ctx, events, role); err != nil {
		return err
	}
	if _, ok := l.session.Handle(role); !ok {
		return fmt.Errorf("role %q was not found on %s", role, l.address)
	}

	chunks := len(client.Pieces(data, text))
	for i := 0; i < chunks; i++ {
		if _, err := waitFor(ctx, events, role, func(ev ble.Event) bool {
			return ev.Type == ble.EventDataWritten && ev.Role == role
		}); err != nil {
			return fmt.Errorf("writing %s: %w", role, err)
		}
	}
	fmt.Printf("Wrote %d bytes to %s\n", len(data), role)
	return nil
}

// --- Watch ---

type WatchCmd struct {
	Plain bool `help:"Print events as lines instead of the interactive view"`
}

func (c *WatchCmd) Run(globals *CLI) error {
	cfg, err := globals.setup()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	l, err := dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer l.close()

	events, unsubscribe := l.session.Subscribe(cfg.Session.EventBuffer)
	defer unsubscribe()

	client := ble.NewClient(l.session, l.address, cfg.ClientOptions())
	defer client.Close()
	if err := client.Connect(); err != nil {
		return err
	}

	if !c.Plain {
		return tui.Run(l.session, events)
	}
	return printEvents(ctx, events)
}

func printEvents(ctx context.Context, events <-chan ble.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			fmt.Println(formatEvent(ev))
		}
	}
}

func formatEvent(ev ble.Event) string {
	ts := time.Now().Format("15:04:05")
	switch ev.Type {
	case ble.EventMessage:
		return fmt.Sprintf("%s %s %s %q", ts, ev.Type, ev.Role, ev.Text)
	case ble.EventDataAvailable:
		return fmt.Sprintf("%s %s %s %s", ts, ev.Type, ev.Role, formatValue(ev.Data, false))
	case ble.EventDataWritten:
		return fmt.Sprintf("%s %s %s", ts, ev.Type, ev.Role)
	case ble.EventError:
		return fmt.Sprintf("%s %s %v", ts, ev.Type, ev.Err)
	default:
		return fmt.Sprintf("%s %s %s", ts, ev.Type, ev.Address)
	}
}

// --- Serve ---

type ServeCmd struct {
	Listen string `help:"Listen address (overrides config)"`
}

func (c *ServeCmd) Run(globals *CLI) error {
	cfg, err := globals.setup()
	if err != nil {
		return err
	}
	if c.Listen != "" {
		cfg.Relay.Listen = c.Listen
	}

	ctx, cancel := signalContext()
	defer cancel()

	l, err := dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer l.close()

	srv := relay.NewServer(l.session)
	client := ble.NewClient(l.session, l.address, cfg.ClientOptions())
	defer client.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx, cfg.Relay.Listen) }()

	if err := client.Connect(); err != nil {
		cancel()
		<-errCh
		return err
	}
	return <-errCh
}

// --- Config ---

type ConfigCmd struct {
	Init ConfigInitCmd `cmd:"" help:"Write a commented default config file"`
	Show ConfigShowCmd `cmd:"" help:"Print the effective config"`
}

type ConfigInitCmd struct{}

func (c *ConfigInitCmd) Run(globals *CLI) error {
	path, err := config.WriteDefault()
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
		return nil
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

type ConfigShowCmd struct{}

func (c *ConfigShowCmd) Run(globals *CLI) error {
	cfg, err := globals.setup()
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}
