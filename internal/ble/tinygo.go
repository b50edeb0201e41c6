package ble

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pkg/errors"
	"tinygo.org/x/bluetooth"
)

// TinyGoAdapter implements Adapter with tinygo-org/bluetooth (BlueZ on
// Linux, CoreBluetooth on macOS). On macOS device addresses are
// CoreBluetooth UUIDs rather than MAC addresses.
type TinyGoAdapter struct {
	adapter *bluetooth.Adapter
	flags   flagSource

	// mu protects the connections map.
	mu          sync.Mutex
	connections map[string]*tinyGoGATT // keyed by address
}

// NewTinyGoAdapter creates an adapter over the default radio.
func NewTinyGoAdapter() *TinyGoAdapter {
	return &TinyGoAdapter{
		adapter:     bluetooth.DefaultAdapter,
		flags:       newFlagSource(),
		connections: make(map[string]*tinyGoGATT),
	}
}

func (a *TinyGoAdapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		return errors.Wrap(err, "ble: enable adapter")
	}

	// tinygo reports peripheral disconnects only through the adapter-wide
	// connect handler.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		addr := device.Address.String()
		a.mu.Lock()
		g, ok := a.connections[addr]
		a.mu.Unlock()
		if ok {
			g.linkLost()
		}
	})
	return nil
}

func (a *TinyGoAdapter) Scan(ctx context.Context, fn func(Advertisement)) error {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			a.adapter.StopScan()
		case <-done:
		}
	}()

	err := a.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		fn(Advertisement{
			Name:    result.LocalName(),
			Address: result.Address.String(),
			RSSI:    int(result.RSSI),
		})
	})
	close(done)

	if err != nil && ctx.Err() == nil {
		return errors.Wrap(err, "ble: scan")
	}
	return nil
}

func (a *TinyGoAdapter) StopScan() error {
	if err := a.adapter.StopScan(); err != nil {
		return errors.Wrap(err, "ble: stop scan")
	}
	return nil
}

// ConnectGATT starts connecting in the background. tinygo's Connect
// blocks with its own timeout, so the outcome is reported through cb.
func (a *TinyGoAdapter) ConnectGATT(address string, cb GATTCallback) (GATT, error) {
	var addr bluetooth.Address
	addr.Set(address)

	g := &tinyGoGATT{
		adapter: a,
		address: address,
		addr:    addr,
		cb:      cb,
		ops:     make(chan func(), gattQueueSize),
		done:    make(chan struct{}),
	}
	go g.worker()
	a.mu.Lock()
	a.connections[address] = g
	a.mu.Unlock()

	go g.connect()
	return g, nil
}

func (a *TinyGoAdapter) forget(g *tinyGoGATT) {
	a.mu.Lock()
	if a.connections[g.address] == g {
		delete(a.connections, g.address)
	}
	a.mu.Unlock()
}

// Compile-time check that TinyGoAdapter implements Adapter.
var _ Adapter = (*TinyGoAdapter)(nil)

// gattQueueSize bounds requests waiting for the radio on one connection.
const gattQueueSize = 64

// tinyGoGATT runs requests one at a time on a worker goroutine, as the
// platform stacks expect a single outstanding GATT operation.
type tinyGoGATT struct {
	adapter *TinyGoAdapter
	address string
	addr    bluetooth.Address
	cb      GATTCallback

	ops       chan func()
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	device   *bluetooth.Device
	closed   bool
	services []*Service
	// tinygo keeps subscription state inside DeviceCharacteristic, so
	// every call must go through the same pointer.
	chars map[*Characteristic]*bluetooth.DeviceCharacteristic

	// notifyMu serializes subscription changes.
	notifyMu  sync.Mutex
	notifying map[*Characteristic]*bluetooth.DeviceCharacteristic
}

func (g *tinyGoGATT) worker() {
	for {
		select {
		case op := <-g.ops:
			op()
		case <-g.done:
			return
		}
	}
}

// submit queues op without blocking; the caller may hold locks the
// callbacks need.
func (g *tinyGoGATT) submit(op func()) error {
	select {
	case <-g.done:
		return errors.New("ble: connection closed")
	default:
	}
	select {
	case g.ops <- op:
		return nil
	default:
		return errors.Errorf("ble: %d requests pending on %s", gattQueueSize, g.address)
	}
}

func (g *tinyGoGATT) connect() {
	device, err := g.adapter.adapter.Connect(g.addr, bluetooth.ConnectionParams{})
	if err != nil {
		slog.Warn("[BLE] connect failed", "addr", g.address, "error", err)
		g.cb.OnConnectionStateChange(StatusFailure, LinkDisconnected)
		return
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		device.Disconnect()
		return
	}
	g.device = &device
	g.mu.Unlock()

	g.cb.OnConnectionStateChange(StatusSuccess, LinkConnected)
}

func (g *tinyGoGATT) linkLost() {
	g.mu.Lock()
	g.device = nil
	g.mu.Unlock()
	g.cb.OnConnectionStateChange(StatusSuccess, LinkDisconnected)
}

func (g *tinyGoGATT) Connect() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return errors.New("ble: connection closed")
	}
	if g.device != nil {
		// Already linked; report it again so the owner re-runs discovery.
		go g.cb.OnConnectionStateChange(StatusSuccess, LinkConnected)
		return nil
	}
	go g.connect()
	return nil
}

func (g *tinyGoGATT) Disconnect() error {
	g.mu.Lock()
	device := g.device
	g.mu.Unlock()
	if device == nil {
		return nil
	}
	if err := device.Disconnect(); err != nil {
		return errors.Wrapf(err, "ble: disconnect %s", g.address)
	}
	return nil
}

func (g *tinyGoGATT) Close() error {
	g.stopNotifications()

	g.mu.Lock()
	g.closed = true
	g.device = nil
	g.services = nil
	g.chars = nil
	g.mu.Unlock()
	g.closeOnce.Do(func() { close(g.done) })
	g.adapter.forget(g)
	return nil
}

func (g *tinyGoGATT) DiscoverServices() error {
	g.mu.Lock()
	device := g.device
	g.mu.Unlock()
	if device == nil {
		return errors.New("ble: not connected")
	}
	return g.submit(func() { g.discover(device) })
}

func (g *tinyGoGATT) discover(device *bluetooth.Device) {
	svcs, err := device.DiscoverServices(nil)
	if err != nil {
		slog.Warn("[BLE] discover services failed", "addr", g.address, "error", err)
		g.cb.OnServicesDiscovered(StatusFailure)
		return
	}

	flags, err := g.adapter.flags.CharacteristicFlags(g.address)
	if err != nil {
		slog.Debug("[BLE] characteristic flags unavailable, assuming defaults", "error", err)
	}

	var services []*Service
	chars := make(map[*Characteristic]*bluetooth.DeviceCharacteristic)
	for i := range svcs {
		svc := &Service{UUID: svcs[i].UUID().String()}
		dcs, err := svcs[i].DiscoverCharacteristics(nil)
		if err != nil {
			slog.Warn("[BLE] discover characteristics failed", "service", svc.UUID, "error", err)
			continue
		}
		for j := range dcs {
			dc := &dcs[j]
			c := &Characteristic{UUID: dc.UUID().String(), Properties: defaultProperties}
			if canon, err := ParseUUID(c.UUID); err == nil {
				if p, ok := flags[canon]; ok {
					c.Properties = p
				}
			}
			// The host stack owns the CCCD; expose it so delivery can be
			// configured through WriteDescriptor.
			if c.Properties.Has(PropNotify) || c.Properties.Has(PropIndicate) {
				c.Descriptors = []Descriptor{{UUID: CCCDUUID}}
			}
			svc.Characteristics = append(svc.Characteristics, c)
			chars[c] = dc
		}
		services = append(services, svc)
	}

	// Subscriptions from an earlier discovery belong to characteristics
	// that are about to be replaced.
	g.stopNotifications()

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.services = services
	g.chars = chars
	g.mu.Unlock()

	g.cb.OnServicesDiscovered(StatusSuccess)
}

func (g *tinyGoGATT) Services() []*Service {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.services
}

func (g *tinyGoGATT) characteristic(c *Characteristic) (*bluetooth.DeviceCharacteristic, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	dc, ok := g.chars[c]
	if !ok {
		return nil, errors.Errorf("ble: unknown characteristic %s", c.UUID)
	}
	return dc, nil
}

func (g *tinyGoGATT) ReadCharacteristic(c *Characteristic) error {
	dc, err := g.characteristic(c)
	if err != nil {
		return err
	}
	return g.submit(func() {
		size := 512
		if mtu, err := dc.GetMTU(); err == nil && int(mtu) > size {
			size = int(mtu)
		}
		buf := make([]byte, size)
		n, err := dc.Read(buf)
		if err != nil {
			slog.Warn("[BLE] read failed", "uuid", c.UUID, "error", err)
			g.cb.OnCharacteristicRead(c, nil, StatusFailure)
			return
		}
		g.cb.OnCharacteristicRead(c, buf[:n], StatusSuccess)
	})
}

func (g *tinyGoGATT) WriteCharacteristic(c *Characteristic, value []byte, wt WriteType) error {
	dc, err := g.characteristic(c)
	if err != nil {
		return err
	}
	return g.submit(func() {
		if err := g.write(dc, c, value, wt); err != nil {
			slog.Warn("[BLE] write failed", "uuid", c.UUID, "error", err)
			g.cb.OnCharacteristicWrite(c, StatusFailure)
			return
		}
		g.cb.OnCharacteristicWrite(c, StatusSuccess)
	})
}

// SetCharacteristicNotification only disables delivery here; enabling
// happens when the CCCD is written.
func (g *tinyGoGATT) SetCharacteristicNotification(c *Characteristic, enable bool) error {
	if enable {
		return nil
	}
	if _, err := g.characteristic(c); err != nil {
		return err
	}
	return g.disableNotifications(c)
}

// WriteDescriptor supports the CCCD only. tinygo subscribes through the
// host stack, which writes the descriptor itself and picks notify or
// indicate from the characteristic's flags.
func (g *tinyGoGATT) WriteDescriptor(c *Characteristic, d Descriptor, value []byte) error {
	if !EqualUUID(d.UUID, CCCDUUID) {
		return errors.Errorf("ble: descriptor %s not supported", d.UUID)
	}
	dc, err := g.characteristic(c)
	if err != nil {
		return err
	}
	if len(value) == 0 || value[0] == 0 {
		return g.disableNotifications(c)
	}
	return g.enableNotifications(c, dc)
}

func (g *tinyGoGATT) enableNotifications(c *Characteristic, dc *bluetooth.DeviceCharacteristic) error {
	g.notifyMu.Lock()
	defer g.notifyMu.Unlock()
	if _, ok := g.notifying[c]; ok {
		return nil
	}
	err := dc.EnableNotifications(func(buf []byte) {
		data := make([]byte, len(buf))
		copy(data, buf)
		g.cb.OnCharacteristicChanged(c, data)
	})
	if err != nil {
		return errors.Wrapf(err, "ble: enable notifications on %s", c.UUID)
	}
	if g.notifying == nil {
		g.notifying = make(map[*Characteristic]*bluetooth.DeviceCharacteristic)
	}
	g.notifying[c] = dc
	return nil
}

func (g *tinyGoGATT) disableNotifications(c *Characteristic) error {
	g.notifyMu.Lock()
	defer g.notifyMu.Unlock()
	dc, ok := g.notifying[c]
	if !ok {
		return nil
	}
	delete(g.notifying, c)
	if err := stopNotify(dc); err != nil {
		return errors.Wrapf(err, "ble: disable notifications on %s", c.UUID)
	}
	return nil
}

// stopNotifications ends every subscription on this connection.
func (g *tinyGoGATT) stopNotifications() {
	g.notifyMu.Lock()
	subs := g.notifying
	g.notifying = nil
	g.notifyMu.Unlock()

	for c, dc := range subs {
		if err := stopNotify(dc); err != nil {
			slog.Debug("[BLE] stopping notifications failed", "uuid", c.UUID, "error", err)
		}
	}
}
