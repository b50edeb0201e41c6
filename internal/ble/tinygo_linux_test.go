//go:build linux

package ble

import (
	"strings"
	"testing"

	"github.com/godbus/dbus/v5"
	"tinygo.org/x/bluetooth"
)

func newTestTinyGoGATT(bus *bluezBus) *tinyGoGATT {
	a := &TinyGoAdapter{flags: bus, connections: make(map[string]*tinyGoGATT)}
	g := &tinyGoGATT{
		adapter: a,
		address: testAddress,
		ops:     make(chan func(), gattQueueSize),
		done:    make(chan struct{}),
	}
	a.connections[testAddress] = g
	return g
}

func TestTinyGoCharacteristicKeepsPointer(t *testing.T) {
	g := newTestTinyGoGATT(&bluezBus{})
	c := &Characteristic{UUID: emergencyCallChar}
	dc := &bluetooth.DeviceCharacteristic{}
	g.chars = map[*Characteristic]*bluetooth.DeviceCharacteristic{c: dc}

	got, err := g.characteristic(c)
	if err != nil {
		t.Fatalf("characteristic() error = %v", err)
	}
	if got != dc {
		t.Error("characteristic() returned a copy; subscription state would be lost")
	}
	if _, err := g.characteristic(&Characteristic{UUID: missedConnChar}); err == nil {
		t.Error("characteristic() accepted an unknown characteristic")
	}
}

func TestTinyGoDisableForgetsSubscription(t *testing.T) {
	g := newTestTinyGoGATT(&bluezBus{})
	c := &Characteristic{UUID: emergencyCallChar}
	dc := &bluetooth.DeviceCharacteristic{}
	g.chars = map[*Characteristic]*bluetooth.DeviceCharacteristic{c: dc}
	g.notifying = map[*Characteristic]*bluetooth.DeviceCharacteristic{c: dc}

	if err := g.WriteDescriptor(c, Descriptor{UUID: CCCDUUID}, DisableDeliveryValue); err != nil {
		t.Fatalf("WriteDescriptor(disable) error = %v", err)
	}
	if len(g.notifying) != 0 {
		t.Errorf("notifying = %d after disable, want 0", len(g.notifying))
	}
	if err := g.SetCharacteristicNotification(c, false); err != nil {
		t.Errorf("second disable error = %v", err)
	}
}

func TestTinyGoCloseStopsNotifications(t *testing.T) {
	g := newTestTinyGoGATT(&bluezBus{})
	a := &Characteristic{UUID: emergencyCallChar}
	b := &Characteristic{UUID: missedConnChar}
	g.notifying = map[*Characteristic]*bluetooth.DeviceCharacteristic{
		a: {},
		b: {},
	}

	if err := g.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if g.notifying != nil {
		t.Errorf("notifying = %d after Close, want none", len(g.notifying))
	}
	if _, ok := g.adapter.connections[testAddress]; ok {
		t.Error("closed connection still registered")
	}
	if err := g.DiscoverServices(); err == nil {
		t.Error("DiscoverServices() after Close should fail")
	}
}

func TestTinyGoWriteUsesBluezPath(t *testing.T) {
	bus := &bluezBus{}
	bus.remember(testAddress, map[string]dbus.ObjectPath{
		missedConnChar: "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF/service0010/char0011",
	})
	g := newTestTinyGoGATT(bus)
	c := &Characteristic{UUID: missedConnChar}

	// No system bus in tests: reaching it proves the typed D-Bus write was
	// chosen over the tinygo fallback.
	err := g.write(&bluetooth.DeviceCharacteristic{}, c, []byte{0x01}, WriteDefault)
	if err == nil || !strings.Contains(err.Error(), "system bus not connected") {
		t.Errorf("write() error = %v, want the D-Bus path", err)
	}
}
