//go:build linux

package ble

import (
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestCharacteristicFlags(t *testing.T) {
	objects := managedObjects{
		"/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF": {
			bluezDeviceIface: {"Address": dbus.MakeVariant("AA:BB:CC:DD:EE:FF")},
		},
		"/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF/service0010/char0011": {
			bluezCharacteristicIface: {
				"UUID":  dbus.MakeVariant(emergencyCallChar),
				"Flags": dbus.MakeVariant([]string{"read", "indicate"}),
			},
		},
		"/org/bluez/hci0/dev_11_22_33_44_55_66": {
			bluezDeviceIface: {"Address": dbus.MakeVariant("11:22:33:44:55:66")},
		},
		"/org/bluez/hci0/dev_11_22_33_44_55_66/service0010/char0011": {
			bluezCharacteristicIface: {
				"UUID":  dbus.MakeVariant(missedConnChar),
				"Flags": dbus.MakeVariant([]string{"write"}),
			},
		},
	}

	flags := characteristicFlags(objects, "aa:bb:cc:dd:ee:ff")
	if len(flags) != 1 {
		t.Fatalf("got %d characteristics, want 1: %v", len(flags), flags)
	}
	if got := flags[emergencyCallChar]; got != PropRead|PropIndicate {
		t.Errorf("flags = %s, want read|indicate", got)
	}
}

func TestCharacteristicFlagsUnknownDevice(t *testing.T) {
	if flags := characteristicFlags(managedObjects{}, testAddress); len(flags) != 0 {
		t.Errorf("flags = %v, want none", flags)
	}
}

func TestCharacteristicPaths(t *testing.T) {
	objects := managedObjects{
		"/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF": {
			bluezDeviceIface: {"Address": dbus.MakeVariant(testAddress)},
		},
		"/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF/service0010/char0011": {
			bluezCharacteristicIface: {"UUID": dbus.MakeVariant(emergencyCallChar)},
		},
		"/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF/service0020/char0021": {
			bluezCharacteristicIface: {"UUID": dbus.MakeVariant("00002A19-0000-1000-8000-00805F9B34FB")},
		},
		"/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF/service0030/char0031": {
			bluezCharacteristicIface: {"UUID": dbus.MakeVariant(BatteryLevelCharUUID)},
		},
	}

	paths := characteristicPaths(objects, testAddress)
	if got := paths[emergencyCallChar]; got != "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF/service0010/char0011" {
		t.Errorf("emergency path = %q", got)
	}
	if got := paths[BatteryLevelCharUUID]; got != "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF/service0020/char0021" {
		t.Errorf("battery path = %q, want the lowest of the duplicates", got)
	}
}

func TestBluezBusCharacteristicPath(t *testing.T) {
	b := &bluezBus{}
	b.remember("aa:bb:cc:dd:ee:ff", map[string]dbus.ObjectPath{
		BatteryLevelCharUUID: "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF/service0020/char0021",
	})

	path, ok := b.characteristicPath(testAddress, "2a19")
	if !ok || path != "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF/service0020/char0021" {
		t.Errorf("characteristicPath() = %q, %v", path, ok)
	}
	if _, ok := b.characteristicPath("11:22:33:44:55:66", "2a19"); ok {
		t.Error("path found for an unknown device")
	}
	if _, ok := b.characteristicPath(testAddress, "not-a-uuid"); ok {
		t.Error("path found for an invalid UUID")
	}
}

func TestWriteOptions(t *testing.T) {
	tests := []struct {
		wt   WriteType
		want string
	}{
		{WriteDefault, "request"},
		{WriteNoResponse, "command"},
	}
	for _, tt := range tests {
		opts := writeOptions(tt.wt)
		if got, _ := opts["type"].Value().(string); got != tt.want {
			t.Errorf("writeOptions(%s) type = %q, want %q", tt.wt, got, tt.want)
		}
	}
}
