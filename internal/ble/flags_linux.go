//go:build linux

package ble

import (
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
)

const (
	bluezBusName             = "org.bluez"
	bluezDeviceIface         = "org.bluez.Device1"
	bluezCharacteristicIface = "org.bluez.GattCharacteristic1"
	objectManagerGetObjects  = "org.freedesktop.DBus.ObjectManager.GetManagedObjects"
)

type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// bluezBus reads characteristic flags from BlueZ over the system bus and
// remembers each characteristic's object path for typed writes.
type bluezBus struct {
	once sync.Once
	conn *dbus.Conn
	err  error

	mu    sync.Mutex
	paths map[string]map[string]dbus.ObjectPath // address -> canonical UUID -> path
}

func newFlagSource() flagSource { return &bluezBus{} }

func (b *bluezBus) CharacteristicFlags(address string) (map[string]Properties, error) {
	b.once.Do(func() {
		b.conn, b.err = dbus.SystemBus()
	})
	if b.err != nil {
		return nil, errors.Wrap(b.err, "ble: connect system bus")
	}

	var objects managedObjects
	obj := b.conn.Object(bluezBusName, "/")
	if err := obj.Call(objectManagerGetObjects, 0).Store(&objects); err != nil {
		return nil, errors.Wrap(err, "ble: get managed objects")
	}
	b.remember(address, characteristicPaths(objects, address))
	return characteristicFlags(objects, address), nil
}

func (b *bluezBus) remember(address string, paths map[string]dbus.ObjectPath) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.paths == nil {
		b.paths = make(map[string]map[string]dbus.ObjectPath)
	}
	b.paths[strings.ToUpper(address)] = paths
}

// characteristicPath returns the object path recorded for uuid on address
// by the last flag lookup.
func (b *bluezBus) characteristicPath(address, uuid string) (dbus.ObjectPath, bool) {
	canon, err := ParseUUID(uuid)
	if err != nil {
		return "", false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	path, ok := b.paths[strings.ToUpper(address)][canon]
	return path, ok
}

// writeValue calls WriteValue on the characteristic at path with an
// explicit request type.
func (b *bluezBus) writeValue(path dbus.ObjectPath, value []byte, wt WriteType) error {
	if b.conn == nil {
		return errors.New("ble: system bus not connected")
	}
	obj := b.conn.Object(bluezBusName, path)
	return obj.Call(bluezCharacteristicIface+".WriteValue", 0, value, writeOptions(wt)).Err
}

// writeOptions selects a write request or a write command.
func writeOptions(wt WriteType) map[string]dbus.Variant {
	kind := "request"
	if wt == WriteNoResponse {
		kind = "command"
	}
	return map[string]dbus.Variant{"type": dbus.MakeVariant(kind)}
}

// characteristicFlags collects the flags of the characteristics below the
// device object whose Address is address.
func characteristicFlags(objects managedObjects, address string) map[string]Properties {
	out := make(map[string]Properties)
	eachCharacteristic(objects, address, func(uuid string, _ dbus.ObjectPath, props map[string]dbus.Variant) {
		flags, _ := props["Flags"].Value().([]string)
		out[uuid] = ParseFlags(flags)
	})
	return out
}

// characteristicPaths maps the characteristics of address to their object
// paths. When a UUID repeats, the lowest path wins.
func characteristicPaths(objects managedObjects, address string) map[string]dbus.ObjectPath {
	out := make(map[string]dbus.ObjectPath)
	eachCharacteristic(objects, address, func(uuid string, path dbus.ObjectPath, _ map[string]dbus.Variant) {
		if prev, ok := out[uuid]; !ok || path < prev {
			out[uuid] = path
		}
	})
	return out
}

func eachCharacteristic(objects managedObjects, address string, fn func(uuid string, path dbus.ObjectPath, props map[string]dbus.Variant)) {
	var devicePath dbus.ObjectPath
	for path, ifaces := range objects {
		dev, ok := ifaces[bluezDeviceIface]
		if !ok {
			continue
		}
		if addr, ok := dev["Address"].Value().(string); ok && strings.EqualFold(addr, address) {
			devicePath = path
			break
		}
	}
	if devicePath == "" {
		return
	}

	prefix := string(devicePath) + "/"
	for path, ifaces := range objects {
		char, ok := ifaces[bluezCharacteristicIface]
		if !ok || !strings.HasPrefix(string(path), prefix) {
			continue
		}
		uuid, _ := char["UUID"].Value().(string)
		if c, err := ParseUUID(uuid); err == nil {
			fn(c, path, char)
		}
	}
}
