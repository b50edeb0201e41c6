//go:build linux

package ble

import "tinygo.org/x/bluetooth"

// write issues a BlueZ WriteValue with an explicit request type. Without a
// recorded object path it falls back to tinygo, where BlueZ picks a write
// request whenever the characteristic supports one.
func (g *tinyGoGATT) write(dc *bluetooth.DeviceCharacteristic, c *Characteristic, value []byte, wt WriteType) error {
	if bus, ok := g.adapter.flags.(*bluezBus); ok {
		if path, ok := bus.characteristicPath(g.address, c.UUID); ok {
			return bus.writeValue(path, value, wt)
		}
	}
	_, err := dc.WriteWithoutResponse(value)
	return err
}

// stopNotify unsubscribes dc; a nil callback releases the BlueZ signal
// watch that EnableNotifications installed.
func stopNotify(dc *bluetooth.DeviceCharacteristic) error {
	return dc.EnableNotifications(nil)
}
