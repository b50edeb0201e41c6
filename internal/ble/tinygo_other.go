//go:build !linux

package ble

import "tinygo.org/x/bluetooth"

func (g *tinyGoGATT) write(dc *bluetooth.DeviceCharacteristic, _ *Characteristic, value []byte, wt WriteType) error {
	var err error
	if wt == WriteNoResponse {
		_, err = dc.WriteWithoutResponse(value)
	} else {
		_, err = dc.Write(value)
	}
	return err
}

// stopNotify is a no-op: CoreBluetooth and WinRT keep the subscription
// until the link closes.
func stopNotify(*bluetooth.DeviceCharacteristic) error {
	return nil
}
