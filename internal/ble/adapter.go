// Package ble provides the BLE session layer for an Invisa tag. It handles
// scanning, the single GATT connection, characteristic selection by role,
// and read/write/notify traffic over Bluetooth Low Energy.
package ble

import (
	"context"
	"strings"
)

// Properties is the capability bitmask a peripheral declares for a
// characteristic. Values follow the Bluetooth Core characteristic
// properties field.
type Properties uint8

const (
	PropBroadcast            Properties = 0x01
	PropRead                 Properties = 0x02
	PropWriteWithoutResponse Properties = 0x04
	PropWrite                Properties = 0x08
	PropNotify               Properties = 0x10
	PropIndicate             Properties = 0x20
)

// Has reports whether every bit in f is set.
func (p Properties) Has(f Properties) bool {
	return p&f == f
}

// CanWrite reports whether either write capability is present.
func (p Properties) CanWrite() bool {
	return p&(PropWrite|PropWriteWithoutResponse) != 0
}

func (p Properties) String() string {
	if p == 0 {
		return "none"
	}
	names := []struct {
		bit  Properties
		name string
	}{
		{PropBroadcast, "broadcast"},
		{PropRead, "read"},
		{PropWriteWithoutResponse, "write-without-response"},
		{PropWrite, "write"},
		{PropNotify, "notify"},
		{PropIndicate, "indicate"},
	}
	var parts []string
	for _, n := range names {
		if p.Has(n.bit) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// WriteType selects acknowledged or unacknowledged characteristic writes.
type WriteType int

const (
	// WriteDefault is a write request acknowledged by the peripheral.
	WriteDefault WriteType = iota
	// WriteNoResponse is a write command with no acknowledgement.
	WriteNoResponse
)

func (w WriteType) String() string {
	if w == WriteNoResponse {
		return "no-response"
	}
	return "default"
}

// Status is the result code reported by the platform for GATT operations.
type Status int

const (
	StatusSuccess Status = 0
	StatusFailure Status = 0x101
)

// LinkState is the link-layer state reported by the platform.
type LinkState int

const (
	LinkDisconnected LinkState = iota
	LinkConnected
)

// Descriptor is a GATT descriptor attached to a characteristic.
type Descriptor struct {
	UUID string
}

// Characteristic is a GATT characteristic as enumerated by the platform.
type Characteristic struct {
	UUID        string
	Properties  Properties
	Descriptors []Descriptor
}

// Service is a discovered GATT service.
type Service struct {
	UUID            string
	Characteristics []*Characteristic
}

// Advertisement is a single scan result.
type Advertisement struct {
	Name    string
	Address string
	RSSI    int
}

// GATTCallback receives asynchronous results from the platform stack.
// Implementations must not call back synchronously from inside a GATT or
// Adapter method; callbacks may arrive on any goroutine.
type GATTCallback interface {
	OnConnectionStateChange(status Status, state LinkState)
	OnServicesDiscovered(status Status)
	OnCharacteristicRead(c *Characteristic, value []byte, status Status)
	OnCharacteristicWrite(c *Characteristic, status Status)
	OnCharacteristicChanged(c *Characteristic, value []byte)
}

// GATT is one transport connection to a peripheral. Every request returns
// once submitted; its outcome is reported through the GATTCallback.
type GATT interface {
	// Connect re-establishes the link on this existing handle. A backend
	// whose link is still up may report LinkConnected again, which re-runs
	// discovery; otherwise the session keeps its state and handles.
	Connect() error
	// Disconnect drops the link but keeps the handle.
	Disconnect() error
	// Close releases the handle. It must not be used afterwards.
	Close() error
	DiscoverServices() error
	// Services returns the result of the last successful discovery.
	Services() []*Service
	ReadCharacteristic(c *Characteristic) error
	WriteCharacteristic(c *Characteristic, value []byte, wt WriteType) error
	SetCharacteristicNotification(c *Characteristic, enable bool) error
	WriteDescriptor(c *Characteristic, d Descriptor, value []byte) error
}

// Adapter abstracts the BLE radio for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan reports advertisements to fn until ctx is done or StopScan is
	// called. It blocks for the duration of the scan.
	Scan(ctx context.Context, fn func(Advertisement)) error
	// StopScan ends a running scan.
	StopScan() error
	// ConnectGATT opens a connection handle to address. The link outcome
	// is reported through cb.
	ConnectGATT(address string, cb GATTCallback) (GATT, error)
}
