package ble

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Well-known UUIDs.
const (
	// CCCDUUID is the Client Characteristic Configuration descriptor.
	CCCDUUID = "00002902-0000-1000-8000-00805f9b34fb"

	BatteryServiceUUID    = "0000180f-0000-1000-8000-00805f9b34fb"
	BatteryLevelCharUUID  = "00002a19-0000-1000-8000-00805f9b34fb"
	bluetoothBaseUUIDTail = "-0000-1000-8000-00805f9b34fb"
)

// Client Characteristic Configuration values.
var (
	EnableNotificationValue = []byte{0x01, 0x00}
	EnableIndicationValue   = []byte{0x02, 0x00}
	DisableDeliveryValue    = []byte{0x00, 0x00}
)

// ParseUUID returns the canonical lower-case 128-bit form of s. 16-bit and
// 32-bit SIG short forms ("180f", "0x2A19") are expanded onto the
// Bluetooth base UUID.
func ParseUUID(s string) (string, error) {
	s = strings.TrimSpace(s)
	short := strings.TrimPrefix(strings.ToLower(s), "0x")
	switch len(short) {
	case 4:
		short = "0000" + short
		fallthrough
	case 8:
		s = short + bluetoothBaseUUIDTail
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("ble: invalid UUID %q: %w", s, err)
	}
	return u.String(), nil
}

// EqualUUID reports whether a and b name the same UUID. Unparseable input
// falls back to a case-insensitive string comparison.
func EqualUUID(a, b string) bool {
	ca, errA := ParseUUID(a)
	cb, errB := ParseUUID(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(a, b)
	}
	return ca == cb
}
