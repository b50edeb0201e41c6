//go:build !linux

package ble

// Only BlueZ exposes characteristic flags; elsewhere defaultProperties
// applies.
type staticFlags struct{}

func newFlagSource() flagSource { return staticFlags{} }

func (staticFlags) CharacteristicFlags(string) (map[string]Properties, error) {
	return nil, nil
}
