package ble

import "strings"

// defaultProperties is assumed for characteristics whose capability flags
// the platform does not expose.
const defaultProperties = PropRead | PropWrite | PropWriteWithoutResponse | PropNotify

// flagSource looks up the capability flags of every characteristic the
// host stack knows for a peripheral, keyed by canonical UUID.
type flagSource interface {
	CharacteristicFlags(address string) (map[string]Properties, error)
}

// ParseFlags converts BlueZ characteristic flag names ("read",
// "write-without-response", "indicate", ...) into Properties. Unknown names
// are ignored.
func ParseFlags(flags []string) Properties {
	var p Properties
	for _, f := range flags {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "broadcast":
			p |= PropBroadcast
		case "read", "encrypt-read", "encrypt-authenticated-read", "secure-read":
			p |= PropRead
		case "write-without-response":
			p |= PropWriteWithoutResponse
		case "write", "encrypt-write", "encrypt-authenticated-write", "secure-write", "authenticated-signed-writes":
			p |= PropWrite
		case "notify":
			p |= PropNotify
		case "indicate":
			p |= PropIndicate
		}
	}
	return p
}
