// Package protocol converts between user-facing payload notation and the
// raw bytes exchanged with GATT characteristics.
package protocol

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ParsePayload turns s into bytes. A "0x" prefix selects hex notation, in
// which spaces, colons and dashes between bytes are ignored ("0xfe",
// "0x01 00", "0xde:ad"). Anything else is taken as UTF-8 text.
func ParsePayload(s string) ([]byte, error) {
	if len(s) < 2 || !strings.EqualFold(s[:2], "0x") {
		return []byte(s), nil
	}
	digits := strings.Map(func(r rune) rune {
		switch r {
		case ' ', ':', '-', '_':
			return -1
		}
		return r
	}, s[2:])
	if digits == "" {
		return nil, fmt.Errorf("protocol: empty hex payload %q", s)
	}
	if len(digits)%2 == 1 {
		digits = "0" + digits
	}
	b, err := hex.DecodeString(digits)
	if err != nil {
		return nil, fmt.Errorf("protocol: invalid hex payload %q: %w", s, err)
	}
	return b, nil
}

// FormatHex renders b as space separated lowercase hex pairs.
func FormatHex(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(b) * 3)
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02x", c)
	}
	return sb.String()
}

// DecodeText decodes an assembled response as text. Leading and trailing
// control characters, spaces and NUL padding are trimmed and invalid UTF-8
// sequences are replaced.
func DecodeText(b []byte) string {
	s := strings.TrimFunc(string(b), func(r rune) bool { return r <= ' ' })
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	return s
}

// Printable reports whether b decodes to text without control characters,
// so callers can choose between text and hex display.
func Printable(b []byte) bool {
	if len(b) == 0 || !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if r < ' ' && r != '\n' && r != '\r' && r != '\t' {
			return false
		}
	}
	return true
}
