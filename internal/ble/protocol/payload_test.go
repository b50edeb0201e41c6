package protocol

import (
	"bytes"
	"testing"
)

func TestParsePayload(t *testing.T) {
	tests := []struct {
		in   string
		want []byte
	}{
		{"0xfe", []byte{0xfe}},
		{"0XFE", []byte{0xfe}},
		{"0x01 00", []byte{0x01, 0x00}},
		{"0xde:ad:be:ef", []byte{0xde, 0xad, 0xbe, 0xef}},
		{"0xf", []byte{0x0f}},
		{"hello", []byte("hello")},
		{"", []byte{}},
		{"0", []byte("0")},
	}
	for _, tt := range tests {
		got, err := ParsePayload(tt.in)
		if err != nil {
			t.Errorf("ParsePayload(%q) error: %v", tt.in, err)
			continue
		}
		if !bytes.Equal(got, tt.want) {
			t.Errorf("ParsePayload(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParsePayloadInvalid(t *testing.T) {
	for _, in := range []string{"0x", "0xzz", "0x 12 g4"} {
		if _, err := ParsePayload(in); err == nil {
			t.Errorf("ParsePayload(%q) should fail", in)
		}
	}
}

func TestFormatHex(t *testing.T) {
	if got := FormatHex([]byte{0x02, 0x00, 0xfe}); got != "02 00 fe" {
		t.Errorf("FormatHex = %q, want %q", got, "02 00 fe")
	}
	if got := FormatHex(nil); got != "" {
		t.Errorf("FormatHex(nil) = %q, want empty", got)
	}
}

func TestDecodeTextTrims(t *testing.T) {
	in := []byte("  ALERT 42\r\n\x00\x00")
	if got := DecodeText(in); got != "ALERT 42" {
		t.Errorf("DecodeText = %q, want %q", got, "ALERT 42")
	}
}

func TestDecodeTextInvalidUTF8(t *testing.T) {
	got := DecodeText([]byte{'o', 'k', 0xff})
	if got != "ok�" {
		t.Errorf("DecodeText = %q, want %q", got, "ok�")
	}
}

func TestPrintable(t *testing.T) {
	tests := []struct {
		in   []byte
		want bool
	}{
		{[]byte("hello"), true},
		{[]byte("line\n"), true},
		{[]byte{0x02, 0x00}, false},
		{[]byte{0xff}, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := Printable(tt.in); got != tt.want {
			t.Errorf("Printable(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
