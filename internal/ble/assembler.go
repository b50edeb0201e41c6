package ble

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// DefaultMaxMessageSize bounds a reassembled message.
const DefaultMaxMessageSize = 512

// CompleteFunc reports whether buf holds one full message.
type CompleteFunc func(buf []byte) bool

// Terminator completes a message when its last byte is b.
func Terminator(b byte) CompleteFunc {
	return func(buf []byte) bool {
		return len(buf) > 0 && buf[len(buf)-1] == b
	}
}

// LengthPrefix completes a message once the buffer holds the total length
// announced by its first two bytes (big-endian, header included).
func LengthPrefix() CompleteFunc {
	return func(buf []byte) bool {
		if len(buf) < 2 {
			return false
		}
		want := int(binary.BigEndian.Uint16(buf[0:2]))
		return want > 0 && len(buf) >= want
	}
}

// Assembler accumulates notification fragments into whole messages.
// It is not safe for concurrent use; Session serialises access.
type Assembler struct {
	buf      bytes.Buffer
	complete CompleteFunc
	maxSize  int
}

// NewAssembler returns an assembler that delivers when complete reports
// true. maxSize <= 0 selects DefaultMaxMessageSize.
func NewAssembler(complete CompleteFunc, maxSize int) *Assembler {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	return &Assembler{complete: complete, maxSize: maxSize}
}

// Feed appends a fragment. It returns the full message and true once the
// completion predicate accepts the buffer, after which the buffer is
// empty. A fragment that would grow the buffer past the size limit
// discards the partial message and returns an error.
func (a *Assembler) Feed(p []byte) ([]byte, bool, error) {
	if a.buf.Len()+len(p) > a.maxSize {
		dropped := a.buf.Len() + len(p)
		a.buf.Reset()
		return nil, false, fmt.Errorf("ble: message exceeds %d bytes (got %d), discarded", a.maxSize, dropped)
	}
	a.buf.Write(p)
	if a.complete == nil || !a.complete(a.buf.Bytes()) {
		return nil, false, nil
	}
	msg := make([]byte, a.buf.Len())
	copy(msg, a.buf.Bytes())
	a.buf.Reset()
	return msg, true, nil
}

// Len returns the number of buffered bytes.
func (a *Assembler) Len() int { return a.buf.Len() }

// Reset discards any partial message.
func (a *Assembler) Reset() { a.buf.Reset() }
