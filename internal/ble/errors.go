package ble

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies session failures.
type Kind int

const (
	KindUnknown Kind = iota
	KindAdapterUnavailable
	KindNotInitialized
	KindDeviceNotFound
	KindCapabilityMismatch
	KindTransportFailure
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindAdapterUnavailable:
		return "adapter unavailable"
	case KindNotInitialized:
		return "not initialized"
	case KindDeviceNotFound:
		return "device not found"
	case KindCapabilityMismatch:
		return "capability mismatch"
	case KindTransportFailure:
		return "transport failure"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is returned by every session operation and carried by Error events.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrAdapterUnavailable = &Error{Kind: KindAdapterUnavailable}
	ErrNotInitialized     = &Error{Kind: KindNotInitialized}
	ErrDeviceNotFound     = &Error{Kind: KindDeviceNotFound}
	ErrCapabilityMismatch = &Error{Kind: KindCapabilityMismatch}
	ErrTransportFailure   = &Error{Kind: KindTransportFailure}
	ErrTimeout            = &Error{Kind: KindTimeout}
)

func (e *Error) Error() string {
	msg := "ble: "
	if e.Op != "" {
		msg += e.Op + ": "
	}
	msg += e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

func newError(op string, kind Kind, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

func wrapError(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf returns the Kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
