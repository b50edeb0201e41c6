package ble

import (
	"log/slog"
	"strings"
	"time"

	"github.com/chaz8081/invisa-link/internal/ble/protocol"
)

type opKind int

const (
	opRead opKind = iota
	opWrite
)

func (k opKind) String() string {
	if k == opWrite {
		return "write"
	}
	return "read"
}

type opKey struct {
	kind opKind
	uuid string
}

type pendingOp struct {
	role  Role
	timer *time.Timer // nil when timeouts are disabled
}

func newOpKey(kind opKind, uuid string) opKey {
	if c, err := ParseUUID(uuid); err == nil {
		uuid = c
	}
	return opKey{kind: kind, uuid: strings.ToLower(uuid)}
}

// Read requests the value of h. The result arrives as an EventDataAvailable
// or EventError.
func (s *Session) Read(h *Handle) error {
	const op = "read"
	if h == nil {
		return newError(op, KindNotInitialized, "nil handle")
	}
	if !h.Properties.Has(PropRead) {
		slog.Warn("[BLE] read rejected, characteristic not readable", "uuid", h.UUID, "props", h.Properties.String())
		return newError(op, KindCapabilityMismatch, "characteristic %s is not readable", h.UUID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkHandleLocked(op, h); err != nil {
		return err
	}
	s.trackLocked(opRead, h)
	if err := s.gatt.ReadCharacteristic(h.char); err != nil {
		s.completeLocked(opRead, h.UUID)
		return wrapError(op, KindTransportFailure, err)
	}
	slog.Debug("[BLE] read submitted", "role", string(h.Role), "uuid", h.UUID)
	return nil
}

// Write submits data to h using the handle's write type. A handle without
// either write capability is rejected locally and nothing is sent. The
// outcome arrives as an EventDataWritten or EventError.
func (s *Session) Write(h *Handle, data []byte) error {
	const op = "write"
	if h == nil {
		return newError(op, KindNotInitialized, "nil handle")
	}
	if !h.Properties.CanWrite() {
		slog.Warn("[BLE] write rejected, characteristic not writable", "uuid", h.UUID, "props", h.Properties.String())
		return newError(op, KindCapabilityMismatch, "characteristic %s is not writable", h.UUID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkHandleLocked(op, h); err != nil {
		return err
	}
	return s.submitWriteLocked(h, data)
}

// ReadRole reads the characteristic selected for role.
func (s *Session) ReadRole(role Role) error {
	h, err := s.roleHandle("read", role)
	if err != nil {
		return err
	}
	return s.Read(h)
}

// WriteRole writes data to the characteristic selected for role.
func (s *Session) WriteRole(role Role, data []byte) error {
	h, err := s.roleHandle("write", role)
	if err != nil {
		return err
	}
	return s.Write(h, data)
}

func (s *Session) roleHandle(op string, role Role) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.registry.Handle(role)
	if !ok {
		return nil, newError(op, KindNotInitialized, "role %q not selected", role)
	}
	return h, nil
}

// checkHandleLocked rejects handles that do not belong to the held
// connection. Caller must hold mu.
func (s *Session) checkHandleLocked(op string, h *Handle) error {
	if s.gatt == nil {
		return newError(op, KindNotInitialized, "not connected")
	}
	if h.gen != s.gen || h.char == nil {
		return newError(op, KindNotInitialized, "stale handle for %s", h.UUID)
	}
	return nil
}

func (s *Session) submitWriteLocked(h *Handle, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	s.trackLocked(opWrite, h)
	if err := s.gatt.WriteCharacteristic(h.char, buf, h.WriteType); err != nil {
		s.completeLocked(opWrite, h.UUID)
		return wrapError("write", KindTransportFailure, err)
	}
	slog.Debug("[BLE] write submitted", "role", string(h.Role), "uuid", h.UUID, "bytes", len(buf), "type", h.WriteType.String())
	return nil
}

// trackLocked records a pending operation and arms its timeout. A newer
// operation on the same characteristic supersedes the older one.
func (s *Session) trackLocked(kind opKind, h *Handle) {
	key := newOpKey(kind, h.UUID)
	if old, ok := s.pending[key]; ok && old.timer != nil {
		old.timer.Stop()
	}
	p := &pendingOp{role: h.Role}
	if s.opts.OpTimeout > 0 {
		p.timer = time.AfterFunc(s.opts.OpTimeout, func() { s.expire(key, p) })
	}
	s.pending[key] = p
}

func (s *Session) completeLocked(kind opKind, uuid string) {
	key := newOpKey(kind, uuid)
	if p, ok := s.pending[key]; ok {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(s.pending, key)
	}
}

func (s *Session) expire(key opKey, p *pendingOp) {
	s.mu.Lock()
	if s.pending[key] != p {
		s.mu.Unlock()
		return
	}
	delete(s.pending, key)
	ev := Event{
		Type:    EventError,
		Address: s.address,
		Role:    p.role,
		UUID:    key.uuid,
		Err:     newError(key.kind.String(), KindTimeout, "no completion after %s", s.opts.OpTimeout),
	}
	s.mu.Unlock()

	slog.Warn("[BLE] operation timed out", "op", key.kind.String(), "uuid", key.uuid)
	s.bus.publish(ev)
}

// failPendingLocked fails every pending operation because the connection
// went away. Caller must hold mu.
func (s *Session) failPendingLocked(addr string) []Event {
	var events []Event
	for key, p := range s.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(s.pending, key)
		events = append(events, Event{
			Type:    EventError,
			Address: addr,
			Role:    p.role,
			UUID:    key.uuid,
			Err:     newError(key.kind.String(), KindNotInitialized, "disconnected before completion"),
		})
	}
	return events
}

func (s *Session) onCharacteristicRead(gen uint64, c *Characteristic, value []byte, status Status) {
	s.mu.Lock()
	if !s.liveLocked(gen) || c == nil {
		s.mu.Unlock()
		return
	}
	s.completeLocked(opRead, c.UUID)
	h := s.registry.lookup(c)

	var events []Event
	if status != StatusSuccess {
		slog.Warn("[BLE] read failed", "uuid", c.UUID, "status", int(status))
		events = append(events, s.errorEvent(newError("read", KindTransportFailure, "status %d", status), h, c.UUID))
	} else {
		data := make([]byte, len(value))
		copy(data, value)
		slog.Info("[BLE] data read", "uuid", c.UUID, "bytes", len(data), "hex", protocol.FormatHex(data))
		ev := Event{Type: EventDataAvailable, Address: s.address, UUID: c.UUID, Data: data}
		if h != nil {
			ev.Role = h.Role
		}
		events = append(events, ev)

		if h != nil && h.Properties.CanWrite() {
			if spec, ok := s.registry.spec(h.Role); ok && len(spec.Ack) > 0 {
				if err := s.submitWriteLocked(h, spec.Ack); err != nil {
					events = append(events, s.errorEvent(asError(err), h, c.UUID))
				}
			}
		}
	}
	s.mu.Unlock()

	s.publish(events)
}

func (s *Session) onCharacteristicWrite(gen uint64, c *Characteristic, status Status) {
	s.mu.Lock()
	if !s.liveLocked(gen) || c == nil {
		s.mu.Unlock()
		return
	}
	s.completeLocked(opWrite, c.UUID)
	h := s.registry.lookup(c)

	var ev Event
	if status != StatusSuccess {
		slog.Warn("[BLE] write failed", "uuid", c.UUID, "status", int(status))
		ev = s.errorEvent(newError("write", KindTransportFailure, "status %d", status), h, c.UUID)
	} else {
		slog.Debug("[BLE] data written", "uuid", c.UUID)
		ev = Event{Type: EventDataWritten, Address: s.address, UUID: c.UUID}
		if h != nil {
			ev.Role = h.Role
		}
	}
	s.mu.Unlock()

	s.bus.publish(ev)
}

func (s *Session) onCharacteristicChanged(gen uint64, c *Characteristic, value []byte) {
	s.mu.Lock()
	if !s.liveLocked(gen) || c == nil {
		s.mu.Unlock()
		return
	}
	h := s.registry.lookup(c)
	var role Role
	if h != nil {
		role = h.Role
	}

	data := make([]byte, len(value))
	copy(data, value)
	slog.Debug("[BLE] value changed", "uuid", c.UUID, "hex", protocol.FormatHex(data))
	events := []Event{{Type: EventDataAvailable, Address: s.address, Role: role, UUID: c.UUID, Data: data}}

	if s.assembler != nil {
		msg, done, err := s.assembler.Feed(data)
		switch {
		case err != nil:
			slog.Warn("[BLE] response buffer overflow", "uuid", c.UUID, "error", err)
			events = append(events, s.errorEvent(wrapError("assemble", KindTransportFailure, err), h, c.UUID))
		case done:
			text := protocol.DecodeText(msg)
			slog.Info("[BLE] message complete", "uuid", c.UUID, "text", text)
			events = append(events, Event{Type: EventMessage, Address: s.address, Role: role, UUID: c.UUID, Data: msg, Text: text})
		}
	}
	s.mu.Unlock()

	s.publish(events)
}

// asError returns err as an *Error, classifying foreign errors as
// transport failures.
func asError(err error) *Error {
	if e, ok := err.(*Error); ok {
		return e
	}
	return wrapError("", KindTransportFailure, err)
}
