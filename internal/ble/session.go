package ble

import (
	"log/slog"
	"sync"
	"time"
)

// State is the connection state of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateServicesDiscovered
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateServicesDiscovered:
		return "services-discovered"
	default:
		return "disconnected"
	}
}

// SessionOptions configures session behavior.
type SessionOptions struct {
	Roles          []RoleSpec
	OpTimeout      time.Duration // pending read/write deadline; negative disables
	Complete       CompleteFunc  // message completion; nil disables reassembly
	MaxMessageSize int           // reassembly limit in bytes
	EventBuffer    int           // buffer of channels created by Observe
}

// DefaultSessionOptions returns sensible defaults. Only the standard
// battery-level role is known without configuration.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		Roles: []RoleSpec{
			{Role: RoleBatteryLevel, ServiceUUID: BatteryServiceUUID, CharacteristicUUID: BatteryLevelCharUUID},
		},
		OpTimeout:      10 * time.Second,
		MaxMessageSize: DefaultMaxMessageSize,
		EventBuffer:    64,
	}
}

// Session owns the single GATT connection to a peripheral, the
// characteristic handles selected on it, and the response buffer.
// All methods are safe for concurrent use and return without waiting for
// the radio; outcomes arrive as events.
type Session struct {
	adapter Adapter
	opts    SessionOptions
	bus     *eventBus

	mu          sync.Mutex
	initialized bool
	state       State
	address     string
	gatt        GATT
	gen         uint64 // bumped whenever the connection slot is released
	registry    *Registry
	assembler   *Assembler
	pending     map[opKey]*pendingOp
}

// NewSession creates a session over adapter. Call Initialize before
// Connect.
func NewSession(adapter Adapter, opts SessionOptions) *Session {
	if opts.OpTimeout == 0 {
		opts.OpTimeout = 10 * time.Second
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = DefaultMaxMessageSize
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}
	s := &Session{
		adapter:  adapter,
		opts:     opts,
		bus:      newEventBus(),
		registry: NewRegistry(opts.Roles...),
		pending:  make(map[opKey]*pendingOp),
	}
	if opts.Complete != nil {
		s.assembler = NewAssembler(opts.Complete, opts.MaxMessageSize)
	}
	return s
}

// Initialize enables the adapter.
func (s *Session) Initialize() error {
	if s.adapter == nil {
		return newError("initialize", KindAdapterUnavailable, "no adapter")
	}
	if err := s.adapter.Enable(); err != nil {
		slog.Error("[BLE] unable to enable adapter", "error", err)
		return wrapError("initialize", KindAdapterUnavailable, err)
	}
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
	return nil
}

// Connect opens the connection to address, or resumes the existing one when
// the slot already holds a handle for the same address. A handle for a
// different address is released first.
func (s *Session) Connect(address string) error {
	const op = "connect"

	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		slog.Info("[BLE] adapter not initialized, refusing to connect")
		return newError(op, KindNotInitialized, "adapter not initialized")
	}
	if address == "" {
		s.mu.Unlock()
		return newError(op, KindDeviceNotFound, "unspecified address")
	}

	if s.gatt != nil && s.address == address {
		slog.Info("[BLE] trying to use existing connection", "addr", address)
		// A live link keeps its state and handles until the backend
		// reports otherwise.
		if s.state < StateConnected {
			s.state = StateConnecting
		}
		err := s.gatt.Connect()
		s.mu.Unlock()
		if err != nil {
			return wrapError(op, KindTransportFailure, err)
		}
		return nil
	}

	events := s.releaseLocked()

	gatt, err := s.adapter.ConnectGATT(address, &sessionCallback{s: s, gen: s.gen})
	if err != nil {
		s.mu.Unlock()
		s.publish(events)
		slog.Warn("[BLE] connect failed", "addr", address, "error", err)
		if KindOf(err) != KindUnknown {
			return err
		}
		return wrapError(op, KindTransportFailure, err)
	}
	s.gatt = gatt
	s.address = address
	s.state = StateConnecting
	s.mu.Unlock()

	s.publish(events)
	slog.Info("[BLE] connecting", "addr", address)
	return nil
}

// Disconnect drops and releases the connection. Handles obtained before
// the call are stale afterwards.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.gatt == nil {
		s.mu.Unlock()
		return newError("disconnect", KindNotInitialized, "no connection")
	}
	if err := s.gatt.Disconnect(); err != nil {
		slog.Warn("[BLE] disconnect failed", "addr", s.address, "error", err)
	}
	events := s.releaseLocked()
	s.mu.Unlock()

	s.publish(events)
	return nil
}

// Close disconnects and ends every event subscription.
func (s *Session) Close() error {
	s.mu.Lock()
	var events []Event
	if s.gatt != nil {
		if err := s.gatt.Disconnect(); err != nil {
			slog.Warn("[BLE] disconnect failed", "addr", s.address, "error", err)
		}
		events = s.releaseLocked()
	}
	s.initialized = false
	s.mu.Unlock()

	s.publish(events)
	s.bus.close()
	return nil
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Address returns the address of the held connection, or "".
func (s *Session) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// Handle returns the handle currently selected for role.
func (s *Session) Handle(role Role) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Handle(role)
}

// Handles returns every selected handle.
func (s *Session) Handles() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Handles()
}

// Subscribe returns a channel receiving every subsequent event and a
// function that ends the subscription.
func (s *Session) Subscribe(buffer int) (<-chan Event, func()) {
	return s.bus.subscribe(buffer)
}

// Observe calls fn for every subsequent event on a dedicated goroutine.
func (s *Session) Observe(fn func(Event)) (stop func()) {
	ch, cancel := s.bus.subscribe(s.opts.EventBuffer)
	go func() {
		for ev := range ch {
			fn(ev)
		}
	}()
	return cancel
}

func (s *Session) publish(events []Event) {
	for _, ev := range events {
		s.bus.publish(ev)
	}
}

// reportError publishes a failure that has no synchronous caller.
func (s *Session) reportError(role Role, err error) {
	s.mu.Lock()
	ev := Event{Type: EventError, Address: s.address, Role: role, Err: err}
	if h, ok := s.registry.Handle(role); ok {
		ev.UUID = h.UUID
	}
	s.mu.Unlock()
	s.bus.publish(ev)
}

// releaseLocked closes the held handle and resets per-connection state.
// Caller must hold mu.
func (s *Session) releaseLocked() []Event {
	s.gen++
	s.state = StateDisconnected
	if s.gatt == nil {
		return nil
	}
	addr := s.address
	if err := s.gatt.Close(); err != nil {
		slog.Warn("[BLE] close failed", "addr", addr, "error", err)
	}
	s.gatt = nil
	s.address = ""
	s.registry.Clear()
	if s.assembler != nil {
		s.assembler.Reset()
	}
	events := s.failPendingLocked(addr)
	return append(events, Event{Type: EventDisconnected, Address: addr})
}

// liveLocked reports whether a callback tagged with gen belongs to the
// held connection. Caller must hold mu.
func (s *Session) liveLocked(gen uint64) bool {
	if gen != s.gen || s.gatt == nil {
		slog.Debug("[BLE] ignoring callback from released connection")
		return false
	}
	return true
}

func (s *Session) errorEvent(err *Error, h *Handle, uuid string) Event {
	ev := Event{Type: EventError, Address: s.address, UUID: uuid, Err: err}
	if h != nil {
		ev.Role = h.Role
	}
	return ev
}

func (s *Session) onConnectionStateChange(gen uint64, status Status, state LinkState) {
	s.mu.Lock()
	if !s.liveLocked(gen) {
		s.mu.Unlock()
		return
	}

	var events []Event
	if state == LinkConnected && status == StatusSuccess {
		slog.Info("[BLE] connected, discovering services", "addr", s.address)
		s.state = StateConnected
		events = append(events, Event{Type: EventConnected, Address: s.address})
		if err := s.gatt.DiscoverServices(); err != nil {
			slog.Error("[BLE] discover services failed", "addr", s.address, "error", err)
			events = append(events, s.errorEvent(wrapError("discover services", KindTransportFailure, err), nil, ""))
		}
	} else {
		if status != StatusSuccess {
			slog.Warn("[BLE] connection failed", "addr", s.address, "status", int(status))
			events = append(events, s.errorEvent(newError("connect", KindTransportFailure, "status %d", status), nil, ""))
		} else {
			slog.Info("[BLE] disconnected", "addr", s.address)
		}
		events = append(events, s.releaseLocked()...)
	}
	s.mu.Unlock()

	s.publish(events)
}

func (s *Session) onServicesDiscovered(gen uint64, status Status) {
	s.mu.Lock()
	if !s.liveLocked(gen) {
		s.mu.Unlock()
		return
	}

	var events []Event
	if status != StatusSuccess {
		slog.Warn("[BLE] service discovery failed", "addr", s.address, "status", int(status))
		events = append(events, s.errorEvent(newError("discover services", KindTransportFailure, "status %d", status), nil, ""))
		s.mu.Unlock()
		s.publish(events)
		return
	}

	handles := s.registry.Select(s.gatt.Services(), s.gen)
	for _, h := range handles {
		if err := s.enableDeliveryLocked(h); err != nil {
			slog.Error("[BLE] enabling delivery failed", "role", string(h.Role), "error", err)
			events = append(events, s.errorEvent(err, h, h.UUID))
		}
	}
	s.state = StateServicesDiscovered
	slog.Info("[BLE] services discovered", "addr", s.address, "roles", len(handles))
	events = append(events, Event{Type: EventServicesDiscovered, Address: s.address})
	s.mu.Unlock()

	s.publish(events)
}

// enableDeliveryLocked registers for indications or notifications and
// writes the matching value to the configuration descriptor.
func (s *Session) enableDeliveryLocked(h *Handle) *Error {
	if h.Delivery == DeliveryNone {
		return nil
	}
	op := "enable " + h.Delivery.String()
	value := EnableNotificationValue
	if h.Delivery == DeliveryIndicate {
		value = EnableIndicationValue
	}

	if err := s.gatt.SetCharacteristicNotification(h.char, true); err != nil {
		return wrapError(op, KindTransportFailure, err)
	}
	for _, d := range h.char.Descriptors {
		if !EqualUUID(d.UUID, CCCDUUID) {
			continue
		}
		if err := s.gatt.WriteDescriptor(h.char, d, value); err != nil {
			return wrapError(op, KindTransportFailure, err)
		}
		slog.Info("[BLE] delivery enabled", "role", string(h.Role), "mode", h.Delivery.String())
		return nil
	}
	slog.Warn("[BLE] no configuration descriptor", "role", string(h.Role), "uuid", h.UUID)
	return nil
}

// sessionCallback routes platform callbacks to the session, tagged with the
// generation of the connection they belong to.
type sessionCallback struct {
	s   *Session
	gen uint64
}

func (c *sessionCallback) OnConnectionStateChange(status Status, state LinkState) {
	c.s.onConnectionStateChange(c.gen, status, state)
}

func (c *sessionCallback) OnServicesDiscovered(status Status) {
	c.s.onServicesDiscovered(c.gen, status)
}

func (c *sessionCallback) OnCharacteristicRead(ch *Characteristic, value []byte, status Status) {
	c.s.onCharacteristicRead(c.gen, ch, value, status)
}

func (c *sessionCallback) OnCharacteristicWrite(ch *Characteristic, status Status) {
	c.s.onCharacteristicWrite(c.gen, ch, status)
}

func (c *sessionCallback) OnCharacteristicChanged(ch *Characteristic, value []byte) {
	c.s.onCharacteristicChanged(c.gen, ch, value)
}
