package ble

import (
	"log/slog"
	"sort"
)

// Role names a logical characteristic the session tracks.
type Role string

const (
	RoleEmergency        Role = "emergency"
	RoleMissedConnection Role = "missed-connection"
	RoleBatteryLevel     Role = "battery-level"
)

// RoleSpec binds a role to the service and characteristic UUIDs that
// carry it on the peripheral.
type RoleSpec struct {
	Role               Role
	ServiceUUID        string
	CharacteristicUUID string
	// Ack, when set, is written back to the characteristic after every
	// successful read.
	Ack []byte
}

// Delivery is how server-initiated updates are received.
type Delivery int

const (
	DeliveryNone Delivery = iota
	DeliveryNotify
	DeliveryIndicate
)

func (d Delivery) String() string {
	switch d {
	case DeliveryNotify:
		return "notify"
	case DeliveryIndicate:
		return "indicate"
	default:
		return "none"
	}
}

// Handle is a characteristic selected for a role on one connection.
// Handles become stale when the connection is released.
type Handle struct {
	Role        Role
	UUID        string
	ServiceUUID string
	Properties  Properties
	WriteType   WriteType
	Delivery    Delivery

	char *Characteristic
	gen  uint64
}

// NewHandle builds a handle that is not bound to any connection. Reads and
// writes against it are checked for capability and then rejected as stale.
func NewHandle(uuid string, props Properties) *Handle {
	h := &Handle{UUID: uuid, Properties: props, char: &Characteristic{UUID: uuid, Properties: props}}
	h.WriteType, h.Delivery = configure(props)
	return h
}

// configure derives delivery and write mode from the capability bits. The
// two are independent; within each, indicate beats notify and acknowledged
// writes beat unacknowledged ones.
func configure(p Properties) (WriteType, Delivery) {
	delivery := DeliveryNone
	if p.Has(PropIndicate) {
		delivery = DeliveryIndicate
	} else if p.Has(PropNotify) {
		delivery = DeliveryNotify
	}

	wt := WriteDefault
	if !p.Has(PropWrite) && p.Has(PropWriteWithoutResponse) {
		wt = WriteNoResponse
	}
	return wt, delivery
}

// Registry selects characteristics for configured roles. It keeps at most
// one handle per role. Not safe for concurrent use.
type Registry struct {
	specs   []RoleSpec
	handles map[Role]*Handle
}

// NewRegistry returns a registry for the given roles.
func NewRegistry(specs ...RoleSpec) *Registry {
	return &Registry{
		specs:   specs,
		handles: make(map[Role]*Handle),
	}
}

// Specs returns the configured roles.
func (r *Registry) Specs() []RoleSpec { return r.specs }

// Select clears previous handles and matches every role against the
// discovered services. Matched handles are stamped with gen.
func (r *Registry) Select(services []*Service, gen uint64) []*Handle {
	r.Clear()
	for _, spec := range r.specs {
		for _, svc := range services {
			if !EqualUUID(svc.UUID, spec.ServiceUUID) {
				continue
			}
			for _, c := range svc.Characteristics {
				if c == nil || !EqualUUID(c.UUID, spec.CharacteristicUUID) {
					continue
				}
				h := &Handle{
					Role:        spec.Role,
					UUID:        c.UUID,
					ServiceUUID: svc.UUID,
					Properties:  c.Properties,
					char:        c,
					gen:         gen,
				}
				h.WriteType, h.Delivery = configure(c.Properties)
				r.handles[spec.Role] = h
				slog.Debug("[BLE] role selected", "role", string(spec.Role), "uuid", c.UUID,
					"props", c.Properties.String(), "delivery", h.Delivery.String(), "write", h.WriteType.String())
			}
		}
		if _, ok := r.handles[spec.Role]; !ok {
			slog.Warn("[BLE] role not found on peripheral", "role", string(spec.Role),
				"service", spec.ServiceUUID, "uuid", spec.CharacteristicUUID)
		}
	}
	return r.Handles()
}

// Handle returns the handle selected for role.
func (r *Registry) Handle(role Role) (*Handle, bool) {
	h, ok := r.handles[role]
	return h, ok
}

// Handles returns all selected handles ordered by role name.
func (r *Registry) Handles() []*Handle {
	out := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out
}

// lookup finds the handle that owns c.
func (r *Registry) lookup(c *Characteristic) *Handle {
	for _, h := range r.handles {
		if h.char == c {
			return h
		}
	}
	if c == nil {
		return nil
	}
	for _, h := range r.handles {
		if EqualUUID(h.UUID, c.UUID) {
			return h
		}
	}
	return nil
}

// spec returns the configuration for role.
func (r *Registry) spec(role Role) (RoleSpec, bool) {
	for _, s := range r.specs {
		if s.Role == role {
			return s, true
		}
	}
	return RoleSpec{}, false
}

// Clear drops every handle.
func (r *Registry) Clear() {
	for role := range r.handles {
		delete(r.handles, role)
	}
}
