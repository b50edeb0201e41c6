package relay

import (
	"time"

	"github.com/chaz8081/invisa-link/internal/ble"
	"github.com/chaz8081/invisa-link/internal/ble/protocol"
)

// Message is the JSON form of a session event.
type Message struct {
	Type      string    `json:"type"`
	Address   string    `json:"address,omitempty"`
	Role      string    `json:"role,omitempty"`
	UUID      string    `json:"uuid,omitempty"`
	Data      string    `json:"data,omitempty"` // hex
	Text      string    `json:"text,omitempty"`
	Error     string    `json:"error,omitempty"`
	Kind      string    `json:"kind,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// FromEvent converts ev for the wire.
func FromEvent(ev ble.Event) Message {
	msg := Message{
		Type:      ev.Type.String(),
		Address:   ev.Address,
		Role:      string(ev.Role),
		UUID:      ev.UUID,
		Data:      protocol.FormatHex(ev.Data),
		Text:      ev.Text,
		Timestamp: time.Now(),
	}
	if msg.Text == "" && ev.Type == ble.EventDataAvailable && protocol.Printable(ev.Data) {
		msg.Text = protocol.DecodeText(ev.Data)
	}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
		msg.Kind = ble.KindOf(ev.Err).String()
	}
	return msg
}

// HandleInfo describes a selected characteristic.
type HandleInfo struct {
	Role       string `json:"role"`
	Service    string `json:"service"`
	UUID       string `json:"uuid"`
	Properties string `json:"properties"`
	WriteType  string `json:"write_type"`
	Delivery   string `json:"delivery"`
}

// Status is the /status response.
type Status struct {
	State   string       `json:"state"`
	Address string       `json:"address,omitempty"`
	Handles []HandleInfo `json:"handles"`
	Clients int          `json:"clients"`
}

// ErrorResponse is returned with non-2xx statuses.
type ErrorResponse struct {
	Error string `json:"error"`
}
