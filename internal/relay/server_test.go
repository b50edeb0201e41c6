package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chaz8081/invisa-link/internal/ble"
)

type fakeSource struct {
	mu      sync.Mutex
	events  chan ble.Event
	state   ble.State
	address string
	handles []*ble.Handle
}

func newFakeSource() *fakeSource {
	return &fakeSource{events: make(chan ble.Event, 8)}
}

func (f *fakeSource) Subscribe(int) (<-chan ble.Event, func()) {
	return f.events, func() {}
}

func (f *fakeSource) State() ble.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSource) Address() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.address
}

func (f *fakeSource) Handles() []*ble.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handles
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", hub.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEventsAreRelayed(t *testing.T) {
	src := newFakeSource()
	relay := NewServer(src)
	srv := httptest.NewServer(relay.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Pump(ctx)

	conn := dial(t, srv)
	waitClients(t, relay.Hub(), 1)

	src.events <- ble.Event{
		Type:    ble.EventDataAvailable,
		Address: "AA:BB:CC:DD:EE:FF",
		Role:    ble.RoleEmergency,
		UUID:    "6e400002-b5a3-f393-e0a9-e50e24dcca9e",
		Data:    []byte("HELP"),
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if msg.Type != "data-available" {
		t.Errorf("Type = %q", msg.Type)
	}
	if msg.Role != "emergency" {
		t.Errorf("Role = %q", msg.Role)
	}
	if msg.Data != "48 45 4c 50" {
		t.Errorf("Data = %q", msg.Data)
	}
	if msg.Text != "HELP" {
		t.Errorf("Text = %q", msg.Text)
	}
}

func TestErrorEventCarriesKind(t *testing.T) {
	msg := FromEvent(ble.Event{Type: ble.EventError, Err: ble.ErrTimeout})
	if msg.Type != "error" {
		t.Errorf("Type = %q", msg.Type)
	}
	if msg.Error == "" || msg.Kind != ble.KindOf(ble.ErrTimeout).String() {
		t.Errorf("Error = %q, Kind = %q", msg.Error, msg.Kind)
	}
}

func TestBinaryDataHasNoText(t *testing.T) {
	msg := FromEvent(ble.Event{Type: ble.EventDataAvailable, Data: []byte{0x00, 0xff}})
	if msg.Text != "" {
		t.Errorf("Text = %q, want empty for binary data", msg.Text)
	}
	if msg.Data != "00 ff" {
		t.Errorf("Data = %q", msg.Data)
	}
}

func TestClientRemovedOnClose(t *testing.T) {
	relay := NewServer(newFakeSource())
	srv := httptest.NewServer(relay.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	waitClients(t, relay.Hub(), 1)
	conn.Close()
	waitClients(t, relay.Hub(), 0)
}

func TestStatus(t *testing.T) {
	src := newFakeSource()
	src.state = ble.StateServicesDiscovered
	src.address = "AA:BB:CC:DD:EE:FF"
	h := ble.NewHandle("00002a19-0000-1000-8000-00805f9b34fb", ble.PropRead|ble.PropNotify)
	h.Role = ble.RoleBatteryLevel
	h.ServiceUUID = "0000180f-0000-1000-8000-00805f9b34fb"
	src.handles = []*ble.Handle{h}

	relay := NewServer(src)
	rec := httptest.NewRecorder()
	relay.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	var st Status
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.State != "services-discovered" || st.Address != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("status = %+v", st)
	}
	if len(st.Handles) != 1 {
		t.Fatalf("handles = %d, want 1", len(st.Handles))
	}
	if st.Handles[0].Role != "battery-level" || st.Handles[0].Delivery != "notify" {
		t.Errorf("handle = %+v", st.Handles[0])
	}
}

func TestStatusMethodNotAllowed(t *testing.T) {
	relay := NewServer(newFakeSource())
	rec := httptest.NewRecorder()
	relay.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status code = %d, want 405", rec.Code)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	relay := NewServer(newFakeSource())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- relay.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe() error = %v", err)
		}
	case <-time.After(2 * shutdownWait):
		t.Fatal("ListenAndServe() did not return after cancel")
	}
}
