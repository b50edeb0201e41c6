package ble

import (
	"log/slog"
	"sync"
)

// EventType identifies a session event.
type EventType int

const (
	EventConnected EventType = iota + 1
	EventDisconnected
	EventServicesDiscovered
	EventDataAvailable
	EventDataWritten
	EventMessage
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventServicesDiscovered:
		return "services-discovered"
	case EventDataAvailable:
		return "data-available"
	case EventDataWritten:
		return "data-written"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is delivered to session subscribers.
type Event struct {
	Type    EventType
	Address string
	Role    Role
	UUID    string
	Data    []byte
	Text    string // assembled message, EventMessage only
	Err     error  // EventError only
}

// eventBus fans events out to buffered subscriber channels. Publishing
// never blocks; a full subscriber loses its oldest event.
type eventBus struct {
	mu     sync.Mutex
	subs   map[uint64]chan Event
	next   uint64
	closed bool
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[uint64]chan Event)}
}

func (b *eventBus) subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

func (b *eventBus) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		// Drop oldest
		select {
		case old := <-ch:
			slog.Warn("[BLE] event subscriber full, dropping oldest", "dropped", old.Type.String())
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *eventBus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
