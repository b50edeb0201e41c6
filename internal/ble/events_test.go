package ble

import "testing"

func TestEventBusFanOut(t *testing.T) {
	b := newEventBus()
	a, cancelA := b.subscribe(4)
	c, cancelC := b.subscribe(4)
	defer cancelA()
	defer cancelC()

	b.publish(Event{Type: EventConnected})
	if ev := <-a; ev.Type != EventConnected {
		t.Errorf("subscriber a got %s", ev.Type)
	}
	if ev := <-c; ev.Type != EventConnected {
		t.Errorf("subscriber c got %s", ev.Type)
	}
}

func TestEventBusDropsOldestWhenFull(t *testing.T) {
	b := newEventBus()
	ch, cancel := b.subscribe(2)
	defer cancel()

	b.publish(Event{Type: EventConnected})
	b.publish(Event{Type: EventServicesDiscovered})
	b.publish(Event{Type: EventDataAvailable})

	if ev := <-ch; ev.Type != EventServicesDiscovered {
		t.Errorf("first = %s, want services-discovered", ev.Type)
	}
	if ev := <-ch; ev.Type != EventDataAvailable {
		t.Errorf("second = %s, want data-available", ev.Type)
	}
}

func TestEventBusCancel(t *testing.T) {
	b := newEventBus()
	ch, cancel := b.subscribe(1)
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel open after cancel")
	}
	b.publish(Event{Type: EventConnected})
}

func TestEventBusClose(t *testing.T) {
	b := newEventBus()
	ch, cancel := b.subscribe(1)
	b.close()
	if _, ok := <-ch; ok {
		t.Error("channel open after close")
	}
	cancel()

	late, _ := b.subscribe(1)
	if _, ok := <-late; ok {
		t.Error("subscription after close should be closed")
	}
}

func TestEventTypeString(t *testing.T) {
	if EventDataWritten.String() != "data-written" {
		t.Errorf("String() = %q", EventDataWritten.String())
	}
	if EventType(0).String() != "unknown" {
		t.Errorf("zero String() = %q", EventType(0).String())
	}
}
