// Package relay forwards session events to websocket clients and serves a
// small HTTP status API.
package relay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 100 * time.Millisecond

// Hub tracks connected websocket clients.
type Hub struct {
	clients map[*websocket.Conn]bool
	mu      sync.Mutex
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
	}
}

// AddClient registers conn for broadcasts.
func (h *Hub) AddClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
}

// RemoveClient unregisters and closes conn.
func (h *Hub) RemoveClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends msg to every client. Clients that fail to accept the
// write in time are dropped.
func (h *Hub) Broadcast(msg Message) {
	h.mu.Lock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	var failedMu sync.Mutex
	var failed []*websocket.Conn

	for _, conn := range clients {
		wg.Add(1)
		go func(c *websocket.Conn) {
			defer wg.Done()
			c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WriteJSON(msg); err != nil {
				failedMu.Lock()
				failed = append(failed, c)
				failedMu.Unlock()
			}
		}(conn)
	}
	wg.Wait()

	for _, c := range failed {
		slog.Debug("[Relay] dropping client", "remote", c.RemoteAddr().String())
		h.RemoveClient(c)
	}
}

// Ping sends a ping control frame to every client.
func (h *Hub) Ping() {
	h.mu.Lock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
			h.RemoveClient(c)
		}
	}
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		delete(h.clients, conn)
	}
}
