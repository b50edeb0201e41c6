package ble

import (
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/invisa-link/internal/ble/protocol"
)

// ClientOptions configures the Client behavior.
type ClientOptions struct {
	QueueSize       int           // max queued writes while the link is down
	ReconnectMax    int           // max reconnect backoff in seconds
	InterChunkDelay time.Duration // delay between write chunks (default 20ms)
	ChunkSize       int           // bytes per write (default fits the minimum MTU)
	Reconnect       bool          // reconnect with backoff after the link drops
}

// DefaultClientOptions returns sensible defaults.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		QueueSize:       64,
		ReconnectMax:    30,
		InterChunkDelay: 20 * time.Millisecond,
		ChunkSize:       protocol.MaxWritePayload(protocol.DefaultMTU),
	}
}

type queuedWrite struct {
	role Role
	data []byte
	text bool
}

// Client drives a Session for one peripheral on behalf of a long-running
// caller. It queues writes until services are discovered, splits them to
// fit the link, and optionally reconnects after the link drops.
type Client struct {
	session *Session
	address string
	opts    ClientOptions

	mu       sync.Mutex
	ready    bool
	closed   bool
	attempt  int
	retry    *time.Timer
	queue    []queuedWrite
	stopObs  func()
	observed bool
}

// NewClient creates a client for address over session.
func NewClient(session *Session, address string, opts ClientOptions) *Client {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 30
	}
	if opts.InterChunkDelay < 0 {
		opts.InterChunkDelay = 0
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = protocol.MaxWritePayload(protocol.DefaultMTU)
	}
	return &Client{
		session: session,
		address: address,
		opts:    opts,
	}
}

// Connect starts connecting to the peripheral. Queued writes are flushed
// once services are discovered.
func (c *Client) Connect() error {
	c.mu.Lock()
	if !c.observed {
		c.stopObs = c.session.Observe(c.handleEvent)
		c.observed = true
	}
	c.closed = false
	c.mu.Unlock()

	return c.session.Connect(c.address)
}

// Send writes data to role, split into ChunkSize pieces. If the link is
// not ready the data is queued for delivery after discovery. Safe for
// concurrent use.
func (c *Client) Send(role Role, data []byte) error {
	return c.send(queuedWrite{role: role, data: data})
}

// SendText is Send for text. Pieces break at spaces where possible and
// never inside a UTF-8 sequence.
func (c *Client) SendText(role Role, text string) error {
	return c.send(queuedWrite{role: role, data: []byte(text), text: true})
}

func (c *Client) send(w queuedWrite) error {
	if len(w.data) == 0 {
		return nil
	}

	c.mu.Lock()
	if !c.ready {
		c.enqueue(w)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	return c.sendChunked(w)
}

// Pieces returns how data would be split for writing.
func (c *Client) Pieces(data []byte, text bool) [][]byte {
	if !text {
		return protocol.Chunk(data, c.opts.ChunkSize)
	}
	var pieces [][]byte
	for _, s := range protocol.ChunkText(string(data), c.opts.ChunkSize) {
		pieces = append(pieces, []byte(s))
	}
	return pieces
}

func (c *Client) sendChunked(w queuedWrite) error {
	chunks := c.Pieces(w.data, w.text)
	for i, chunk := range chunks {
		if err := c.session.WriteRole(w.role, chunk); err != nil {
			return err
		}
		if i < len(chunks)-1 && c.opts.InterChunkDelay > 0 {
			time.Sleep(c.opts.InterChunkDelay)
		}
	}
	return nil
}

// enqueue adds a write to the queue (caller must hold mu).
func (c *Client) enqueue(w queuedWrite) {
	if len(c.queue) >= c.opts.QueueSize {
		slog.Warn("[BLE] queue full, dropping oldest write")
		c.queue = c.queue[1:]
	}
	buf := make([]byte, len(w.data))
	copy(buf, w.data)
	w.data = buf
	c.queue = append(c.queue, w)
}

// QueueLen returns the number of queued writes.
func (c *Client) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Ready reports whether services are discovered and writes go out
// immediately.
func (c *Client) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// flushQueue sends all queued writes. A write that fails is dropped and
// reported as an Error event for its role.
func (c *Client) flushQueue() {
	c.mu.Lock()
	if !c.ready || len(c.queue) == 0 {
		c.mu.Unlock()
		return
	}
	queued := c.queue
	c.queue = nil
	c.mu.Unlock()

	for _, w := range queued {
		if err := c.sendChunked(w); err != nil {
			slog.Error("[BLE] failed to flush queued write", "role", string(w.role), "error", err)
			c.session.reportError(w.role, err)
		}
	}
}

func (c *Client) handleEvent(ev Event) {
	switch ev.Type {
	case EventServicesDiscovered:
		c.mu.Lock()
		c.ready = true
		c.attempt = 0
		c.mu.Unlock()
		c.flushQueue()
	case EventDisconnected:
		c.mu.Lock()
		c.ready = false
		if c.opts.Reconnect && !c.closed && c.retry == nil {
			delay := backoffDelay(c.attempt, c.opts.ReconnectMax)
			c.attempt++
			slog.Info("[BLE] reconnect backoff", "attempt", c.attempt, "delay", delay)
			c.retry = time.AfterFunc(delay, c.reconnect)
		}
		c.mu.Unlock()
	}
}

func (c *Client) reconnect() {
	c.mu.Lock()
	c.retry = nil
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	if err := c.session.Connect(c.address); err != nil {
		slog.Warn("[BLE] reconnect failed", "addr", c.address, "error", err)
		// Connect failed before reaching the radio; no Disconnected event
		// will follow, so schedule the next attempt here.
		c.handleEvent(Event{Type: EventDisconnected, Address: c.address})
	}
}

// Close stops reconnecting and disconnects the session.
func (c *Client) Close() error {
	c.mu.Lock()
	if len(c.queue) > 0 {
		slog.Warn("[BLE] closing with unsent writes", "count", len(c.queue))
	}
	c.closed = true
	c.ready = false
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	stop := c.stopObs
	c.stopObs = nil
	c.observed = false
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	if err := c.session.Disconnect(); err != nil && KindOf(err) != KindNotInitialized {
		return err
	}
	return nil
}

// backoffDelay returns the reconnection delay for attempt n, capped at maxSeconds.
func backoffDelay(attempt int, maxSeconds int) time.Duration {
	max := time.Duration(maxSeconds) * time.Second
	if attempt >= 30 {
		return max
	}
	delay := time.Duration(1<<uint(attempt)) * time.Second
	if delay > max {
		return max
	}
	return delay
}
