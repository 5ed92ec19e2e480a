package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// sendBufferSize bounds the per-connection outbound queue. A client that
// falls this far behind is closed and reaped on its own disconnect.
const sendBufferSize = 256

// Client represents one live WebSocket connection. The registry indexes
// clients by their generated session ID, never by the transport object.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// NewClient creates a client for the given transport connection. The
// connection may be nil in tests.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// ID returns the opaque session identifier for this connection.
func (c *Client) ID() string {
	return c.id
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the outbound queue drained by the write pump.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

// Send queues a frame for delivery. It never blocks and never fails to the
// caller: a full buffer closes the client, which is then left for its own
// disconnect cleanup.
func (c *Client) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		c.closeLocked()
	}
}

// SendEnvelope marshals an envelope and queues it for delivery.
func (c *Client) SendEnvelope(env *Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("Failed to marshal envelope: %v", err)
		return
	}
	c.Send(data)
}

// Close closes the outbound queue. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the outbound queue has been closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
