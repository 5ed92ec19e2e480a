package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking in production
		return true
	},
}

// Handler accepts WebSocket connections and runs the per-connection read and
// write pumps. Each connection reads inbound frames sequentially; routing a
// frame may fan out to any number of other connections.
type Handler struct {
	registry *Registry
	router   *Router
}

// NewHandler creates a new WebSocket handler.
func NewHandler(registry *Registry, router *Router) *Handler {
	return &Handler{
		registry: registry,
		router:   router,
	}
}

// HandleConnection upgrades the HTTP request and registers the connection as
// present but unauthenticated. A token query parameter is an optional auth
// shortcut equivalent to an immediate auth command; a later explicit auth
// command re-authenticates (last wins).
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := NewClient(conn)
	h.registry.Connect(client)

	if token := r.URL.Query().Get("token"); token != "" {
		h.router.HandleAuthToken(client, token)
	}

	go h.writePump(client)
	go h.readPump(client)

	return nil
}

// readPump pumps inbound frames from the connection through the router.
// Transport closure is the only cancellation signal; the deferred disconnect
// runs exactly once per connection and the registry call is idempotent.
func (h *Handler) readPump(client *Client) {
	defer func() {
		h.registry.Disconnect(client)
		client.Conn().Close()
	}()

	client.Conn().SetReadLimit(maxMessageSize)
	client.Conn().SetReadDeadline(time.Now().Add(pongWait))
	client.Conn().SetPongHandler(func(string) error {
		client.Conn().SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := client.Conn().ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			client.SendEnvelope(&Envelope{Type: TypeError, Error: ErrInvalidJSON})
			continue
		}

		h.router.Handle(context.Background(), client, &env)
	}
}

// writePump pumps queued frames to the connection and keeps it alive with
// pings. Each envelope goes out in its own text frame.
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn().Close()
	}()

	for {
		select {
		case message, ok := <-client.SendChan():
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The registry closed the queue
				client.Conn().WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Conn().WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Drain whatever queued while we were writing, one frame each
			n := len(client.SendChan())
			for i := 0; i < n; i++ {
				queued := <-client.SendChan()
				client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.Conn().WriteMessage(websocket.TextMessage, queued); err != nil {
					return
				}
			}
		case <-ticker.C:
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn().WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
