package notify

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openfab/fabdrive/logger"
)

const (
	// sendBufferSize is the per-client outbound message buffer. A client that
	// falls this far behind is disconnected rather than allowed to block
	// publication.
	sendBufferSize = 64

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checking belongs to the HTTP layer in front of the hub.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub broadcasts published events to connected websocket clients.
//
// Publish never blocks: each client has a bounded send buffer, and a client
// whose buffer is full is dropped. The hub is an http.Handler; requests are
// upgraded to websocket connections.
type Hub struct {
	logger logger.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	closed  bool
}

var _ Notifier = (*Hub)(nil)

// NewHub creates an empty hub.
func NewHub(l logger.Logger) *Hub {
	if l == nil {
		l = logger.GetLogger()
	}

	return &Hub{
		logger:  l,
		clients: make(map[*wsClient]struct{}),
	}
}

// Publish broadcasts the event to every connected client. Fire-and-forget:
// marshal failures are logged and slow clients are dropped.
func (h *Hub) Publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal event failed", "event", ev.Event, "error", err)

		return
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.trySend(data) {
			h.logger.Warn("websocket client too slow, dropping")
			h.unregister(c)
		}
	}
}

// ServeHTTP upgrades the request and keeps the connection until either side
// closes it.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)

		return
	}

	c := &wsClient{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()

		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("websocket client connected", "clients", count)

	go c.writePump()
	c.readPump() // blocks until the client disconnects

	h.unregister(c)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// Close disconnects every client and rejects future connections.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.shutdown()
	}
}

// unregister removes the client. Only the goroutine that wins the map removal
// shuts the client down, so teardown races cannot double-close.
func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if existed {
		c.shutdown()
	}
}

// wsClient is one connected websocket consumer.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	closeOnce sync.Once
}

// trySend queues data for delivery. Returns false when the client's buffer is
// full. Data sent to a client already shutting down is silently dropped.
func (c *wsClient) trySend(data []byte) bool {
	select {
	case <-c.done:
		return true
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *wsClient) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// writePump drains the send buffer to the connection and keeps the connection
// alive with pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes and discards inbound frames. The hub is broadcast-only;
// the read loop exists to notice disconnects and answer pings.
func (c *wsClient) readPump() {
	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
