// Package live serves the most recent cycles over HTTP and a websocket feed.
package live

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Uranury/thermohygrometer/sampler"
)

const (
	writeTimeout = time.Second
	// sendBuffer is how many summaries a client may fall behind before it is dropped.
	sendBuffer = 4
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// client owns one connection. Only its writePump writes to conn.
type client struct {
	conn *websocket.Conn
	send chan sampler.Summary
}

// Hub keeps the latest cycle and fans it out to websocket clients.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]bool
	latest  *sampler.Summary
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{clients: make(map[*client]bool), logger: logger}
}

// Report stores the cycle and queues it for every client without waiting on
// the network. A client whose queue is full is dropped.
func (h *Hub) Report(_ context.Context, c sampler.Cycle) {
	s := c.Summary()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = &s
	for cl := range h.clients {
		select {
		case cl.send <- s:
		default:
			h.logger.Warn("websocket client too slow, dropping")
			h.removeLocked(cl)
		}
	}
}

func (h *Hub) Latest() (sampler.Summary, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil {
		return sampler.Summary{}, false
	}
	return *h.latest, true
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// removeLocked unregisters cl and stops its writer. h.mu must be held.
func (h *Hub) removeLocked(cl *client) {
	if !h.clients[cl] {
		return
	}
	delete(h.clients, cl)
	close(cl.send)
}

func (h *Hub) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	cl := &client{conn: conn, send: make(chan sampler.Summary, sendBuffer)}

	h.mu.Lock()
	h.clients[cl] = true
	n := len(h.clients)
	if h.latest != nil {
		cl.send <- *h.latest
	}
	h.mu.Unlock()
	h.logger.Info("client connected", "clients", n)

	go h.writePump(cl)

	// Keep connection alive until the peer goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	h.removeLocked(cl)
	n = len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client disconnected", "clients", n)
}

// writePump drains cl.send until it is closed or a write fails.
func (h *Hub) writePump(cl *client) {
	defer cl.conn.Close()
	for s := range cl.send {
		cl.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := cl.conn.WriteJSON(s); err != nil {
			h.logger.Warn("websocket write failed", "err", err)
			h.mu.Lock()
			h.removeLocked(cl)
			h.mu.Unlock()
			return
		}
	}
	cl.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeTimeout))
}
