package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ernie/minebridge/internal/domain"
)

const (
	feedQueueSize    = 64
	feedWriteTimeout = 10 * time.Second
	feedPingInterval = 30 * time.Second
	feedPongTimeout  = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// feedClient is one websocket subscriber and its outbound queue
type feedClient struct {
	conn   *websocket.Conn
	queue  chan []byte
	remote string
}

// WebSocketHub fans classified game events out to feed subscribers. A
// subscriber that falls a full queue behind is disconnected.
type WebSocketHub struct {
	log *slog.Logger
	now func() time.Time

	mu      sync.Mutex
	clients map[*feedClient]struct{}
	stopped bool
}

// NewWebSocketHub creates an empty hub
func NewWebSocketHub(logger *slog.Logger) *WebSocketHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHub{
		log:     logger,
		now:     time.Now,
		clients: make(map[*feedClient]struct{}),
	}
}

// Run blocks until ctx ends, then disconnects every subscriber and refuses
// new ones
func (h *WebSocketHub) Run(ctx context.Context) {
	<-ctx.Done()
	h.mu.Lock()
	h.stopped = true
	for c := range h.clients {
		h.dropLocked(c)
	}
	h.mu.Unlock()
}

// Publish queues ev for every subscriber without blocking the caller
func (h *WebSocketHub) Publish(_ context.Context, ev domain.GameEvent) error {
	data, err := ev.Encode(h.now())
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.queue <- data:
		default:
			h.log.Warn("feed client too slow, disconnecting", "remote", c.remote)
			h.dropLocked(c)
		}
	}
	return nil
}

// ClientCount returns the number of connected subscribers
func (h *WebSocketHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *WebSocketHub) add(c *feedClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	h.clients[c] = struct{}{}
	h.log.Info("feed client connected", "remote", c.remote, "total", len(h.clients))
	return true
}

func (h *WebSocketHub) remove(c *feedClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		h.dropLocked(c)
		h.log.Info("feed client disconnected", "remote", c.remote, "total", len(h.clients))
	}
}

// dropLocked closes the client's queue, which ends its writer
func (h *WebSocketHub) dropLocked(c *feedClient) {
	delete(h.clients, c)
	close(c.queue)
}

// handleWebSocket subscribes the caller to the event feed. Incoming frames
// are read only to service pings and notice the close.
func (r *Router) handleWebSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &feedClient{conn: conn, queue: make(chan []byte, feedQueueSize), remote: req.RemoteAddr}
	if !r.wsHub.add(c) {
		conn.Close()
		return
	}

	go c.write()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(feedPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(feedPongTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	r.wsHub.remove(c)
	conn.Close()
}

// write sends one event per text frame, with periodic pings
func (c *feedClient) write() {
	ping := time.NewTicker(feedPingInterval)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.queue:
			c.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
