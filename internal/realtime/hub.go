package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/idan5353/video-threat-detection/internal/metrics"
	"github.com/idan5353/video-threat-detection/internal/registry"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 32
)

// Hub holds the websocket connections served by this process and delivers
// to them by connection id. Connection ids are registered in the shared
// registry for as long as the socket is open.
type Hub struct {
	registry registry.Registry
	metrics  *metrics.Metrics

	mu      sync.RWMutex
	clients map[string]*client
}

func NewHub(reg registry.Registry, m *metrics.Metrics) *Hub {
	if m == nil {
		m = metrics.Discard()
	}
	return &Hub{
		registry: reg,
		metrics:  m,
		clients:  make(map[string]*client),
	}
}

type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

// Attach takes ownership of an upgraded connection, registers it under a new
// connection id and starts its pumps.
func (h *Hub) Attach(ctx context.Context, conn *websocket.Conn) (string, error) {
	c := &client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}

	// Track locally first so a broadcast that lists the new id can reach it.
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	if err := h.registry.Register(ctx, c.id); err != nil {
		h.mu.Lock()
		delete(h.clients, c.id)
		h.mu.Unlock()
		_ = conn.Close()
		return "", fmt.Errorf("register websocket connection: %w", err)
	}
	h.metrics.ActiveSockets.Inc()
	slog.Info("websocket client connected", "connection_id", c.id)

	go c.writePump()
	go c.readPump()
	return c.id, nil
}

// Deliver queues payload for connectionID. Unknown or closed connections
// report ErrConnectionGone. If ctx ends before the payload is queued the
// client is closed and ErrDelivery is returned.
func (h *Hub) Deliver(ctx context.Context, connectionID string, payload []byte) error {
	h.mu.RLock()
	c, ok := h.clients[connectionID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrConnectionGone, connectionID)
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return fmt.Errorf("%w: %s", ErrConnectionGone, connectionID)
	case <-ctx.Done():
		// A client that cannot drain its queue in time is dropped so its
		// socket and pumps do not outlive the registry entry.
		c.close()
		return fmt.Errorf("%w: %s: %w", ErrDelivery, connectionID, ctx.Err())
	}
}

// Len returns the number of open connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) detach(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	h.mu.Unlock()
	if !ok {
		return
	}
	h.metrics.ActiveSockets.Dec()

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	if err := h.registry.Deregister(ctx, c.id); err != nil {
		slog.Error("deregister websocket connection", "connection_id", c.id, "error", err)
	}
	slog.Info("websocket client disconnected", "connection_id", c.id)
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.hub.detach(c)
	})
}

// readPump drains inbound frames so control frames are processed. Clients
// send nothing meaningful.
func (c *client) readPump() {
	defer func() {
		c.close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("unexpected websocket close", "connection_id", c.id, "error", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				slog.Warn("websocket write failed", "connection_id", c.id, "error", err)
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ Deliverer = (*Hub)(nil)
