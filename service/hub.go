package service

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/forge/types"
)

const (
	// clientQueueSize bounds per-client outbound buffering. A client
	// that falls this far behind is disconnected rather than allowed
	// to stall the broadcast path.
	clientQueueSize = 64

	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// ActivityEvent is the wire format on the activity feed.
type ActivityEvent struct {
	Kind      string            `json:"kind"`
	Timestamp time.Time         `json:"timestamp"`
	Plan      *types.ActionPlan `json:"plan,omitempty"`
}

// Hub broadcasts executed action plans to connected websocket clients.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
	closed  bool
}

// NewHub creates an activity hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The feed is read-only telemetry; origin enforcement
			// belongs to the fronting proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logger.With("component", "activity-hub"),
		clients: make(map[*websocket.Conn]chan []byte),
	}
}

// ServeHTTP upgrades the request and streams activity until the client
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	queue := make(chan []byte, clientQueueSize)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[conn] = queue
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("activity client connected", "remote", r.RemoteAddr, "clients", count)

	go h.writeLoop(conn, queue)
	h.readLoop(conn)
}

// writeLoop drains the client queue and keeps the connection alive with
// pings.
func (h *Hub) writeLoop(conn *websocket.Conn, queue chan []byte) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-queue:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(writeTimeout))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.remove(conn)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(conn)
				return
			}
		}
	}
}

// readLoop consumes (and discards) client frames so pongs and close
// frames are processed.
func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.remove(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	queue, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
	}
	h.mu.Unlock()

	if ok {
		close(queue)
		conn.Close()
	}
}

// BroadcastPlan fans an executed plan out to every connected client.
// Clients whose queue is full are dropped.
func (h *Hub) BroadcastPlan(plan *types.ActionPlan) {
	event := ActivityEvent{
		Kind:      "plan_executed",
		Timestamp: time.Now().UTC(),
		Plan:      plan,
	}
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("marshal activity event", "error", err)
		return
	}

	h.mu.RLock()
	var slow []*websocket.Conn
	for conn, queue := range h.clients {
		select {
		case queue <- data:
		default:
			slow = append(slow, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range slow {
		h.logger.Warn("dropping slow activity client", "remote", conn.RemoteAddr())
		h.remove(conn)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		h.remove(conn)
	}
}
