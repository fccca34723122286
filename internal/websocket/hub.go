// Package websocket streams request events to connected admin clients.
package websocket

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-listener-manager/internal/domain"
)

const (
	// sendQueueSize bounds the frames buffered per client
	sendQueueSize = 256
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
)

// EventMessage is the frame sent for every event
type EventMessage struct {
	Type  string       `json:"type"`
	Event domain.Event `json:"event"`
	Line  string       `json:"line"`
}

// MessageTypeEvent is the Type of an EventMessage
const MessageTypeEvent = "event"

// client represents a connected WebSocket client
type client struct {
	id   string
	conn *websocket.Conn
	// port restricts the stream to one port, 0 means all ports
	port int
	send chan []byte

	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// Hub fans events out to WebSocket clients. A client that cannot keep up is
// disconnected so Broadcast never blocks the event router.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	clientsMu sync.RWMutex
	clients   map[string]*client
}

// NewHub creates a new WebSocket hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger: logger.Named("websocket-hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[string]*client),
	}
}

// HandleConnection upgrades the request and registers the client. The
// optional port query parameter restricts the stream to one port.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	port := 0
	if raw := r.URL.Query().Get("port"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p < domain.MinPort || p > domain.MaxPort {
			http.Error(w, "invalid port filter", http.StatusBadRequest)
			return
		}
		port = p
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		port: port,
		send: make(chan []byte, sendQueueSize),
	}

	h.clientsMu.Lock()
	h.clients[c.id] = c
	h.clientsMu.Unlock()

	h.logger.Info("WebSocket client connected",
		zap.String("client_id", c.id), zap.Int("port_filter", port))

	go h.writePump(c)
	go h.readPump(c)
}

// readPump discards client frames and detects disconnects
func (h *Hub) readPump(c *client) {
	defer h.unregister(c)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket read error", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.unregister(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(c)
				return
			}
		}
	}
}

func (h *Hub) unregister(c *client) {
	h.clientsMu.Lock()
	existing, ok := h.clients[c.id]
	if ok && existing == c {
		delete(h.clients, c.id)
	}
	h.clientsMu.Unlock()

	if ok {
		c.close()
		h.logger.Info("WebSocket client disconnected", zap.String("client_id", c.id))
	}
}

// Broadcast queues event for every interested client. It never blocks.
func (h *Hub) Broadcast(event domain.Event) {
	msg, err := json.Marshal(EventMessage{Type: MessageTypeEvent, Event: event, Line: event.Line()})
	if err != nil {
		h.logger.Error("Failed to marshal event", zap.Error(err))
		return
	}

	var slow []*client

	h.clientsMu.RLock()
	for _, c := range h.clients {
		if c.port != 0 && c.port != event.Port {
			continue
		}
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.clientsMu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("Disconnecting slow WebSocket client", zap.String("client_id", c.id))
		h.unregister(c)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *Hub) Close() {
	h.clientsMu.Lock()
	clients := h.clients
	h.clients = make(map[string]*client)
	h.clientsMu.Unlock()

	for _, c := range clients {
		c.close()
	}
}
