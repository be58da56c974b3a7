package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dbehnke/wlink-terminal/pkg/logger"
	"github.com/dbehnke/wlink-terminal/pkg/session"
	"github.com/gorilla/websocket"
)

// EventSnapshot is the type of the first message a client receives when
// the hub has a snapshot source
const EventSnapshot = "snapshot"

const (
	clientBuffer = 256
	writeWait    = 10 * time.Second
)

// Event is one message pushed to websocket clients
type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Marshal converts an event to JSON bytes
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Client is one websocket subscriber. A client with no kinds receives
// every event.
type Client struct {
	ID       string
	conn     *websocket.Conn
	messages chan []byte
	kinds    map[string]bool
}

func (c *Client) wants(kind string) bool {
	return len(c.kinds) == 0 || kind == EventSnapshot || c.kinds[kind]
}

// parseKinds reads ?kinds=call_start,call_end into a filter set
func parseKinds(r *http.Request) map[string]bool {
	raw := r.URL.Query().Get("kinds")
	if raw == "" {
		return nil
	}
	kinds := make(map[string]bool)
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			kinds[k] = true
		}
	}
	return kinds
}

type outbound struct {
	kind string
	data []byte
}

// WebSocketHub fans session events out to websocket clients
type WebSocketHub struct {
	clients    map[*Client]bool
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	logger     *logger.Logger
	mu         sync.RWMutex

	source func() session.Snapshot
}

// NewWebSocketHub creates a new WebSocket hub
func NewWebSocketHub(log *logger.Logger) *WebSocketHub {
	if log == nil {
		log = logger.Nop()
	}
	return &WebSocketHub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Event, clientBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     log,
	}
}

// SetSnapshotSource makes the hub greet every new client with the
// terminal's current snapshot
func (h *WebSocketHub) SetSnapshotSource(fn func() session.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.source = fn
}

// Run starts the WebSocket hub event loop
func (h *WebSocketHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			source := h.source
			h.mu.Unlock()
			h.logger.Debug("WebSocket client registered",
				logger.String("client_id", client.ID),
				logger.Int("kinds", len(client.kinds)))
			if source != nil {
				h.greet(client, source())
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.messages)
			}
			h.mu.Unlock()
			h.logger.Debug("WebSocket client unregistered",
				logger.String("client_id", client.ID))

		case event := <-h.broadcast:
			data, err := event.Marshal()
			if err != nil {
				h.logger.Error("Failed to marshal event", logger.Error(err))
				continue
			}
			h.fanOut(outbound{kind: event.Type, data: data})

		case <-ctx.Done():
			h.logger.Info("WebSocket hub shutting down")
			h.mu.Lock()
			for client := range h.clients {
				close(client.messages)
			}
			h.clients = make(map[*Client]bool)
			h.mu.Unlock()
			return
		}
	}
}

func (h *WebSocketHub) greet(client *Client, snap session.Snapshot) {
	ev := Event{Type: EventSnapshot, Timestamp: time.Now(), Data: snap}
	data, err := ev.Marshal()
	if err != nil {
		h.logger.Error("Failed to marshal snapshot", logger.Error(err))
		return
	}
	select {
	case client.messages <- data:
	default:
	}
}

func (h *WebSocketHub) fanOut(msg outbound) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if !client.wants(msg.kind) {
			continue
		}
		select {
		case client.messages <- msg.data:
		default:
			h.logger.Warn("Client message buffer full, skipping",
				logger.String("client_id", client.ID),
				logger.String("event_type", msg.kind))
		}
	}
}

// Broadcast sends an event to all connected clients
func (h *WebSocketHub) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("Broadcast channel full, dropping event",
			logger.String("event_type", event.Type))
	}
}

// Emit forwards a session event to subscribed clients
func (h *WebSocketHub) Emit(ev session.Event) {
	h.Broadcast(Event{
		Type:      string(ev.Kind),
		Timestamp: ev.Time,
		Data:      ev,
	})
}

// Handler returns an HTTP handler for WebSocket connections
func (h *WebSocketHub) Handler() http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		kinds := parseKinds(r)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Debug("WebSocket upgrade failed", logger.Error(err))
			return
		}
		client := &Client{
			ID:       r.RemoteAddr,
			conn:     conn,
			messages: make(chan []byte, clientBuffer),
			kinds:    kinds,
		}
		select {
		case h.register <- client:
		case <-h.done:
			_ = conn.Close()
			return
		}

		go h.readPump(client)
		go h.writePump(client)
	})
}

// readPump discards client input and unregisters on close
func (h *WebSocketHub) readPump(client *Client) {
	defer func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
		_ = client.conn.Close()
	}()
	client.conn.SetReadLimit(1024)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebSocketHub) writePump(client *Client) {
	for msg := range client.messages {
		_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			_ = client.conn.Close()
		}
	}
	_ = client.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
}

// GetClientCount returns the number of connected clients
func (h *WebSocketHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
