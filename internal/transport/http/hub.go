package httptransport

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"nexops/internal/anomaly/models"
	"nexops/internal/kpi"
	"nexops/internal/roles"
	"nexops/internal/syncstate"
	"nexops/pkg/requestcontext"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
	sendBuffer   = 16
)

// Message types pushed on the sync websocket.
const (
	MessageSync    = "sync_state"
	MessageView    = "anomalies"
	MessageKPIs    = "kpis"
	MessageWelcome = "connected"
)

// Message is one websocket frame.
type Message struct {
	Type    string `json:"type"`
	Role    string `json:"role,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// Notifier is the session's change-notification surface.
type Notifier interface {
	OnSyncChange(fn func(syncstate.State)) (cancel func())
	OnViewChange(fn func(role string, view []models.Anomaly))
	OnKPIChange(fn func(kpi.Metrics))
}

type client struct {
	conn     *websocket.Conn
	role     roles.Role
	wantKPIs bool
	send     chan Message
}

// Hub fans session changes out to connected websocket clients. Each client
// gets sync changes, its own role's anomaly view, and KPIs when its role
// shows the KPI dashboard. A client that cannot keep up is disconnected.
type Hub struct {
	service  Service
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	cancel  func()
}

func NewHub(service Service, notifier Notifier, logger *slog.Logger) *Hub {
	h := &Hub{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
	h.cancel = notifier.OnSyncChange(func(st syncstate.State) {
		h.broadcast(Message{Type: MessageSync, Payload: st}, func(*client) bool { return true })
	})
	notifier.OnViewChange(func(role string, view []models.Anomaly) {
		msg := Message{Type: MessageView, Role: role, Payload: fromAnomalies(view)}
		h.broadcast(msg, func(c *client) bool { return c.role.String() == role })
	})
	notifier.OnKPIChange(func(m kpi.Metrics) {
		h.broadcast(Message{Type: MessageKPIs, Payload: m}, func(c *client) bool { return c.wantKPIs })
	})
	return h
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and stops listening to the session.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for c := range h.clients {
		h.dropLocked(c)
	}
	h.mu.Unlock()
	h.cancel()
}

// HandleWebSocket handles GET /sync/ws.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(ctx, "websocket upgrade failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return
	}

	cfg, _ := roles.For(actor.Role)
	c := &client{
		conn:     conn,
		role:     actor.Role,
		wantKPIs: cfg.ModuleVisible(roles.ModuleKPIDashboard),
		send:     make(chan Message, sendBuffer),
	}
	if !h.register(c) {
		_ = conn.Close()
		return
	}
	h.logger.InfoContext(ctx, "sync websocket connected",
		"role", actor.Role,
		"request_id", requestcontext.RequestID(ctx),
	)

	h.welcome(r, c)
	go h.writePump(c)
	h.readPump(c)
}

// welcome queues the current state so the client does not wait for a change.
func (h *Hub) welcome(r *http.Request, c *client) {
	role := c.role.String()
	h.enqueue(c, Message{Type: MessageWelcome, Role: role})
	h.enqueue(c, Message{Type: MessageSync, Payload: h.service.SyncState()})
	if view, err := h.service.ActiveAnomalies(r.Context(), c.role); err == nil {
		h.enqueue(c, Message{Type: MessageView, Role: role, Payload: fromAnomalies(view)})
	}
	if c.wantKPIs {
		if m, err := h.service.KPIs(r.Context()); err == nil {
			h.enqueue(c, Message{Type: MessageKPIs, Payload: m})
		}
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		h.dropLocked(c)
	}
}

func (h *Hub) dropLocked(c *client) {
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) enqueue(c *client, msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sendLocked(c, msg)
}

func (h *Hub) broadcast(msg Message, match func(*client) bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if match(c) {
			h.sendLocked(c, msg)
		}
	}
}

func (h *Hub) sendLocked(c *client, msg Message) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
		h.logger.Warn("sync websocket client too slow, disconnecting", "role", c.role)
		h.dropLocked(c)
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				h.logger.Debug("sync websocket write failed", "role", c.role, "error", err)
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

// readPump only services control frames; clients send nothing the hub acts on.
func (h *Hub) readPump(c *client) {
	defer h.unregister(c)
	c.conn.SetReadLimit(512)
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
