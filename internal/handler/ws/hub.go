package ws

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"paircall-backend/internal/domain"
	"paircall-backend/pkg/logger"
	"paircall-backend/pkg/metrics"
)

// Hub tracks which users hold a live WebSocket connection on this
// instance. It is pure in-memory state, rebuilt from nothing as clients
// reconnect, and it is the relay's local delivery target.
type Hub struct {
	clients    map[int64]*Client
	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	dispatcher MessageHandler
}

// MessageHandler receives connection lifecycle events and inbound
// client frames
type MessageHandler interface {
	HandleConnect(client *Client)
	HandleMessage(client *Client, data []byte)
	HandleDisconnect(client *Client)
}

// NewHub creates a hub; Run must be started for it to make progress
func NewHub(dispatcher MessageHandler) *Hub {
	return &Hub{
		clients:    make(map[int64]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		dispatcher: dispatcher,
	}
}

// SetDispatcher wires the frame dispatcher after construction. The hub
// is created before the services because it is also the relay's local
// registry; call this before Run.
func (h *Hub) SetDispatcher(dispatcher MessageHandler) {
	h.dispatcher = dispatcher
}

// Run processes register/unregister events until the process exits
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			// A second connection for the same user replaces the first
			if old, ok := h.clients[client.userID]; ok {
				close(old.send)
				metrics.WebSocketClientDroppedTotal.WithLabelValues("replaced").Inc()
			}
			h.clients[client.userID] = client
			metrics.WebSocketConnections.Set(float64(len(h.clients)))
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.userID]; ok && current == client {
				delete(h.clients, client.userID)
				close(client.send)
			}
			metrics.WebSocketConnections.Set(float64(len(h.clients)))
			h.mu.Unlock()
		}
	}
}

// IsLocallyConnected reports whether the user has a live connection here
func (h *Hub) IsLocallyConnected(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// DeliverLocal hands an envelope to the target's local connection and
// reports whether one was there to take it. A client whose send buffer
// is full is dropped rather than allowed to stall the hub.
func (h *Hub) DeliverLocal(env *domain.Envelope) bool {
	data, err := json.Marshal(env)
	if err != nil {
		logger.Error("failed to marshal envelope for local delivery",
			zap.String("message_id", env.MessageID), zap.Error(err))
		return false
	}

	// The send attempt must stay under the read lock: Run closes a
	// client's send channel only while holding the write lock, so the
	// channel cannot close out from under the send here.
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[env.TargetUserID]
	if !ok {
		return false
	}

	select {
	case client.send <- data:
		metrics.WebSocketMessagesTotal.WithLabelValues("outbound").Inc()
		return true
	default:
		metrics.WebSocketClientDroppedTotal.WithLabelValues("slow").Inc()
		logger.Warn("dropping slow websocket client",
			zap.Int64("user_id", env.TargetUserID))
		go func() { h.unregister <- client }()
		return false
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return false
		}
		for allowed := range allowedOrigins() {
			if origin == allowed {
				return true
			}
		}
		return false
	},
}

// allowedOrigins reads the origin allowlist from WS_ALLOWED_ORIGINS
// (comma-separated)
func allowedOrigins() map[string]bool {
	origins := make(map[string]bool)
	raw := os.Getenv("WS_ALLOWED_ORIGINS")
	if raw == "" {
		raw = "http://localhost:3000"
	}
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins[origin] = true
		}
	}
	return origins
}

// ServeWS upgrades an authenticated request to a WebSocket connection
func (h *Hub) ServeWS(c *gin.Context) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	userID, ok := userIDVal.(int64)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid user_id"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed",
			zap.Int64("user_id", userID), zap.Error(err))
		return
	}

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, 256),
		userID:    userID,
		sessionID: uuid.New().String(),
	}

	h.register <- client
	h.dispatcher.HandleConnect(client)

	go client.writePump()
	go client.readPump()
}
