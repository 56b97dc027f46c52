// Package ws pushes booking and lifecycle updates to connected users. The
// hub is strictly best-effort: a user without an open socket simply misses
// the push and sees the change on their next fetch.
package ws

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ridepool/internal/jwt"
	"ridepool/internal/ports"
)

// Hub stores all active WebSocket connections keyed by user ID.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*websocket.Conn
	log     *zap.Logger
}

var _ ports.Notifier = (*Hub)(nil)

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*websocket.Conn),
		log:     log,
	}
}

// Add registers a new connection under a user ID, displacing any previous
// connection for the same user.
func (h *Hub) Add(id string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.clients[id]; ok {
		_ = old.Close()
	}
	h.clients[id] = conn
	h.log.Info("ws_registered", zap.String("user_id", id))
}

// Remove deletes and closes a connection.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conn, ok := h.clients[id]; ok {
		_ = conn.Close()
		delete(h.clients, id)
		h.log.Info("ws_removed", zap.String("user_id", id))
	}
}

// Notify transmits a JSON message to a connected user. Absent connections
// and write failures are swallowed; real-time pushes are never load-bearing.
func (h *Hub) Notify(id string, msg any) {
	h.mu.RLock()
	conn, ok := h.clients[id]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if err := conn.WriteJSON(msg); err != nil {
		h.log.Warn("ws_send_failed", zap.String("user_id", id), zap.Error(err))
		h.Remove(id)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades an authenticated request and keeps the connection
// registered until the peer goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := jwt.CallerID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws_upgrade_failed", zap.Error(err))
		return
	}

	h.Add(userID, conn)

	// drain control frames; any read error means the peer is gone
	go func() {
		defer h.Remove(userID)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
