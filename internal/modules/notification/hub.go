package notification

import (
	"context"
	"sync"
	"time"

	"chargeslot/internal/events"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *client) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Hub keeps one live websocket per user and pushes reservation events to the
// requester and the station owner.
type Hub struct {
	clients map[int64]*client
	mutex   sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{clients: make(map[int64]*client)}
}

var _ events.Publisher = (*Hub)(nil)

// Register replaces any previous connection of the user.
func (h *Hub) Register(userID int64, conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if old, exists := h.clients[userID]; exists && old.conn != conn {
		_ = old.conn.Close()
	}
	h.clients[userID] = &client{conn: conn}
}

// Unregister removes the user's connection if it is still conn.
func (h *Hub) Unregister(userID int64, conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if c, exists := h.clients[userID]; exists && c.conn == conn {
		_ = c.conn.Close()
		delete(h.clients, userID)
	}
}

func (h *Hub) get(userID int64) *client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.clients[userID]
}

func (h *Hub) SendToUser(userID int64, message any) bool {
	c := h.get(userID)
	if c == nil {
		return false
	}
	if err := c.writeJSON(message); err != nil {
		h.Unregister(userID, c.conn)
		return false
	}
	return true
}

// Publish delivers the event to whoever of requester and owner is online.
// Offline users simply miss it.
func (h *Hub) Publish(_ context.Context, ev events.ReservationEvent) error {
	msg := Message{Type: "reservation_event", Event: &ev}
	h.SendToUser(ev.UserID, msg)
	if ev.OwnerID != 0 && ev.OwnerID != ev.UserID {
		h.SendToUser(ev.OwnerID, msg)
	}
	return nil
}

func (h *Hub) IsOnline(userID int64) bool {
	return h.get(userID) != nil
}

func (h *Hub) OnlineCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for userID, c := range h.clients {
		_ = c.conn.Close()
		delete(h.clients, userID)
	}
}
