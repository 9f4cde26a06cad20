package notification

import (
	"net/http"
	"time"

	"chargeslot/internal/events"
	"chargeslot/internal/pkg/jwt"
	"chargeslot/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
)

// Message is the envelope pushed to websocket clients.
type Message struct {
	Type  string                   `json:"type"`
	Event *events.ReservationEvent `json:"event,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type WSHandler struct {
	hub        *Hub
	jwtService *jwt.Service
	log        *logrus.Entry
}

func NewWSHandler(hub *Hub, jwtService *jwt.Service, log *logrus.Logger) *WSHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &WSHandler{hub: hub, jwtService: jwtService, log: log.WithField("component", "ws")}
}

func (h *WSHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ws", h.HandleWebSocket)
}

// HandleWebSocket authenticates with ?token= because browsers cannot set
// headers on the upgrade request.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "token query parameter is required")
		return
	}
	claims, err := h.jwtService.ValidateToken(token)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token")
		return
	}
	userID := claims.UserID

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	h.hub.Register(userID, conn)
	entry := h.log.WithField("user_id", userID)
	entry.Info("websocket connected")

	done := make(chan struct{})
	defer func() {
		close(done)
		h.hub.Unregister(userID, conn)
		entry.Info("websocket disconnected")
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go h.pingLoop(userID, done)
	h.hub.SendToUser(userID, Message{Type: "connected"})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				entry.WithError(err).Debug("websocket read failed")
			}
			return
		}
	}
}

func (h *WSHandler) pingLoop(userID int64, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c := h.hub.get(userID)
			if c == nil || c.ping() != nil {
				return
			}
		}
	}
}
