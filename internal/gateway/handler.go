package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/specterchat/specter/internal/feed"
	"github.com/specterchat/specter/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler serves the websocket endpoint.
type Handler struct {
	hub *Hub
	pub feed.Publisher
}

// NewHandler creates a gateway handler. Published frames from clients are
// forwarded to pub.
func NewHandler(hub *Hub, pub feed.Publisher) *Handler {
	return &Handler{hub: hub, pub: pub}
}

// RegisterRoutes mounts the gateway endpoints.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.handleWS)
	r.GET("/health", h.handleHealth)
}

func (h *Handler) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l := log.L()
		l.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(h.hub, conn, h.pub)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
