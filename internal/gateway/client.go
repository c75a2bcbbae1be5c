package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/specterchat/specter/internal/feed"
	"github.com/specterchat/specter/pkg/log"
)

// Client is one websocket connection with a single active subscription.
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte

	hub  *Hub
	pub  feed.Publisher
	mask feed.Mask
}

// NewClient wraps an upgraded connection.
func NewClient(hub *Hub, conn *websocket.Conn, pub feed.Publisher) *Client {
	return &Client{
		ID:   uuid.New().String(),
		Conn: conn,
		Send: make(chan []byte, 256),
		hub:  hub,
		pub:  pub,
	}
}

// ReadPump consumes frames from the peer. A subscribe frame applies the
// socket's one filter; publish frames are forwarded onto the backing bus.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(int64(c.hub.config.MaxMessageSize))
	c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.PongWait))
		return nil
	})

	subscribed := false
	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := log.L()
				l.Warn().Err(err).Str("client_id", c.ID).Msg("unexpected close")
			}
			return
		}

		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &head); err != nil {
			l := log.L()
			l.Warn().Str("client_id", c.ID).Msg("invalid frame, closing")
			return
		}

		switch head.Type {
		case feed.FrameSubscribe:
			if subscribed {
				// One subscription per socket. Clients open a new socket to change filters.
				continue
			}
			var frame feed.SubscribeFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				return
			}
			mask := frame.Mask
			if mask == 0 {
				mask = feed.MaskAll
			}
			c.hub.Subscribe(c, frame.Table, frame.ChannelID, mask)
			subscribed = true

		case feed.FramePublish:
			var frame feed.PublishFrame
			if err := json.Unmarshal(data, &frame); err != nil || frame.Event == nil {
				continue
			}
			if err := c.pub.Publish(context.Background(), frame.Event); err != nil {
				l := log.L()
				l.Error().Err(err).Str("client_id", c.ID).Msg("failed to forward published event")
			}

		default:
			l := log.L()
			l.Warn().Str("client_id", c.ID).Str("frame_type", head.Type).Msg("unknown frame, closing")
			return
		}
	}
}

// WritePump pushes queued events and pings to the peer.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
