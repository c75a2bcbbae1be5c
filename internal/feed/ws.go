package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/specterchat/specter/pkg/log"
)

// Frame types exchanged with the feed gateway.
const (
	FrameSubscribe = "subscribe"
	FrameEvent     = "event"
	FramePublish   = "publish"
)

// SubscribeFrame is the first frame a client sends on a gateway socket.
type SubscribeFrame struct {
	Type      string `json:"type"`
	Table     string `json:"table"`
	ChannelID string `json:"channel_id,omitempty"`
	Mask      Mask   `json:"mask"`
}

// EventFrame wraps a change event pushed by the gateway.
type EventFrame struct {
	Type  string `json:"type"`
	Event *Event `json:"event"`
}

// PublishFrame carries a change event from a client up to the gateway,
// which forwards it onto the backing bus.
type PublishFrame struct {
	Type  string `json:"type"`
	Event *Event `json:"event"`
}

// WSConfig holds feed gateway client configuration.
type WSConfig struct {
	URL          string        `mapstructure:"url"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	PongWait     time.Duration `mapstructure:"pong_wait"`
	WriteWait    time.Duration `mapstructure:"write_wait"`
}

// WSFeed implements Feed against the feed gateway. Each subscription is
// one websocket; the gateway applies the channel and mask filter server
// side, so everything read off the socket is already matched.
type WSFeed struct {
	config WSConfig
	mu     sync.Mutex
	subs   map[*wsSub]struct{}

	pubMu   sync.Mutex
	pubConn *websocket.Conn
}

// NewWSFeed creates a gateway-backed feed client.
func NewWSFeed(cfg WSConfig) *WSFeed {
	if cfg.PingInterval == 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongWait == 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.WriteWait == 0 {
		cfg.WriteWait = 10 * time.Second
	}
	return &WSFeed{config: cfg, subs: make(map[*wsSub]struct{})}
}

// Subscribe dials the gateway and sends the subscribe frame.
func (f *WSFeed) Subscribe(ctx context.Context, table string, mask Mask, channelID string) (Subscription, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial feed gateway: %w", err)
	}

	frame := SubscribeFrame{Type: FrameSubscribe, Table: table, ChannelID: channelID, Mask: mask}
	conn.SetWriteDeadline(time.Now().Add(f.config.WriteWait))
	if err := conn.WriteJSON(frame); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send subscribe frame: %w", err)
	}

	sub := &wsSub{
		feed: f,
		conn: conn,
		ch:   make(chan *Event, subscriptionBuffer),
		done: make(chan struct{}),
	}

	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	go sub.readPump()
	go sub.pingLoop()

	return sub, nil
}

// Publish forwards an event to the gateway over a dedicated socket. The
// connection is dialed on first use and redialed after a write failure.
func (f *WSFeed) Publish(ctx context.Context, event *Event) error {
	f.pubMu.Lock()
	defer f.pubMu.Unlock()

	if f.pubConn == nil {
		dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
		conn, _, err := dialer.DialContext(ctx, f.config.URL, nil)
		if err != nil {
			return fmt.Errorf("failed to dial feed gateway: %w", err)
		}
		f.pubConn = conn
	}

	frame := PublishFrame{Type: FramePublish, Event: event}
	f.pubConn.SetWriteDeadline(time.Now().Add(f.config.WriteWait))
	if err := f.pubConn.WriteJSON(frame); err != nil {
		f.pubConn.Close()
		f.pubConn = nil
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close cancels all subscriptions.
func (f *WSFeed) Close() error {
	f.mu.Lock()
	subs := make([]*wsSub, 0, len(f.subs))
	for s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()

	for _, s := range subs {
		s.Cancel()
	}

	f.pubMu.Lock()
	if f.pubConn != nil {
		f.pubConn.Close()
		f.pubConn = nil
	}
	f.pubMu.Unlock()

	return nil
}

type wsSub struct {
	feed *WSFeed
	conn *websocket.Conn
	ch   chan *Event
	done chan struct{}
	once sync.Once
}

func (s *wsSub) Events() <-chan *Event { return s.ch }

func (s *wsSub) Cancel() {
	s.once.Do(func() {
		s.feed.mu.Lock()
		delete(s.feed.subs, s)
		s.feed.mu.Unlock()
		close(s.done)
		// Closing the conn ends readPump, which closes s.ch.
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(s.feed.config.WriteWait))
		s.conn.Close()
	})
}

func (s *wsSub) readPump() {
	defer close(s.ch)

	s.conn.SetReadDeadline(time.Now().Add(s.feed.config.PongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.feed.config.PongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					l := log.L()
					l.Warn().Err(err).Msg("feed gateway connection lost")
				}
			}
			return
		}

		var frame EventFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Type != FrameEvent || frame.Event == nil {
			continue
		}

		select {
		case s.ch <- frame.Event:
		default:
			// Subscriber not keeping up, drop.
		}
	}
}

func (s *wsSub) pingLoop() {
	ticker := time.NewTicker(s.feed.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.feed.config.WriteWait)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
