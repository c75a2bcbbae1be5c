// Package gateway bridges the feed bus to websocket clients that cannot
// reach the bus directly. Each socket carries one filtered subscription;
// the hub fans change events out to the sockets whose filter matches.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/specterchat/specter/internal/config"
	"github.com/specterchat/specter/internal/feed"
	"github.com/specterchat/specter/pkg/log"
)

type subKey struct {
	table     string
	channelID string // "" subscribes to every channel of the table
}

func (k subKey) String() string {
	return fmt.Sprintf("%s:%s", k.table, k.channelID)
}

// Hub tracks connected clients and routes events to matching sockets.
type Hub struct {
	clients    map[string]*Client
	subs       map[subKey]map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *feed.Event
	mu         sync.RWMutex
	config     config.WebSocketConfig
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		subs:       make(map[subKey]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *feed.Event, 256),
		config:     cfg,
	}
}

// Run processes registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str("client_id", client.ID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				for key, subClients := range h.subs {
					delete(subClients, client.ID)
					if len(subClients) == 0 {
						delete(h.subs, key)
					}
				}
				delete(h.clients, client.ID)
				close(client.Send)
			}
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str("client_id", client.ID).Msg("client unregistered")

		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

func (h *Hub) deliver(event *feed.Event) {
	data, err := json.Marshal(feed.EventFrame{Type: feed.FrameEvent, Event: event})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	exact := subKey{table: event.Table, channelID: event.ChannelID}
	wildcard := subKey{table: event.Table}
	for _, key := range []subKey{exact, wildcard} {
		for _, client := range h.subs[key] {
			if !client.mask.Matches(event.Action) {
				continue
			}
			select {
			case client.Send <- data:
			default:
				go func(c *Client) { h.unregister <- c }(client)
			}
		}
	}
}

// Register adds a connected client.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe applies the client's one filter.
func (h *Hub) Subscribe(client *Client, table, channelID string, mask feed.Mask) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := subKey{table: table, channelID: channelID}
	if _, ok := h.subs[key]; !ok {
		h.subs[key] = make(map[string]*Client)
	}
	h.subs[key][client.ID] = client
	client.mask = mask

	l := log.L()
	l.Info().Str("client_id", client.ID).Str("subscription", key.String()).Msg("client subscribed")
}

// Broadcast queues an event for delivery.
func (h *Hub) Broadcast(event *feed.Event) {
	h.broadcast <- event
}

// SubscriberCount returns how many clients hold the given filter.
func (h *Hub) SubscriberCount(table, channelID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[subKey{table: table, channelID: channelID}])
}
