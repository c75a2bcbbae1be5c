package gateway

import (
	"context"
	"time"

	"github.com/specterchat/specter/internal/feed"
	"github.com/specterchat/specter/pkg/log"
)

const bridgeRetryDelay = 2 * time.Second

// Bridge subscribes to every table on the backing feed and forwards each
// event into the hub. It reopens a table's subscription when the bus drops
// it, so the gateway survives bus restarts.
type Bridge struct {
	feed feed.Feed
	hub  *Hub
}

// NewBridge creates a bridge between a feed and a hub.
func NewBridge(fd feed.Feed, hub *Hub) *Bridge {
	return &Bridge{feed: fd, hub: hub}
}

// Run pumps all tables until ctx is done.
func (b *Bridge) Run(ctx context.Context) {
	for _, table := range []string{feed.TableChannels, feed.TableMessages, feed.TableSessions} {
		go b.pumpTable(ctx, table)
	}
	<-ctx.Done()
}

func (b *Bridge) pumpTable(ctx context.Context, table string) {
	l := log.L()
	for {
		sub, err := b.feed.Subscribe(ctx, table, feed.MaskAll, "")
		if err != nil {
			l.Error().Err(err).Str(log.FieldTable, table).Msg("bridge subscribe failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(bridgeRetryDelay):
				continue
			}
		}

		l.Info().Str(log.FieldTable, table).Msg("bridge subscription open")
		b.pump(ctx, sub)
		sub.Cancel()

		select {
		case <-ctx.Done():
			return
		case <-time.After(bridgeRetryDelay):
		}
	}
}

func (b *Bridge) pump(ctx context.Context, sub feed.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			b.hub.Broadcast(event)
		}
	}
}
