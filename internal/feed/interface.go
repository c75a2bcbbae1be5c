// Package feed is the change-feed boundary of the sync engine: push-based
// notification of row-level mutations on a record table, filtered by
// channel id. Implementations are injected into the engine; an in-memory
// bus backs tests and the single-process demo mode.
package feed

import (
	"context"
	"encoding/json"
	"time"
)

// Record tables carried by the feed.
const (
	TableChannels = "channels"
	TableMessages = "messages"
	TableSessions = "sessions"
)

// Action is the mutation kind of a change event.
type Action string

const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Mask selects which actions a subscription receives.
type Mask uint8

const (
	MaskInserts Mask = 1 << iota
	MaskUpdates
	MaskDeletes

	MaskAll = MaskInserts | MaskUpdates | MaskDeletes
)

// Matches reports whether the mask admits the given action.
func (m Mask) Matches(a Action) bool {
	switch a {
	case ActionInsert:
		return m&MaskInserts != 0
	case ActionUpdate:
		return m&MaskUpdates != 0
	case ActionDelete:
		return m&MaskDeletes != 0
	}
	return false
}

// Event represents one row-level mutation published to the feed.
type Event struct {
	Table     string          `json:"table"`
	Action    Action          `json:"action"`
	ChannelID string          `json:"channel_id"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent creates an event with the current timestamp.
func NewEvent(table string, action Action, channelID string, payload interface{}) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Table:     table,
		Action:    action,
		ChannelID: channelID,
		Payload:   data,
		Timestamp: time.Now(),
	}, nil
}

// UnmarshalPayload unmarshals the event payload into the given struct.
func (e *Event) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// Subscription is a live filtered event stream. Events is closed when the
// subscription ends; after Cancel returns no further events are delivered.
type Subscription interface {
	Events() <-chan *Event
	Cancel()
}

// Feed delivers change events. channelID filters events to one channel;
// the empty string subscribes to all channels of the table (used by the
// gateway bridge).
type Feed interface {
	Subscribe(ctx context.Context, table string, mask Mask, channelID string) (Subscription, error)
	Close() error
}

// Publisher publishes change events. The store is the only event origin.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}

// Bus combines Feed and Publisher.
type Bus interface {
	Feed
	Publisher
}
