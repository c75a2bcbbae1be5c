package feed

import (
	"context"
	"sync"
)

const subscriptionBuffer = 100

// Broker is an in-process Bus: best-effort fan-out of change events to
// matching subscriptions. It backs tests and the single-process demo mode,
// standing in for the external transports.
//
// Broker is safe for concurrent use by multiple goroutines.
type Broker struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*memorySub
	closed bool
}

// NewBroker creates an empty in-memory event bus.
func NewBroker() *Broker {
	return &Broker{subs: make(map[int]*memorySub)}
}

type memorySub struct {
	broker    *Broker
	id        int
	table     string
	mask      Mask
	channelID string
	ch        chan *Event
	once      sync.Once
}

func (s *memorySub) Events() <-chan *Event { return s.ch }

func (s *memorySub) Cancel() {
	s.once.Do(func() {
		s.broker.mu.Lock()
		delete(s.broker.subs, s.id)
		s.broker.mu.Unlock()
		close(s.ch)
	})
}

func (s *memorySub) matches(e *Event) bool {
	if s.table != e.Table || !s.mask.Matches(e.Action) {
		return false
	}
	return s.channelID == "" || s.channelID == e.ChannelID
}

// Subscribe registers a filtered subscription. An empty channelID matches
// every channel of the table.
func (b *Broker) Subscribe(_ context.Context, table string, mask Mask, channelID string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &memorySub{
		broker:    b,
		id:        b.nextID,
		table:     table,
		mask:      mask,
		channelID: channelID,
		ch:        make(chan *Event, subscriptionBuffer),
	}
	b.subs[sub.id] = sub
	return sub, nil
}

// Publish delivers the event to every matching subscription. Delivery is
// non-blocking; a subscriber that cannot keep up loses events.
func (b *Broker) Publish(_ context.Context, event *Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		if !sub.matches(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
	return nil
}

// Close cancels all subscriptions.
func (b *Broker) Close() error {
	b.mu.Lock()
	subs := make([]*memorySub, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.closed = true
	b.mu.Unlock()

	for _, s := range subs {
		s.Cancel()
	}
	return nil
}
