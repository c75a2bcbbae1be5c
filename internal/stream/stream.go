// Package stream keeps one channel's message sequence in sync with the
// store: a bounded backlog fetch followed by live insert events from the
// change feed, merged in creation-time order without duplicates.
package stream

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/specterchat/specter/internal/domain"
	"github.com/specterchat/specter/internal/feed"
	"github.com/specterchat/specter/internal/store"
	"github.com/specterchat/specter/pkg/log"
)

// Phase is the per-channel lifecycle state.
type Phase int

const (
	Unloaded Phase = iota
	Loading
	Live
)

// DefaultBacklogLimit is the backlog window size.
const DefaultBacklogLimit = 50

const (
	resubscribeAttempts = 5
	resubscribeBackoff  = 500 * time.Millisecond
)

// Stream synchronizes the message sequence of the selected channel.
// Opening a new channel tears the previous subscription down first, and
// every in-flight load is tagged with the generation it was issued for,
// so a stale completion can never overwrite the current channel's state.
//
// Stream is safe for concurrent use by multiple goroutines.
type Stream struct {
	store store.Store
	feed  feed.Feed
	limit int

	// OnChange, if set, is invoked after every visible sequence change.
	OnChange func()
	// OnError, if set, receives asynchronous subscription failures.
	OnError func(error)

	mu        sync.Mutex
	gen       uint64
	channelID string
	phase     Phase
	stale     bool
	messages  []domain.Message
	sub       feed.Subscription
	openCtx   context.Context
}

// New creates a Stream over the given store and feed.
func New(st store.Store, fd feed.Feed) *Stream {
	return &Stream{store: st, feed: fd, limit: DefaultBacklogLimit}
}

// SetBacklogLimit overrides the backlog window size.
func (s *Stream) SetBacklogLimit(limit int) {
	if limit > 0 {
		s.limit = limit
	}
}

// Open switches the stream to the given channel: cancel the previous
// subscription, subscribe to the new channel's inserts, then load the
// backlog and go live. Opening the already-live channel is a no-op.
//
// The subscription opens before the backlog fetch, so an insert landing
// during the fetch waits in the subscription buffer and is merged (and
// deduplicated) afterwards; nothing is dropped in the gap.
func (s *Stream) Open(ctx context.Context, channelID string) error {
	s.mu.Lock()
	if channelID == s.channelID && s.phase == Live && !s.stale {
		s.mu.Unlock()
		return nil
	}

	s.gen++
	gen := s.gen
	old := s.sub
	s.sub = nil
	switched := channelID != s.channelID
	s.channelID = channelID
	s.phase = Loading
	s.stale = false
	if switched {
		// Messages of another channel must never remain visible.
		s.messages = nil
	}
	s.openCtx = ctx
	s.mu.Unlock()

	if old != nil {
		old.Cancel()
	}

	if err := s.goLive(ctx, gen, channelID); err != nil {
		return err
	}

	s.notify()
	return nil
}

func (s *Stream) goLive(ctx context.Context, gen uint64, channelID string) error {
	sub, err := s.feed.Subscribe(ctx, feed.TableMessages, feed.MaskInserts, channelID)
	if err != nil {
		s.markStale(gen)
		return &domain.SubscriptionError{Table: feed.TableMessages, Err: err}
	}

	backlog, err := s.store.Messages(ctx, channelID, s.limit)
	if err != nil {
		sub.Cancel()
		s.markStale(gen)
		return &domain.LoadError{Op: "message backlog", Err: err}
	}

	s.mu.Lock()
	if s.gen != gen {
		// Selection moved on while we were loading; discard.
		s.mu.Unlock()
		sub.Cancel()
		return nil
	}
	s.messages = backlog
	s.sub = sub
	s.phase = Live
	s.stale = false
	s.mu.Unlock()

	go s.consume(sub, gen)
	return nil
}

// Send validates and persists a new message. The local sequence is NOT
// appended here: the insert event echoed by the feed is the only way a
// message becomes visible, keeping server-assigned creation time the
// single ordering authority.
func (s *Stream) Send(ctx context.Context, author, content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return &domain.ValidationError{Field: "message", Reason: "must not be empty"}
	}

	s.mu.Lock()
	channelID := s.channelID
	s.mu.Unlock()
	if channelID == "" {
		return domain.ErrNoChannel
	}

	if _, err := s.store.InsertMessage(ctx, domain.MessageDraft{
		ChannelID: channelID,
		Author:    author,
		Content:   trimmed,
	}); err != nil {
		return &domain.PersistenceError{Op: "send", Err: err}
	}
	return nil
}

// Messages returns a copy of the visible message sequence.
func (s *Stream) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Phase returns the lifecycle state.
func (s *Stream) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Stale reports whether the sequence may be missing events because the
// subscription is down.
func (s *Stream) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

// ChannelID returns the channel the stream is tracking.
func (s *Stream) ChannelID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channelID
}

// Close cancels the subscription and resets the stream.
func (s *Stream) Close() {
	s.mu.Lock()
	s.gen++
	sub := s.sub
	s.sub = nil
	s.channelID = ""
	s.phase = Unloaded
	s.messages = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
}

// consume applies live insert events until the subscription ends. If it
// ends while still current, the stream is stale and a resubscribe with a
// fresh backlog fetch is attempted.
func (s *Stream) consume(sub feed.Subscription, gen uint64) {
	for ev := range sub.Events() {
		if ev.Action != feed.ActionInsert {
			continue
		}

		var msg domain.Message
		if err := ev.UnmarshalPayload(&msg); err != nil {
			continue
		}

		s.mu.Lock()
		if s.gen != gen {
			// Selection moved on; this subscription is being torn down.
			s.mu.Unlock()
			return
		}
		if msg.ChannelID != s.channelID {
			// Cross-channel event must never alter this channel's state.
			s.mu.Unlock()
			continue
		}
		merged, changed := mergeMessage(s.messages, msg)
		s.messages = merged
		s.mu.Unlock()

		if changed {
			s.notify()
		}
	}

	s.mu.Lock()
	dropped := s.gen == gen && s.phase == Live
	if dropped {
		s.stale = true
	}
	ctx := s.openCtx
	channelID := s.channelID
	s.mu.Unlock()

	if !dropped {
		return
	}

	s.reportError(&domain.SubscriptionError{Table: feed.TableMessages, Err: context.Canceled})
	s.notify()
	s.resubscribe(ctx, gen, channelID)
}

func (s *Stream) resubscribe(ctx context.Context, gen uint64, channelID string) {
	l := log.Ctx(ctx)
	backoff := resubscribeBackoff

	for attempt := 1; attempt <= resubscribeAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		// The backlog refetch closes the gap of events missed while down.
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		s.gen++
		next := s.gen
		s.mu.Unlock()

		if err := s.goLive(ctx, next, channelID); err != nil {
			l.Warn().Err(err).Int("attempt", attempt).Str(log.FieldChannelID, channelID).Msg("resubscribe failed")
			gen = next
			backoff *= 2
			continue
		}

		l.Info().Str(log.FieldChannelID, channelID).Msg("resubscribed")
		s.notify()
		return
	}

	s.reportError(&domain.SubscriptionError{Table: feed.TableMessages, Err: context.DeadlineExceeded})
}

func (s *Stream) markStale(gen uint64) {
	s.mu.Lock()
	if s.gen == gen {
		s.stale = true
	}
	s.mu.Unlock()
}

func (s *Stream) notify() {
	if s.OnChange != nil {
		s.OnChange()
	}
}

func (s *Stream) reportError(err error) {
	if s.OnError != nil {
		s.OnError(err)
	}
}

// mergeMessage inserts msg into msgs keeping creation-time order.
// A message id already present is never inserted twice: the sender's own
// message arrives via the feed echo and may race another delivery path.
func mergeMessage(msgs []domain.Message, msg domain.Message) ([]domain.Message, bool) {
	if lo.ContainsBy(msgs, func(m domain.Message) bool { return m.ID == msg.ID }) {
		return msgs, false
	}

	i := len(msgs)
	for i > 0 && msgs[i-1].CreatedAt.After(msg.CreatedAt) {
		i--
	}
	msgs = append(msgs, domain.Message{})
	copy(msgs[i+1:], msgs[i:])
	msgs[i] = msg
	return msgs, true
}
