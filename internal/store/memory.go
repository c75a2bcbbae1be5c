package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/specterchat/specter/internal/domain"
	"github.com/specterchat/specter/internal/feed"
)

// MemoryStore implements Store with in-process maps. It backs tests and
// the single-process demo mode, standing in for the external store, and
// publishes change events to an injected bus like the real one.
//
// MemoryStore is safe for concurrent use by multiple goroutines.
type MemoryStore struct {
	mu       sync.Mutex
	channels map[string]domain.Channel
	messages map[string]domain.Message
	sessions map[string]domain.Session
	pub      feed.Publisher
	now      func() time.Time
	lastTS   time.Time
}

// NewMemoryStore creates an empty in-memory store publishing to pub.
// pub may be nil.
func NewMemoryStore(pub feed.Publisher) *MemoryStore {
	return &MemoryStore{
		channels: make(map[string]domain.Channel),
		messages: make(map[string]domain.Message),
		sessions: make(map[string]domain.Session),
		pub:      pub,
		now:      time.Now,
	}
}

// SetClock overrides the timestamp source. Tests only.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// tick returns a strictly increasing timestamp so creation-time order is
// total even when writes land within one clock tick.
func (s *MemoryStore) tick() time.Time {
	t := s.now()
	if !t.After(s.lastTS) {
		t = s.lastTS.Add(time.Microsecond)
	}
	s.lastTS = t
	return t
}

// Channels returns all channels ordered by name ascending.
func (s *MemoryStore) Channels(_ context.Context) ([]domain.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	channels := lo.Values(s.channels)
	sort.Slice(channels, func(i, j int) bool { return channels[i].Name < channels[j].Name })
	return channels, nil
}

// Messages returns the most recent limit messages ordered ascending.
func (s *MemoryStore) Messages(_ context.Context, channelID string, limit int) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit < 1 {
		limit = 50
	}

	msgs := lo.Filter(lo.Values(s.messages), func(m domain.Message, _ int) bool {
		return m.ChannelID == channelID
	})
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// Roster returns the online sessions of a channel ordered by codename.
func (s *MemoryStore) Roster(_ context.Context, channelID string) ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions := lo.Filter(lo.Values(s.sessions), func(sess domain.Session, _ int) bool {
		return sess.ChannelID == channelID && sess.Online
	})
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Codename < sessions[j].Codename })
	return sessions, nil
}

// InsertMessage persists a message and publishes the insert event.
func (s *MemoryStore) InsertMessage(ctx context.Context, draft domain.MessageDraft) (*domain.Message, error) {
	s.mu.Lock()
	msg := domain.Message{
		ID:        uuid.New().String(),
		ChannelID: draft.ChannelID,
		Author:    draft.Author,
		Content:   draft.Content,
		CreatedAt: s.tick(),
	}
	s.messages[msg.ID] = msg
	s.mu.Unlock()

	s.publish(ctx, feed.TableMessages, feed.ActionInsert, msg.ChannelID, msg)
	return &msg, nil
}

// InsertSession persists an online session and publishes the insert event.
func (s *MemoryStore) InsertSession(ctx context.Context, draft domain.SessionDraft) (*domain.Session, error) {
	s.mu.Lock()
	now := s.tick()
	sess := domain.Session{
		ID:         uuid.New().String(),
		ChannelID:  draft.ChannelID,
		Codename:   draft.Codename,
		Online:     true,
		LastSeenAt: now,
		CreatedAt:  now,
	}
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.publish(ctx, feed.TableSessions, feed.ActionInsert, sess.ChannelID, sess)
	return &sess, nil
}

// SetSessionOnline flips the online flag and publishes the update event.
func (s *MemoryStore) SetSessionOnline(ctx context.Context, sessionID string, online bool) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	sess.Online = online
	sess.LastSeenAt = s.tick()
	s.sessions[sessionID] = sess
	s.mu.Unlock()

	s.publish(ctx, feed.TableSessions, feed.ActionUpdate, sess.ChannelID, sess)
	return nil
}

// InsertChannel creates a channel row.
func (s *MemoryStore) InsertChannel(ctx context.Context, name string, visibility domain.Visibility) (*domain.Channel, error) {
	s.mu.Lock()
	for _, c := range s.channels {
		if c.Name == name {
			s.mu.Unlock()
			return nil, fmt.Errorf("channel %q already exists", name)
		}
	}
	now := s.tick()
	ch := domain.Channel{
		ID:         uuid.New().String(),
		Name:       name,
		Visibility: visibility,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.channels[ch.ID] = ch
	s.mu.Unlock()

	s.publish(ctx, feed.TableChannels, feed.ActionInsert, ch.ID, ch)
	return &ch, nil
}

// DeleteMessagesBefore removes messages older than the cutoff.
func (s *MemoryStore) DeleteMessagesBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, m := range s.messages {
		if m.CreatedAt.Before(cutoff) {
			delete(s.messages, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) publish(ctx context.Context, table string, action feed.Action, channelID string, payload interface{}) {
	if s.pub == nil {
		return
	}
	if event, err := feed.NewEvent(table, action, channelID, payload); err == nil {
		_ = s.pub.Publish(ctx, event)
	}
}
