package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/specterchat/specter/internal/domain"
	"github.com/specterchat/specter/internal/feed"
)

func TestInsertMessageAssignsIdentity(t *testing.T) {
	req := require.New(t)
	st := NewMemoryStore(nil)

	msg, err := st.InsertMessage(context.Background(), domain.MessageDraft{
		ChannelID: "ch1", Author: "Condor", Content: "hello",
	})
	req.NoError(err)
	req.NotEmpty(msg.ID)
	req.False(msg.CreatedAt.IsZero())
}

func TestTimestampsStrictlyIncrease(t *testing.T) {
	req := require.New(t)
	st := NewMemoryStore(nil)

	// A frozen clock still yields a total creation-time order.
	frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st.SetClock(func() time.Time { return frozen })

	var prev time.Time
	for i := 0; i < 5; i++ {
		msg, err := st.InsertMessage(context.Background(), domain.MessageDraft{ChannelID: "ch1", Content: "x"})
		req.NoError(err)
		req.True(msg.CreatedAt.After(prev))
		prev = msg.CreatedAt
	}
}

func TestMessagesWindow(t *testing.T) {
	req := require.New(t)
	st := NewMemoryStore(nil)

	for _, c := range []string{"a", "b", "c", "d"} {
		_, err := st.InsertMessage(context.Background(), domain.MessageDraft{ChannelID: "ch1", Content: c})
		req.NoError(err)
	}
	_, err := st.InsertMessage(context.Background(), domain.MessageDraft{ChannelID: "ch2", Content: "other"})
	req.NoError(err)

	msgs, err := st.Messages(context.Background(), "ch1", 2)
	req.NoError(err)
	req.Len(msgs, 2)
	req.Equal("c", msgs[0].Content)
	req.Equal("d", msgs[1].Content)
}

func TestChannelsSortedUniqueNames(t *testing.T) {
	req := require.New(t)
	st := NewMemoryStore(nil)

	for _, name := range []string{"ops", "intel"} {
		_, err := st.InsertChannel(context.Background(), name, domain.ChannelPublic)
		req.NoError(err)
	}

	_, err := st.InsertChannel(context.Background(), "ops", domain.ChannelPublic)
	req.Error(err)

	channels, err := st.Channels(context.Background())
	req.NoError(err)
	req.Len(channels, 2)
	req.Equal("intel", channels[0].Name)
	req.Equal("ops", channels[1].Name)
}

func TestSetSessionOnline(t *testing.T) {
	req := require.New(t)
	st := NewMemoryStore(nil)

	sess, err := st.InsertSession(context.Background(), domain.SessionDraft{ChannelID: "ch1", Codename: "Condor"})
	req.NoError(err)

	req.NoError(st.SetSessionOnline(context.Background(), sess.ID, false))
	roster, err := st.Roster(context.Background(), "ch1")
	req.NoError(err)
	req.Empty(roster)

	req.ErrorIs(st.SetSessionOnline(context.Background(), "missing", false), ErrSessionNotFound)
}

func TestDeleteMessagesBefore(t *testing.T) {
	req := require.New(t)
	st := NewMemoryStore(nil)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := base
	st.SetClock(func() time.Time { return current })

	_, err := st.InsertMessage(context.Background(), domain.MessageDraft{ChannelID: "ch1", Content: "old"})
	req.NoError(err)

	current = base.Add(48 * time.Hour)
	_, err = st.InsertMessage(context.Background(), domain.MessageDraft{ChannelID: "ch1", Content: "fresh"})
	req.NoError(err)

	deleted, err := st.DeleteMessagesBefore(context.Background(), base.Add(24*time.Hour))
	req.NoError(err)
	req.EqualValues(1, deleted)

	msgs, err := st.Messages(context.Background(), "ch1", 10)
	req.NoError(err)
	req.Len(msgs, 1)
	req.Equal("fresh", msgs[0].Content)
}

func TestWritesPublishEvents(t *testing.T) {
	req := require.New(t)
	broker := feed.NewBroker()
	t.Cleanup(func() { broker.Close() })
	st := NewMemoryStore(broker)

	sub, err := broker.Subscribe(context.Background(), feed.TableMessages, feed.MaskInserts, "ch1")
	req.NoError(err)

	msg, err := st.InsertMessage(context.Background(), domain.MessageDraft{ChannelID: "ch1", Author: "Condor", Content: "hi"})
	req.NoError(err)

	select {
	case ev := <-sub.Events():
		req.Equal(feed.TableMessages, ev.Table)
		req.Equal(feed.ActionInsert, ev.Action)
		req.Equal("ch1", ev.ChannelID)

		var got domain.Message
		req.NoError(ev.UnmarshalPayload(&got))
		req.Equal(msg.ID, got.ID)
		req.Equal("hi", got.Content)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}
