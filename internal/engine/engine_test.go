package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/specterchat/specter/internal/domain"
	"github.com/specterchat/specter/internal/feed"
	"github.com/specterchat/specter/internal/store"
)

func newEngine(t *testing.T, channels ...string) (*Engine, *store.MemoryStore) {
	t.Helper()

	broker := feed.NewBroker()
	st := store.NewMemoryStore(broker)
	for _, name := range channels {
		_, err := st.InsertChannel(context.Background(), name, domain.ChannelPublic)
		require.NoError(t, err)
	}

	e := New(st, broker, zerolog.Nop())
	t.Cleanup(func() {
		e.Close(context.Background())
		broker.Close()
	})
	return e, st
}

func channelID(t *testing.T, e *Engine, name string) string {
	t.Helper()
	for _, ch := range e.State().Channels {
		if ch.Name == name {
			return ch.ID
		}
	}
	t.Fatalf("channel %q not in snapshot", name)
	return ""
}

func TestJoinLoadsDirectoryAndDefaultsSelection(t *testing.T) {
	req := require.New(t)
	e, _ := newEngine(t, "ops", "intel", "lounge")

	req.NoError(e.JoinWithCodename(context.Background(), " Agent_1 "))

	snap := e.State()
	req.True(snap.Joined)
	req.False(snap.JoinPending)
	req.Equal("Agent_1", snap.Codename)
	req.Len(snap.Channels, 3)

	// Name-ascending order puts intel first, and first is the default.
	req.Equal("intel", snap.Channels[0].Name)
	req.Equal(snap.Channels[0].ID, snap.SelectedID)

	// The join itself shows up on the roster.
	req.Eventually(func() bool {
		roster := e.State().Roster
		return len(roster) == 1 && roster[0].Codename == "Agent_1"
	}, time.Second, 10*time.Millisecond)
}

func TestJoinRejectsInvalidCodename(t *testing.T) {
	req := require.New(t)
	e, _ := newEngine(t, "ops")

	var verr *domain.ValidationError
	req.ErrorAs(e.JoinWithCodename(context.Background(), "   "), &verr)
	req.False(e.State().Joined)
}

func TestJoinWithoutChannels(t *testing.T) {
	e, _ := newEngine(t)
	require.ErrorIs(t, e.JoinWithCodename(context.Background(), "Agent_1"), domain.ErrNoChannel)
}

func TestActionsRejectedBeforeJoin(t *testing.T) {
	req := require.New(t)
	e, _ := newEngine(t, "ops")

	req.ErrorIs(e.SelectChannel(context.Background(), "any"), domain.ErrNotJoined)
	req.ErrorIs(e.SendMessage(context.Background(), "hi"), domain.ErrNotJoined)
}

func TestSendEchoesThroughFeed(t *testing.T) {
	req := require.New(t)
	e, _ := newEngine(t, "ops")

	req.NoError(e.JoinWithCodename(context.Background(), "Agent_1"))
	req.NoError(e.SendMessage(context.Background(), "first transmission"))

	req.Eventually(func() bool {
		return len(e.State().Messages) == 1
	}, time.Second, 10*time.Millisecond)

	msg := e.State().Messages[0]
	req.Equal("first transmission", msg.Content)
	req.Equal("Agent_1", msg.Author)

	// Exactly once: the echo dedupes against any other delivery.
	time.Sleep(50 * time.Millisecond)
	req.Len(e.State().Messages, 1)
}

func TestSelectChannelIsolatesState(t *testing.T) {
	req := require.New(t)
	e, st := newEngine(t, "ops", "intel")

	req.NoError(e.JoinWithCodename(context.Background(), "Agent_1"))
	req.NoError(e.SendMessage(context.Background(), "for intel"))

	req.Eventually(func() bool {
		return len(e.State().Messages) == 1
	}, time.Second, 10*time.Millisecond)

	opsID := channelID(t, e, "ops")
	req.NoError(e.SelectChannel(context.Background(), opsID))

	snap := e.State()
	req.Equal(opsID, snap.SelectedID)
	req.Empty(snap.Messages)

	// A message landing in the old channel stays invisible.
	_, err := st.InsertMessage(context.Background(), domain.MessageDraft{
		ChannelID: channelID(t, e, "intel"), Author: "Magpie", Content: "late",
	})
	req.NoError(err)
	time.Sleep(50 * time.Millisecond)
	req.Empty(e.State().Messages)
}

func TestSwitchMovesRosterMembership(t *testing.T) {
	req := require.New(t)
	e, st := newEngine(t, "ops", "intel")

	req.NoError(e.JoinWithCodename(context.Background(), "Agent_1"))
	intelID := channelID(t, e, "intel")
	opsID := channelID(t, e, "ops")

	req.NoError(e.SelectChannel(context.Background(), opsID))

	req.Eventually(func() bool {
		roster := e.State().Roster
		return len(roster) == 1 && roster[0].ChannelID == opsID
	}, time.Second, 10*time.Millisecond)

	// The old channel's roster no longer lists the agent.
	old, err := st.Roster(context.Background(), intelID)
	req.NoError(err)
	req.Empty(old)
}

func TestReselectActiveChannelIsNoOp(t *testing.T) {
	req := require.New(t)
	e, _ := newEngine(t, "ops")

	req.NoError(e.JoinWithCodename(context.Background(), "Agent_1"))
	selected := e.State().SelectedID
	req.NoError(e.SelectChannel(context.Background(), selected))
	req.Equal(selected, e.State().SelectedID)
}

func TestSelectUnknownChannel(t *testing.T) {
	req := require.New(t)
	e, _ := newEngine(t, "ops")

	req.NoError(e.JoinWithCodename(context.Background(), "Agent_1"))
	req.ErrorIs(e.SelectChannel(context.Background(), "nope"), domain.ErrUnknownChannel)
}

func TestUpdatesSignalOnChange(t *testing.T) {
	req := require.New(t)
	e, _ := newEngine(t, "ops")

	req.NoError(e.JoinWithCodename(context.Background(), "Agent_1"))
	drain(e)

	req.NoError(e.SendMessage(context.Background(), "ping"))

	select {
	case <-e.Updates():
	case <-time.After(time.Second):
		t.Fatal("no update signal after send")
	}
}

func TestCloseMarksSessionOffline(t *testing.T) {
	req := require.New(t)

	broker := feed.NewBroker()
	t.Cleanup(func() { broker.Close() })
	st := store.NewMemoryStore(broker)
	_, err := st.InsertChannel(context.Background(), "ops", domain.ChannelPublic)
	req.NoError(err)

	e := New(st, broker, zerolog.Nop())
	req.NoError(e.JoinWithCodename(context.Background(), "Agent_1"))
	selected := e.State().SelectedID

	req.NoError(e.Close(context.Background()))

	roster, err := st.Roster(context.Background(), selected)
	req.NoError(err)
	req.Empty(roster)
}

func drain(e *Engine) {
	for {
		select {
		case <-e.Updates():
		default:
			return
		}
	}
}
