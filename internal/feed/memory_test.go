package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func publish(t *testing.T, b *Broker, table string, action Action, channelID string) {
	t.Helper()
	event, err := NewEvent(table, action, channelID, map[string]string{"id": "x"})
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), event))
}

func recv(t *testing.T, sub Subscription) *Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return nil
	}
}

func expectNone(t *testing.T, sub Subscription) {
	t.Helper()
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscriptionFilters(t *testing.T) {
	req := require.New(t)
	b := NewBroker()
	t.Cleanup(func() { b.Close() })

	sub, err := b.Subscribe(context.Background(), TableMessages, MaskInserts, "ch1")
	req.NoError(err)

	publish(t, b, TableMessages, ActionInsert, "ch1")
	ev := recv(t, sub)
	req.Equal(TableMessages, ev.Table)
	req.Equal("ch1", ev.ChannelID)

	// Wrong table, wrong action, wrong channel: all filtered out.
	publish(t, b, TableSessions, ActionInsert, "ch1")
	publish(t, b, TableMessages, ActionDelete, "ch1")
	publish(t, b, TableMessages, ActionInsert, "ch2")
	expectNone(t, sub)
}

func TestWildcardChannelSubscription(t *testing.T) {
	req := require.New(t)
	b := NewBroker()
	t.Cleanup(func() { b.Close() })

	sub, err := b.Subscribe(context.Background(), TableSessions, MaskAll, "")
	req.NoError(err)

	publish(t, b, TableSessions, ActionInsert, "ch1")
	publish(t, b, TableSessions, ActionUpdate, "ch2")
	req.Equal("ch1", recv(t, sub).ChannelID)
	req.Equal("ch2", recv(t, sub).ChannelID)
}

func TestCancelStopsDeliveryAndClosesChannel(t *testing.T) {
	req := require.New(t)
	b := NewBroker()
	t.Cleanup(func() { b.Close() })

	sub, err := b.Subscribe(context.Background(), TableMessages, MaskAll, "ch1")
	req.NoError(err)

	sub.Cancel()
	sub.Cancel() // idempotent

	_, ok := <-sub.Events()
	req.False(ok)

	req.NoError(b.Publish(context.Background(), &Event{Table: TableMessages, Action: ActionInsert, ChannelID: "ch1"}))
}

func TestCloseEndsAllSubscriptions(t *testing.T) {
	req := require.New(t)
	b := NewBroker()

	s1, err := b.Subscribe(context.Background(), TableMessages, MaskAll, "ch1")
	req.NoError(err)
	s2, err := b.Subscribe(context.Background(), TableSessions, MaskAll, "")
	req.NoError(err)

	req.NoError(b.Close())

	_, ok := <-s1.Events()
	req.False(ok)
	_, ok = <-s2.Events()
	req.False(ok)
}

func TestMaskMatches(t *testing.T) {
	req := require.New(t)

	req.True(MaskInserts.Matches(ActionInsert))
	req.False(MaskInserts.Matches(ActionUpdate))
	req.False(MaskInserts.Matches(ActionDelete))

	combined := MaskUpdates | MaskDeletes
	req.False(combined.Matches(ActionInsert))
	req.True(combined.Matches(ActionUpdate))
	req.True(combined.Matches(ActionDelete))

	req.True(MaskAll.Matches(ActionInsert))
	req.False(MaskAll.Matches(Action("truncate")))
}
