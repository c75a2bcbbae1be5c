package presence

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/specterchat/specter/internal/domain"
	"github.com/specterchat/specter/internal/feed"
	"github.com/specterchat/specter/internal/store"
)

// countingStore counts Roster calls to pin down the reload-per-event rule.
type countingStore struct {
	store.Store
	rosterCalls atomic.Int64
}

func (c *countingStore) Roster(ctx context.Context, channelID string) ([]domain.Session, error) {
	c.rosterCalls.Add(1)
	return c.Store.Roster(ctx, channelID)
}

func newFixture(t *testing.T) (*store.MemoryStore, *feed.Broker) {
	t.Helper()
	broker := feed.NewBroker()
	t.Cleanup(func() { broker.Close() })
	return store.NewMemoryStore(broker), broker
}

func join(t *testing.T, st store.Store, channelID, codename string) domain.Session {
	t.Helper()
	sess, err := st.InsertSession(context.Background(), domain.SessionDraft{ChannelID: channelID, Codename: codename})
	require.NoError(t, err)
	return *sess
}

func codenames(roster []domain.Session) []string {
	out := make([]string, len(roster))
	for i, s := range roster {
		out[i] = s.Codename
	}
	return out
}

func TestOpenLoadsOnlineRoster(t *testing.T) {
	req := require.New(t)
	st, broker := newFixture(t)

	join(t, st, "ch1", "Nightjar")
	join(t, st, "ch1", "Condor")
	gone := join(t, st, "ch1", "Magpie")
	req.NoError(st.SetSessionOnline(context.Background(), gone.ID, false))

	tr := New(st, broker)
	req.NoError(tr.Open(context.Background(), "ch1"))

	// Online only, codename ascending.
	req.Equal([]string{"Condor", "Nightjar"}, codenames(tr.Roster()))
}

func TestJoinEventAddsToRoster(t *testing.T) {
	req := require.New(t)
	st, broker := newFixture(t)

	tr := New(st, broker)
	req.NoError(tr.Open(context.Background(), "ch1"))
	req.Empty(tr.Roster())

	join(t, st, "ch1", "Condor")

	req.Eventually(func() bool {
		return len(tr.Roster()) == 1
	}, time.Second, 10*time.Millisecond)
	req.Equal([]string{"Condor"}, codenames(tr.Roster()))
}

func TestOfflineEventRemovesFromRoster(t *testing.T) {
	req := require.New(t)
	st, broker := newFixture(t)

	sess := join(t, st, "ch1", "Condor")
	join(t, st, "ch1", "Nightjar")

	tr := New(st, broker)
	req.NoError(tr.Open(context.Background(), "ch1"))
	req.Len(tr.Roster(), 2)

	req.NoError(st.SetSessionOnline(context.Background(), sess.ID, false))

	req.Eventually(func() bool {
		return len(tr.Roster()) == 1
	}, time.Second, 10*time.Millisecond)
	req.Equal([]string{"Nightjar"}, codenames(tr.Roster()))
}

func TestOneReloadPerEvent(t *testing.T) {
	req := require.New(t)
	st, broker := newFixture(t)
	counting := &countingStore{Store: st}

	tr := New(counting, broker)
	req.NoError(tr.Open(context.Background(), "ch1"))
	after := counting.rosterCalls.Load()

	join(t, st, "ch1", "Condor")
	join(t, st, "ch1", "Nightjar")
	join(t, st, "ch1", "Magpie")

	req.Eventually(func() bool {
		return counting.rosterCalls.Load() == after+3
	}, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	req.Equal(after+3, counting.rosterCalls.Load())
}

func TestCrossChannelEventIgnored(t *testing.T) {
	req := require.New(t)
	st, broker := newFixture(t)

	tr := New(st, broker)
	req.NoError(tr.Open(context.Background(), "ch1"))

	join(t, st, "ch2", "Magpie")
	time.Sleep(50 * time.Millisecond)
	req.Empty(tr.Roster())
}

func TestSwitchReplacesRoster(t *testing.T) {
	req := require.New(t)
	st, broker := newFixture(t)

	join(t, st, "ch1", "Condor")
	join(t, st, "ch2", "Magpie")

	tr := New(st, broker)
	req.NoError(tr.Open(context.Background(), "ch1"))
	req.Equal([]string{"Condor"}, codenames(tr.Roster()))

	req.NoError(tr.Open(context.Background(), "ch2"))
	req.Equal([]string{"Magpie"}, codenames(tr.Roster()))

	// Events for the old channel no longer land.
	join(t, st, "ch1", "Nightjar")
	time.Sleep(50 * time.Millisecond)
	req.Equal([]string{"Magpie"}, codenames(tr.Roster()))
}

func TestFailedReloadKeepsPriorRoster(t *testing.T) {
	req := require.New(t)
	st, broker := newFixture(t)

	join(t, st, "ch1", "Condor")

	flaky := &flakyStore{Store: st}
	tr := New(flaky, broker)
	req.NoError(tr.Open(context.Background(), "ch1"))
	req.Equal([]string{"Condor"}, codenames(tr.Roster()))

	flaky.setFail(true)
	join(t, st, "ch1", "Nightjar")
	time.Sleep(50 * time.Millisecond)
	req.Equal([]string{"Condor"}, codenames(tr.Roster()))

	// Next event retries and catches up.
	flaky.setFail(false)
	join(t, st, "ch1", "Magpie")
	req.Eventually(func() bool {
		return len(tr.Roster()) == 3
	}, time.Second, 10*time.Millisecond)
}

type flakyStore struct {
	store.Store
	mu   sync.Mutex
	fail bool
}

func (f *flakyStore) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func (f *flakyStore) Roster(ctx context.Context, channelID string) ([]domain.Session, error) {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return nil, context.DeadlineExceeded
	}
	return f.Store.Roster(ctx, channelID)
}
