package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/specterchat/specter/internal/domain"
	"github.com/specterchat/specter/internal/store"
)

type rejectingStore struct {
	store.Store
}

func (rejectingStore) InsertSession(context.Context, domain.SessionDraft) (*domain.Session, error) {
	return nil, errors.New("store unavailable")
}

func TestValidateCodename(t *testing.T) {
	req := require.New(t)

	trimmed, err := ValidateCodename("  Agent_1  ")
	req.NoError(err)
	req.Equal("Agent_1", trimmed)

	for _, input := range []string{"", "   ", strings.Repeat("x", MaxCodenameLen+1)} {
		_, err := ValidateCodename(input)
		var verr *domain.ValidationError
		req.ErrorAs(err, &verr, "input %q", input)
		req.Equal("codename", verr.Field)
	}

	// Exactly at the limit passes.
	_, err = ValidateCodename(strings.Repeat("x", MaxCodenameLen))
	req.NoError(err)
}

func TestJoinCreatesOnlineSession(t *testing.T) {
	req := require.New(t)
	st := store.NewMemoryStore(nil)
	m := New(st)
	req.False(m.Joined())

	sess, err := m.Join(context.Background(), "  Condor ", "ch1")
	req.NoError(err)
	req.Equal("Condor", sess.Codename)
	req.Equal("ch1", sess.ChannelID)
	req.True(sess.Online)

	req.True(m.Joined())
	req.False(m.Pending())
	req.Equal(sess.ID, m.Current().ID)

	roster, err := st.Roster(context.Background(), "ch1")
	req.NoError(err)
	req.Len(roster, 1)
}

func TestJoinValidationFailsBeforeStore(t *testing.T) {
	req := require.New(t)
	m := New(rejectingStore{})

	_, err := m.Join(context.Background(), "   ", "ch1")
	var verr *domain.ValidationError
	req.ErrorAs(err, &verr)
	req.False(m.Joined())
}

func TestJoinPersistFailureLeavesNotJoined(t *testing.T) {
	req := require.New(t)
	m := New(rejectingStore{Store: store.NewMemoryStore(nil)})

	_, err := m.Join(context.Background(), "Condor", "ch1")
	var perr *domain.PersistenceError
	req.ErrorAs(err, &perr)
	req.False(m.Joined())
	req.False(m.Pending())
}

func TestJoinWithoutChannel(t *testing.T) {
	m := New(store.NewMemoryStore(nil))
	_, err := m.Join(context.Background(), "Condor", "")
	require.ErrorIs(t, err, domain.ErrNoChannel)
}

func TestSwitchMarksPreviousOffline(t *testing.T) {
	req := require.New(t)
	st := store.NewMemoryStore(nil)
	m := New(st)

	first, err := m.Join(context.Background(), "Condor", "ch1")
	req.NoError(err)

	next, err := m.Switch(context.Background(), "ch2")
	req.NoError(err)
	req.NotEqual(first.ID, next.ID)
	req.Equal("ch2", next.ChannelID)
	req.Equal("Condor", next.Codename)

	oldRoster, err := st.Roster(context.Background(), "ch1")
	req.NoError(err)
	req.Empty(oldRoster)

	newRoster, err := st.Roster(context.Background(), "ch2")
	req.NoError(err)
	req.Len(newRoster, 1)
}

func TestSwitchToSameChannelKeepsSession(t *testing.T) {
	req := require.New(t)
	m := New(store.NewMemoryStore(nil))

	first, err := m.Join(context.Background(), "Condor", "ch1")
	req.NoError(err)

	same, err := m.Switch(context.Background(), "ch1")
	req.NoError(err)
	req.Equal(first.ID, same.ID)
}

func TestSwitchBeforeJoin(t *testing.T) {
	m := New(store.NewMemoryStore(nil))
	_, err := m.Switch(context.Background(), "ch2")
	require.ErrorIs(t, err, domain.ErrNotJoined)
}

func TestSwitchFailureKeepsOldSession(t *testing.T) {
	req := require.New(t)
	st := store.NewMemoryStore(nil)
	m := New(st)

	first, err := m.Join(context.Background(), "Condor", "ch1")
	req.NoError(err)

	m.store = rejectingStore{Store: st}
	_, err = m.Switch(context.Background(), "ch2")
	var perr *domain.PersistenceError
	req.ErrorAs(err, &perr)
	req.Equal(first.ID, m.Current().ID)

	roster, err := st.Roster(context.Background(), "ch1")
	req.NoError(err)
	req.Len(roster, 1)
}

func TestLeave(t *testing.T) {
	req := require.New(t)
	st := store.NewMemoryStore(nil)
	m := New(st)

	_, err := m.Join(context.Background(), "Condor", "ch1")
	req.NoError(err)

	req.NoError(m.Leave(context.Background()))
	req.False(m.Joined())

	roster, err := st.Roster(context.Background(), "ch1")
	req.NoError(err)
	req.Empty(roster)

	// Leaving twice is harmless.
	req.NoError(m.Leave(context.Background()))
}
