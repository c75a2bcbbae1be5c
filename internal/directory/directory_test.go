package directory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/specterchat/specter/internal/domain"
	"github.com/specterchat/specter/internal/store"
)

type failingStore struct {
	store.Store
	mu   sync.Mutex
	fail bool
}

func (f *failingStore) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func (f *failingStore) Channels(ctx context.Context) ([]domain.Channel, error) {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return nil, errors.New("store unavailable")
	}
	return f.Store.Channels(ctx)
}

func seed(t *testing.T, st store.Store, names ...string) map[string]string {
	t.Helper()
	ids := make(map[string]string, len(names))
	for _, name := range names {
		ch, err := st.InsertChannel(context.Background(), name, domain.ChannelPublic)
		require.NoError(t, err)
		ids[name] = ch.ID
	}
	return ids
}

func TestLoadSelectsFirstByName(t *testing.T) {
	req := require.New(t)
	st := store.NewMemoryStore(nil)
	ids := seed(t, st, "ops", "intel", "lounge")

	var selections []string
	d := New(st)
	d.OnSelect = func(id string) { selections = append(selections, id) }

	channels, err := d.Load(context.Background())
	req.NoError(err)
	req.Len(channels, 3)
	req.Equal("intel", channels[0].Name)

	req.Equal(ids["intel"], d.Selected())
	req.Equal([]string{ids["intel"]}, selections)

	ch, ok := d.SelectedChannel()
	req.True(ok)
	req.Equal("intel", ch.Name)
}

func TestReloadPreservesSelection(t *testing.T) {
	req := require.New(t)
	st := store.NewMemoryStore(nil)
	ids := seed(t, st, "ops", "intel")

	d := New(st)
	_, err := d.Load(context.Background())
	req.NoError(err)
	req.NoError(d.Select(ids["ops"]))

	selectCount := 0
	d.OnSelect = func(string) { selectCount++ }
	_, err = d.Load(context.Background())
	req.NoError(err)
	req.Equal(ids["ops"], d.Selected())
	req.Zero(selectCount)
}

func TestSelectUnknownChannel(t *testing.T) {
	req := require.New(t)
	st := store.NewMemoryStore(nil)
	seed(t, st, "ops")

	d := New(st)
	_, err := d.Load(context.Background())
	req.NoError(err)

	req.ErrorIs(d.Select("nope"), domain.ErrUnknownChannel)
}

func TestReselectIsNoOp(t *testing.T) {
	req := require.New(t)
	st := store.NewMemoryStore(nil)
	seed(t, st, "ops")

	d := New(st)
	_, err := d.Load(context.Background())
	req.NoError(err)

	selectCount := 0
	d.OnSelect = func(string) { selectCount++ }
	req.NoError(d.Select(d.Selected()))
	req.Zero(selectCount)
}

func TestFailedLoadPreservesPriorList(t *testing.T) {
	req := require.New(t)
	st := store.NewMemoryStore(nil)
	ids := seed(t, st, "ops", "intel")
	failing := &failingStore{Store: st}

	d := New(failing)
	_, err := d.Load(context.Background())
	req.NoError(err)

	failing.setFail(true)
	_, err = d.Load(context.Background())

	var lerr *domain.LoadError
	req.ErrorAs(err, &lerr)
	req.Len(d.Channels(), 2)
	req.Equal(ids["intel"], d.Selected())
}

func TestEmptyDirectory(t *testing.T) {
	req := require.New(t)
	st := store.NewMemoryStore(nil)

	d := New(st)
	channels, err := d.Load(context.Background())
	req.NoError(err)
	req.Empty(channels)
	req.Empty(d.Selected())

	_, ok := d.SelectedChannel()
	req.False(ok)
}
