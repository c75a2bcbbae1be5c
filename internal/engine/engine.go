// Package engine wires the sync components behind the view boundary:
// it consumes view intents, drives the channel-switch lifecycle, and
// exposes an observable snapshot of the synchronized state.
package engine

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/specterchat/specter/internal/directory"
	"github.com/specterchat/specter/internal/domain"
	"github.com/specterchat/specter/internal/feed"
	"github.com/specterchat/specter/internal/presence"
	"github.com/specterchat/specter/internal/session"
	"github.com/specterchat/specter/internal/store"
	"github.com/specterchat/specter/internal/stream"
	"github.com/specterchat/specter/pkg/log"
)

// Snapshot is the engine's observable state, consumed by the view.
type Snapshot struct {
	Channels    []domain.Channel
	SelectedID  string
	Messages    []domain.Message
	Roster      []domain.Session
	Codename    string
	Joined      bool
	JoinPending bool
	// Stale marks the message or roster state as possibly behind the
	// store while a subscription is being re-established.
	Stale bool
}

// Engine owns the session manager, channel directory, message stream,
// and presence tracker of one client. Until JoinWithCodename succeeds
// every other intent is rejected: nothing loads anonymously.
type Engine struct {
	store    store.Store
	feed     feed.Feed
	logger   zerolog.Logger
	dir      *directory.Directory
	sessions *session.Manager
	msgs     *stream.Stream
	tracker  *presence.Tracker

	ctx    context.Context
	cancel context.CancelFunc

	updates chan struct{}

	mu      sync.Mutex
	lastErr error
}

// New creates an Engine over the injected store and feed.
func New(st store.Store, fd feed.Feed, logger zerolog.Logger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		store:    st,
		feed:     fd,
		logger:   logger,
		dir:      directory.New(st),
		sessions: session.New(st),
		ctx:      log.WithLogger(ctx, logger),
		cancel:   cancel,
		updates:  make(chan struct{}, 1),
	}

	e.msgs = stream.New(st, fd)
	e.msgs.OnChange = e.signal
	e.msgs.OnError = e.reportError

	e.tracker = presence.New(st, fd)
	e.tracker.OnChange = e.signal
	e.tracker.OnError = e.reportError

	return e
}

// SetBacklogLimit overrides the message backlog window size.
func (e *Engine) SetBacklogLimit(limit int) {
	e.msgs.SetBacklogLimit(limit)
}

// JoinWithCodename validates the codename, loads the channel directory,
// persists a session for the default selection, and brings the stream
// and tracker live. Validation runs before any network call; a failed
// session insert leaves the engine in the not-joined state.
func (e *Engine) JoinWithCodename(ctx context.Context, codename string) error {
	if _, err := session.ValidateCodename(codename); err != nil {
		return err
	}
	if e.sessions.Joined() {
		return nil
	}

	if _, err := e.dir.Load(ctx); err != nil {
		return err
	}
	channelID := e.dir.Selected()
	if channelID == "" {
		return domain.ErrNoChannel
	}

	if _, err := e.sessions.Join(ctx, codename, channelID); err != nil {
		return err
	}
	e.signal()

	return e.rebuild(channelID)
}

// SelectChannel makes the given channel active. Re-selecting the active
// channel is a no-op; otherwise the membership moves (new session, old
// one marked offline) and the stream and tracker are rebuilt for the new
// channel id.
func (e *Engine) SelectChannel(ctx context.Context, channelID string) error {
	if !e.sessions.Joined() {
		return domain.ErrNotJoined
	}
	if channelID == e.dir.Selected() {
		return nil
	}
	if err := e.dir.Select(channelID); err != nil {
		return err
	}

	if _, err := e.sessions.Switch(ctx, channelID); err != nil {
		e.logger.Warn().Err(err).Str(log.FieldChannelID, channelID).Msg("session switch failed")
	}
	e.signal()

	return e.rebuild(channelID)
}

// SendMessage persists a message authored by the joined codename. The
// message becomes visible only through the feed echo.
func (e *Engine) SendMessage(ctx context.Context, content string) error {
	current := e.sessions.Current()
	if current == nil {
		return domain.ErrNotJoined
	}
	return e.msgs.Send(ctx, current.Codename, content)
}

// rebuild tears down and reopens the stream and tracker for a channel.
// The loads run in parallel; each tags its results with the channel
// generation so a stale completion cannot land.
func (e *Engine) rebuild(channelID string) error {
	var g errgroup.Group
	g.Go(func() error { return e.msgs.Open(e.ctx, channelID) })
	g.Go(func() error { return e.tracker.Open(e.ctx, channelID) })
	err := g.Wait()

	e.signal()
	return err
}

// State returns a snapshot of the observable state.
func (e *Engine) State() Snapshot {
	current := e.sessions.Current()

	snap := Snapshot{
		Channels:    e.dir.Channels(),
		SelectedID:  e.dir.Selected(),
		Messages:    e.msgs.Messages(),
		Roster:      e.tracker.Roster(),
		Joined:      current != nil,
		JoinPending: e.sessions.Pending(),
		Stale:       e.msgs.Stale() || e.tracker.Stale(),
	}
	if current != nil {
		snap.Codename = current.Codename
	}
	return snap
}

// Updates signals state changes. Notifications are coalesced: a receive
// means "re-read State", not "exactly one change happened".
func (e *Engine) Updates() <-chan struct{} {
	return e.updates
}

// Err returns the last asynchronous subscription error, if any.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Close cancels all subscriptions and marks the session offline.
func (e *Engine) Close(ctx context.Context) error {
	e.cancel()
	e.msgs.Close()
	e.tracker.Close()
	return e.sessions.Leave(ctx)
}

func (e *Engine) signal() {
	select {
	case e.updates <- struct{}{}:
	default:
	}
}

func (e *Engine) reportError(err error) {
	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()
	e.logger.Warn().Err(err).Msg("subscription degraded")
	e.signal()
}
