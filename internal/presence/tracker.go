// Package presence keeps the online roster of the selected channel in
// sync with the store. Any session event for the channel triggers a full
// roster reload: presence sets are small and incremental reconciliation
// of online/offline deltas is race-prone, so reload wins.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/specterchat/specter/internal/domain"
	"github.com/specterchat/specter/internal/feed"
	"github.com/specterchat/specter/internal/store"
	"github.com/specterchat/specter/pkg/log"
)

const (
	resubscribeAttempts = 5
	resubscribeBackoff  = 500 * time.Millisecond
)

// Tracker synchronizes one channel's online roster. It subscribes to all
// session event kinds, since joins, leaves, and flag flips arrive as any
// mutation kind. Teardown mirrors the message stream: the previous
// subscription is cancelled before a new one opens, and generation tags
// keep stale async results from overwriting the current channel.
//
// Tracker is safe for concurrent use by multiple goroutines.
type Tracker struct {
	store store.Store
	feed  feed.Feed

	// OnChange, if set, is invoked after every roster change.
	OnChange func()
	// OnError, if set, receives asynchronous subscription failures.
	OnError func(error)

	mu        sync.Mutex
	gen       uint64
	channelID string
	stale     bool
	roster    []domain.Session
	sub       feed.Subscription
	openCtx   context.Context
}

// New creates a Tracker over the given store and feed.
func New(st store.Store, fd feed.Feed) *Tracker {
	return &Tracker{store: st, feed: fd}
}

// Open switches the tracker to the given channel: cancel the previous
// subscription, subscribe to all session events of the new channel, and
// load the initial roster. Opening the already-tracked channel is a no-op
// unless the tracker is stale.
func (t *Tracker) Open(ctx context.Context, channelID string) error {
	t.mu.Lock()
	if channelID == t.channelID && t.sub != nil && !t.stale {
		t.mu.Unlock()
		return nil
	}

	t.gen++
	gen := t.gen
	old := t.sub
	t.sub = nil
	if channelID != t.channelID {
		t.roster = nil
	}
	t.channelID = channelID
	t.stale = false
	t.openCtx = ctx
	t.mu.Unlock()

	if old != nil {
		old.Cancel()
	}

	if err := t.goLive(ctx, gen, channelID); err != nil {
		return err
	}

	t.notify()
	return nil
}

func (t *Tracker) goLive(ctx context.Context, gen uint64, channelID string) error {
	sub, err := t.feed.Subscribe(ctx, feed.TableSessions, feed.MaskAll, channelID)
	if err != nil {
		t.markStale(gen)
		return &domain.SubscriptionError{Table: feed.TableSessions, Err: err}
	}

	roster, err := t.store.Roster(ctx, channelID)
	if err != nil {
		sub.Cancel()
		t.markStale(gen)
		return &domain.LoadError{Op: "roster", Err: err}
	}

	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		sub.Cancel()
		return nil
	}
	t.roster = roster
	t.sub = sub
	t.stale = false
	t.mu.Unlock()

	go t.consume(ctx, sub, gen, channelID)
	return nil
}

// Roster returns a copy of the online roster.
func (t *Tracker) Roster() []domain.Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]domain.Session, len(t.roster))
	copy(out, t.roster)
	return out
}

// Stale reports whether the roster may be out of date because the
// subscription is down.
func (t *Tracker) Stale() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stale
}

// ChannelID returns the channel the tracker is following.
func (t *Tracker) ChannelID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.channelID
}

// Close cancels the subscription and resets the tracker.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.gen++
	sub := t.sub
	t.sub = nil
	t.channelID = ""
	t.roster = nil
	t.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
}

// consume reloads the roster once per delivered event, serially, until
// the subscription ends. No incremental patching of the event payload.
func (t *Tracker) consume(ctx context.Context, sub feed.Subscription, gen uint64, channelID string) {
	for ev := range sub.Events() {
		t.mu.Lock()
		current := t.gen == gen
		t.mu.Unlock()
		if !current {
			return
		}
		if ev.ChannelID != channelID {
			continue
		}

		roster, err := t.store.Roster(ctx, channelID)
		if err != nil {
			// Keep showing the prior roster; the next event retries.
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldChannelID, channelID).Msg("roster reload failed")
			continue
		}

		t.mu.Lock()
		if t.gen != gen {
			t.mu.Unlock()
			return
		}
		t.roster = roster
		t.mu.Unlock()

		t.notify()
	}

	t.mu.Lock()
	dropped := t.gen == gen
	if dropped {
		t.stale = true
	}
	t.mu.Unlock()

	if !dropped {
		return
	}

	t.reportError(&domain.SubscriptionError{Table: feed.TableSessions, Err: context.Canceled})
	t.notify()
	t.resubscribe(ctx, gen, channelID)
}

func (t *Tracker) resubscribe(ctx context.Context, gen uint64, channelID string) {
	l := log.Ctx(ctx)
	backoff := resubscribeBackoff

	for attempt := 1; attempt <= resubscribeAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		t.mu.Lock()
		if t.gen != gen {
			t.mu.Unlock()
			return
		}
		t.gen++
		next := t.gen
		t.mu.Unlock()

		if err := t.goLive(ctx, next, channelID); err != nil {
			l.Warn().Err(err).Int("attempt", attempt).Str(log.FieldChannelID, channelID).Msg("presence resubscribe failed")
			gen = next
			backoff *= 2
			continue
		}

		l.Info().Str(log.FieldChannelID, channelID).Msg("presence resubscribed")
		t.notify()
		return
	}

	t.reportError(&domain.SubscriptionError{Table: feed.TableSessions, Err: context.DeadlineExceeded})
}

func (t *Tracker) markStale(gen uint64) {
	t.mu.Lock()
	if t.gen == gen {
		t.stale = true
	}
	t.mu.Unlock()
}

func (t *Tracker) notify() {
	if t.OnChange != nil {
		t.OnChange()
	}
}

func (t *Tracker) reportError(err error) {
	if t.OnError != nil {
		t.OnError(err)
	}
}
