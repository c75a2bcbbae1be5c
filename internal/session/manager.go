// Package session owns the local user's codename and channel membership.
package session

import (
	"context"
	"strings"
	"sync"

	"github.com/specterchat/specter/internal/domain"
	"github.com/specterchat/specter/internal/store"
	"github.com/specterchat/specter/pkg/log"
)

// MaxCodenameLen bounds the codename length after trimming.
const MaxCodenameLen = 32

// Manager creates and retires Session records. A codename is a bare
// display-name claim: uniqueness is not checked and no credential is
// involved. Only the Manager may create sessions.
type Manager struct {
	store store.Store

	mu      sync.Mutex
	current *domain.Session
	pending bool
}

// New creates a Manager over the given store.
func New(st store.Store) *Manager {
	return &Manager{store: st}
}

// ValidateCodename trims the codename and rejects empty or over-length
// input. Runs before any network call.
func ValidateCodename(codename string) (string, error) {
	trimmed := strings.TrimSpace(codename)
	if trimmed == "" {
		return "", &domain.ValidationError{Field: "codename", Reason: "must not be empty"}
	}
	if len(trimmed) > MaxCodenameLen {
		return "", &domain.ValidationError{Field: "codename", Reason: "longer than 32 characters"}
	}
	return trimmed, nil
}

// Join persists a new session for the given channel. On persistence
// failure no session exists and the caller stays in the not-joined state.
func (m *Manager) Join(ctx context.Context, codename, channelID string) (*domain.Session, error) {
	trimmed, err := ValidateCodename(codename)
	if err != nil {
		return nil, err
	}
	if channelID == "" {
		return nil, domain.ErrNoChannel
	}

	m.mu.Lock()
	m.pending = true
	m.mu.Unlock()

	sess, err := m.store.InsertSession(ctx, domain.SessionDraft{ChannelID: channelID, Codename: trimmed})

	m.mu.Lock()
	m.pending = false
	if err == nil {
		m.current = sess
	}
	m.mu.Unlock()

	if err != nil {
		return nil, &domain.PersistenceError{Op: "join", Err: err}
	}

	l := log.Ctx(ctx)
	l.Info().Str(log.FieldCodename, trimmed).Str(log.FieldChannelID, channelID).Str(log.FieldSessionID, sess.ID).Msg("joined channel")
	return sess, nil
}

// Switch moves the membership to a new channel: a fresh session is
// created for it and the previous session is marked offline. The switch
// fails without losing the old session if the new insert is rejected.
func (m *Manager) Switch(ctx context.Context, channelID string) (*domain.Session, error) {
	m.mu.Lock()
	prev := m.current
	m.mu.Unlock()

	if prev == nil {
		return nil, domain.ErrNotJoined
	}
	if prev.ChannelID == channelID {
		return prev, nil
	}

	next, err := m.store.InsertSession(ctx, domain.SessionDraft{ChannelID: channelID, Codename: prev.Codename})
	if err != nil {
		return nil, &domain.PersistenceError{Op: "channel switch", Err: err}
	}

	m.mu.Lock()
	m.current = next
	m.mu.Unlock()

	l := log.Ctx(ctx)
	if err := m.store.SetSessionOnline(ctx, prev.ID, false); err != nil {
		// The new membership stands; the stale row only overstates presence.
		l.Warn().Err(err).Str(log.FieldSessionID, prev.ID).Msg("failed to mark previous session offline")
	}

	l.Info().Str(log.FieldCodename, next.Codename).Str(log.FieldChannelID, channelID).Msg("switched channel")
	return next, nil
}

// Leave marks the current session offline and forgets it.
func (m *Manager) Leave(ctx context.Context) error {
	m.mu.Lock()
	current := m.current
	m.current = nil
	m.mu.Unlock()

	if current == nil {
		return nil
	}
	if err := m.store.SetSessionOnline(ctx, current.ID, false); err != nil {
		return &domain.PersistenceError{Op: "leave", Err: err}
	}
	return nil
}

// Current returns the active session, or nil before a successful Join.
func (m *Manager) Current() *domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Joined reports whether a session exists.
func (m *Manager) Joined() bool {
	return m.Current() != nil
}

// Pending reports whether a Join is in flight.
func (m *Manager) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}
