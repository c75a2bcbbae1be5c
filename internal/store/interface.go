// Package store is the persistent record boundary of the sync engine.
// The store is the single serialization point: ids and creation times are
// assigned here, and every successful write is echoed onto the change
// feed, which is how clients (including the writer) observe it.
package store

import (
	"context"
	"time"

	"github.com/specterchat/specter/internal/domain"
)

// Store performs typed query/insert operations on the three record kinds.
type Store interface {
	// Channels returns all channels ordered by name ascending.
	Channels(ctx context.Context) ([]domain.Channel, error)

	// Messages returns the most recent limit messages of a channel,
	// ordered by creation time ascending.
	Messages(ctx context.Context, channelID string, limit int) ([]domain.Message, error)

	// Roster returns the online sessions of a channel ordered by codename.
	Roster(ctx context.Context, channelID string) ([]domain.Session, error)

	// InsertMessage persists a new message with server-assigned id and
	// creation time, then publishes the insert event.
	InsertMessage(ctx context.Context, draft domain.MessageDraft) (*domain.Message, error)

	// InsertSession persists a new online session, then publishes the
	// insert event.
	InsertSession(ctx context.Context, draft domain.SessionDraft) (*domain.Session, error)

	// SetSessionOnline flips a session's online flag, then publishes the
	// update event.
	SetSessionOnline(ctx context.Context, sessionID string, online bool) error

	// InsertChannel creates a channel. Channels are created out-of-band
	// by the admin CLI, never by the sync engine.
	InsertChannel(ctx context.Context, name string, visibility domain.Visibility) (*domain.Channel, error)

	// DeleteMessagesBefore removes messages older than the cutoff and
	// returns the number deleted. Retention is a store-side policy.
	DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
