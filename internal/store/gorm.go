package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/specterchat/specter/internal/domain"
	"github.com/specterchat/specter/internal/feed"
	"github.com/specterchat/specter/pkg/log"
)

// ErrSessionNotFound is returned when flipping the online flag of a
// session that does not exist.
var ErrSessionNotFound = errors.New("session not found")

// GormStore implements Store using GORM. Writes are echoed onto the feed
// bus after they commit; publish failures are logged, not returned, since
// the row exists regardless.
type GormStore struct {
	db  *gorm.DB
	pub feed.Publisher
}

// NewGormStore creates a GORM-based store publishing change events to pub.
// pub may be nil for write-only tooling that needs no feed echo.
func NewGormStore(db *gorm.DB, pub feed.Publisher) *GormStore {
	return &GormStore{db: db, pub: pub}
}

// Migrate runs auto-migration for the three record tables.
func (s *GormStore) Migrate() error {
	return s.db.AutoMigrate(&domain.ChannelModel{}, &domain.MessageModel{}, &domain.SessionModel{})
}

// Channels returns all channels ordered by name ascending.
func (s *GormStore) Channels(ctx context.Context) ([]domain.Channel, error) {
	l := log.Ctx(ctx)

	var models []domain.ChannelModel
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&models).Error; err != nil {
		l.Error().Err(err).Msg("failed to list channels")
		return nil, err
	}

	channels := make([]domain.Channel, len(models))
	for i, m := range models {
		channels[i] = *m.ToDomain()
	}
	return channels, nil
}

// Messages returns the most recent limit messages ordered ascending.
// The window is the newest rows, so the query runs descending and the
// result is reversed.
func (s *GormStore) Messages(ctx context.Context, channelID string, limit int) ([]domain.Message, error) {
	l := log.Ctx(ctx)

	if limit < 1 {
		limit = 50
	}

	var models []domain.MessageModel
	err := s.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		l.Error().Err(err).Str(log.FieldChannelID, channelID).Msg("failed to load backlog")
		return nil, err
	}

	messages := make([]domain.Message, len(models))
	for i, m := range models {
		messages[len(models)-1-i] = *m.ToDomain()
	}
	return messages, nil
}

// Roster returns the online sessions of a channel ordered by codename.
func (s *GormStore) Roster(ctx context.Context, channelID string) ([]domain.Session, error) {
	l := log.Ctx(ctx)

	var models []domain.SessionModel
	err := s.db.WithContext(ctx).
		Where("channel_id = ? AND online = ?", channelID, true).
		Order("codename ASC").
		Find(&models).Error
	if err != nil {
		l.Error().Err(err).Str(log.FieldChannelID, channelID).Msg("failed to load roster")
		return nil, err
	}

	sessions := make([]domain.Session, len(models))
	for i, m := range models {
		sessions[i] = *m.ToDomain()
	}
	return sessions, nil
}

// InsertMessage persists a message and publishes the insert event.
func (s *GormStore) InsertMessage(ctx context.Context, draft domain.MessageDraft) (*domain.Message, error) {
	l := log.Ctx(ctx)

	model := &domain.MessageModel{
		ID:        uuid.New().String(),
		ChannelID: draft.ChannelID,
		Author:    draft.Author,
		Content:   draft.Content,
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		l.Error().Err(err).Str(log.FieldChannelID, draft.ChannelID).Msg("failed to insert message")
		return nil, err
	}

	msg := model.ToDomain()
	s.publish(ctx, feed.TableMessages, feed.ActionInsert, msg.ChannelID, msg)
	return msg, nil
}

// InsertSession persists an online session and publishes the insert event.
func (s *GormStore) InsertSession(ctx context.Context, draft domain.SessionDraft) (*domain.Session, error) {
	l := log.Ctx(ctx)

	model := &domain.SessionModel{
		ID:        uuid.New().String(),
		ChannelID: draft.ChannelID,
		Codename:  draft.Codename,
		Online:    true,
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		l.Error().Err(err).Str(log.FieldChannelID, draft.ChannelID).Str(log.FieldCodename, draft.Codename).Msg("failed to insert session")
		return nil, err
	}

	sess := model.ToDomain()
	s.publish(ctx, feed.TableSessions, feed.ActionInsert, sess.ChannelID, sess)
	return sess, nil
}

// SetSessionOnline flips the online flag and publishes the update event.
func (s *GormStore) SetSessionOnline(ctx context.Context, sessionID string, online bool) error {
	l := log.Ctx(ctx)

	var model domain.SessionModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		l.Error().Err(err).Str(log.FieldSessionID, sessionID).Msg("failed to get session")
		return err
	}

	err := s.db.WithContext(ctx).Model(&model).
		Updates(map[string]interface{}{"online": online, "last_seen_at": time.Now()}).Error
	if err != nil {
		l.Error().Err(err).Str(log.FieldSessionID, sessionID).Msg("failed to update session")
		return err
	}

	model.Online = online
	s.publish(ctx, feed.TableSessions, feed.ActionUpdate, model.ChannelID, model.ToDomain())
	return nil
}

// InsertChannel creates a channel row.
func (s *GormStore) InsertChannel(ctx context.Context, name string, visibility domain.Visibility) (*domain.Channel, error) {
	l := log.Ctx(ctx)

	model := &domain.ChannelModel{
		ID:         uuid.New().String(),
		Name:       name,
		Visibility: string(visibility),
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		l.Error().Err(err).Str("name", name).Msg("failed to insert channel")
		return nil, err
	}

	ch := model.ToDomain()
	s.publish(ctx, feed.TableChannels, feed.ActionInsert, ch.ID, ch)
	return ch, nil
}

// DeleteMessagesBefore removes messages older than the cutoff.
func (s *GormStore) DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	l := log.Ctx(ctx)

	result := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&domain.MessageModel{})
	if result.Error != nil {
		l.Error().Err(result.Error).Msg("failed to sweep messages")
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (s *GormStore) publish(ctx context.Context, table string, action feed.Action, channelID string, payload interface{}) {
	if s.pub == nil {
		return
	}

	l := log.Ctx(ctx)
	event, err := feed.NewEvent(table, action, channelID, payload)
	if err != nil {
		l.Warn().Err(err).Str(log.FieldTable, table).Msg("failed to build change event")
		return
	}
	if err := s.pub.Publish(ctx, event); err != nil {
		l.Warn().Err(err).Str(log.FieldTable, table).Str(log.FieldAction, string(action)).Msg("failed to publish change event")
	}
}
