package domain

import (
	"time"
)

// Session records one codename's presence within one channel. A session is
// scoped to exactly one channel; switching channels creates a new session
// and marks the previous one offline.
type Session struct {
	ID         string    `json:"id"`
	ChannelID  string    `json:"channel_id"`
	Codename   string    `json:"codename"`
	Online     bool      `json:"online"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// SessionDraft is the client-supplied part of a session.
type SessionDraft struct {
	ChannelID string
	Codename  string
}

// SessionModel is the GORM model for the sessions table.
type SessionModel struct {
	ID         string    `gorm:"type:varchar(36);primaryKey"`
	ChannelID  string    `gorm:"type:varchar(36);index;not null"`
	Codename   string    `gorm:"type:varchar(32);not null"`
	Online     bool      `gorm:"index;not null;default:true"`
	LastSeenAt time.Time `gorm:"autoUpdateTime"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for SessionModel.
func (SessionModel) TableName() string {
	return "sessions"
}

// ToDomain converts SessionModel to a domain Session.
func (m *SessionModel) ToDomain() *Session {
	return &Session{
		ID:         m.ID,
		ChannelID:  m.ChannelID,
		Codename:   m.Codename,
		Online:     m.Online,
		LastSeenAt: m.LastSeenAt,
		CreatedAt:  m.CreatedAt,
	}
}

// SessionToModel converts a domain Session to SessionModel.
func SessionToModel(s *Session) *SessionModel {
	return &SessionModel{
		ID:         s.ID,
		ChannelID:  s.ChannelID,
		Codename:   s.Codename,
		Online:     s.Online,
		LastSeenAt: s.LastSeenAt,
		CreatedAt:  s.CreatedAt,
	}
}
