package domain

import (
	"time"
)

// Visibility represents channel visibility.
type Visibility string

const (
	ChannelPublic  Visibility = "public"
	ChannelPrivate Visibility = "private"
)

// Channel is a named conversation scope containing messages and sessions.
// Channels are created out-of-band (admin CLI); the sync engine only reads them.
type Channel struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Visibility Visibility `json:"visibility"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// ChannelModel is the GORM model for the channels table.
type ChannelModel struct {
	ID         string    `gorm:"type:varchar(36);primaryKey"`
	Name       string    `gorm:"type:varchar(100);uniqueIndex;not null"`
	Visibility string    `gorm:"type:varchar(10);not null;default:'public'"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for ChannelModel.
func (ChannelModel) TableName() string {
	return "channels"
}

// ToDomain converts ChannelModel to a domain Channel.
func (m *ChannelModel) ToDomain() *Channel {
	return &Channel{
		ID:         m.ID,
		Name:       m.Name,
		Visibility: Visibility(m.Visibility),
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// ChannelToModel converts a domain Channel to ChannelModel.
func ChannelToModel(c *Channel) *ChannelModel {
	return &ChannelModel{
		ID:         c.ID,
		Name:       c.Name,
		Visibility: string(c.Visibility),
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}
