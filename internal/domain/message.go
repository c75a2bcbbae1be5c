package domain

import (
	"time"
)

// Message is an immutable chat message. Identity and creation time are
// assigned by the store, never by the client.
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageDraft is the client-supplied part of a message.
type MessageDraft struct {
	ChannelID string
	Author    string
	Content   string
}

// MessageModel is the GORM model for the messages table.
type MessageModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	ChannelID string    `gorm:"type:varchar(36);index;not null"`
	Author    string    `gorm:"type:varchar(32);not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
}

// TableName specifies the table name for MessageModel.
func (MessageModel) TableName() string {
	return "messages"
}

// ToDomain converts MessageModel to a domain Message.
func (m *MessageModel) ToDomain() *Message {
	return &Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		Author:    m.Author,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

// MessageToModel converts a domain Message to MessageModel.
func MessageToModel(m *Message) *MessageModel {
	return &MessageModel{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		Author:    m.Author,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}
