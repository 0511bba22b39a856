package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ConversationKind string

const (
	ConversationDirect ConversationKind = "direct"
	ConversationGroup  ConversationKind = "group"
)

type Conversation struct {
	ID      string           `gorm:"primaryKey;type:uuid" json:"id"`
	Kind    ConversationKind `gorm:"type:varchar(16);not null" json:"kind"`
	Title   string           `json:"title,omitempty"`
	GroupID *string          `gorm:"uniqueIndex" json:"group_id,omitempty"`
	// DirectKey is "<userA>:<userB>" with ids sorted, unique for direct conversations.
	DirectKey     *string    `gorm:"uniqueIndex" json:"-"`
	LastMessageAt *time.Time `gorm:"index" json:"last_message_at,omitempty"`

	Members []ConversationMember `gorm:"foreignKey:ConversationID" json:"members,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// ConversationMember carries the per-recipient read marker.
type ConversationMember struct {
	ConversationID string     `gorm:"primaryKey" json:"conversation_id"`
	UserID         string     `gorm:"primaryKey;index" json:"user_id"`
	JoinedAt       time.Time  `gorm:"not null" json:"joined_at"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty"`
}

type Message struct {
	ID             string    `gorm:"primaryKey;type:uuid" json:"id"`
	ConversationID string    `gorm:"not null;index:idx_message_conversation_sent" json:"conversation_id"`
	SenderID       string    `gorm:"not null;index" json:"sender_id"`
	Body           string    `gorm:"type:text;not null" json:"body"`
	SentAt         time.Time `gorm:"not null;index:idx_message_conversation_sent" json:"sent_at"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
