package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GroupRole string

const (
	GroupRoleOwner  GroupRole = "owner"
	GroupRoleMember GroupRole = "member"
)

// CommunityGroup is a creator community with its own group conversation.
type CommunityGroup struct {
	ID             string    `gorm:"primaryKey;type:uuid" json:"id"`
	Name           string    `gorm:"not null" json:"name"`
	Slug           string    `gorm:"uniqueIndex;not null" json:"slug"`
	Description    string    `gorm:"type:text" json:"description"`
	Platform       *Platform `gorm:"type:varchar(16)" json:"platform,omitempty"`
	OwnerID        string    `gorm:"index;not null" json:"owner_id"`
	MemberCount    int64     `gorm:"default:0" json:"member_count"`
	ConversationID string    `json:"conversation_id"`

	Timestamps
}

func (g *CommunityGroup) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return nil
}

type GroupMembership struct {
	GroupID  string    `gorm:"primaryKey" json:"group_id"`
	UserID   string    `gorm:"primaryKey;index" json:"user_id"`
	Role     GroupRole `gorm:"type:varchar(16);not null" json:"role"`
	JoinedAt time.Time `gorm:"not null" json:"joined_at"`
}
