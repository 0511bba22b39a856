package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationKind string

const (
	NotificationEngagementVerified NotificationKind = "engagement_verified"
	NotificationEngagementRejected NotificationKind = "engagement_rejected"
	NotificationEngagementExpired  NotificationKind = "engagement_expired"
	NotificationRewardRedeemed     NotificationKind = "reward_redeemed"
	NotificationAchievement        NotificationKind = "achievement_completed"
	NotificationMessage            NotificationKind = "message"
)

type Notification struct {
	ID          string           `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string           `gorm:"not null;index:idx_notification_user_read" json:"user_id"`
	Kind        NotificationKind `gorm:"type:varchar(32);not null" json:"kind"`
	Title       string           `gorm:"not null" json:"title"`
	Body        string           `json:"body,omitempty"`
	ReferenceID string           `json:"reference_id,omitempty"`
	Read        bool             `gorm:"default:false;index:idx_notification_user_read" json:"read"`
	CreatedAt   time.Time        `gorm:"index" json:"created_at"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}
