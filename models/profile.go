package models

import (
	"time"

	"gorm.io/gorm"
)

// Profile is the local record of an identity-provider user.
// PointsBalance and LifetimeEarned are projections over the points ledger and are
// only written together with a ledger append or by reconciliation.
type Profile struct {
	UserID      string  `gorm:"primaryKey" json:"user_id"`
	Email       string  `json:"email,omitempty"`
	Username    string  `gorm:"index" json:"username"`
	DisplayName string  `json:"display_name,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
	Bio         *string `json:"bio,omitempty"`

	PointsBalance  int64 `gorm:"default:0" json:"points_balance"`
	LifetimeEarned int64 `gorm:"default:0" json:"lifetime_earned"`
	Level          int   `gorm:"default:1" json:"level"`
	// LedgerVersion increases with every projection refresh and orders points events.
	LedgerVersion int64 `gorm:"default:0" json:"ledger_version"`

	LastSeen      *time.Time `json:"last_seen,omitempty"`
	LastLevelUpAt *time.Time `json:"last_level_up_at,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
