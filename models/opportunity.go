package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultEngagementTTL bounds how long a submitted engagement may stay pending.
const DefaultEngagementTTL = 72 * time.Hour

// Opportunity is an open engagement task offered by a creator.
type Opportunity struct {
	ID           string         `gorm:"primaryKey;type:uuid" json:"id"`
	OwnerID      string         `gorm:"index;not null" json:"owner_id"`
	Platform     Platform       `gorm:"type:varchar(16);index;not null" json:"platform"`
	Type         EngagementType `gorm:"type:varchar(16);not null" json:"engagement_type"`
	ContentURL   string         `gorm:"type:text;not null" json:"content_url"`
	ContentTitle string         `json:"content_title,omitempty"`
	PointsReward int64          `gorm:"not null" json:"points_reward"`
	Open         bool           `gorm:"index;not null" json:"open"`
	ClosesAt     *time.Time     `json:"closes_at,omitempty"`
	MaxClaims    int            `gorm:"default:0" json:"max_claims"` // 0 = unlimited
	ClaimCount   int            `gorm:"default:0" json:"claim_count"`
	TTLSeconds   int64          `gorm:"column:ttl_seconds;default:0" json:"ttl_seconds"`

	Timestamps
}

func (o *Opportunity) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

// AcceptsClaims reports whether a new engagement may be submitted at now.
func (o *Opportunity) AcceptsClaims(now time.Time) bool {
	if !o.Open {
		return false
	}
	if o.ClosesAt != nil && !now.Before(*o.ClosesAt) {
		return false
	}
	if o.MaxClaims > 0 && o.ClaimCount >= o.MaxClaims {
		return false
	}
	return true
}

func (o *Opportunity) EngagementTTL() time.Duration {
	if o.TTLSeconds <= 0 {
		return DefaultEngagementTTL
	}
	return time.Duration(o.TTLSeconds) * time.Second
}
