package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RewardCategory string

const (
	RewardCategoryGiftCard   RewardCategory = "gift_card"
	RewardCategoryMerch      RewardCategory = "merch"
	RewardCategoryPromotion  RewardCategory = "promotion"
	RewardCategoryExperience RewardCategory = "experience"
	RewardCategoryOther      RewardCategory = "other"
)

// Reward is a catalog item redeemable for points. A nil Stock means unlimited.
type Reward struct {
	ID             string         `gorm:"primaryKey;type:uuid" json:"id"`
	Title          string         `gorm:"not null" json:"title"`
	Slug           string         `gorm:"uniqueIndex;not null" json:"slug"`
	Description    string         `gorm:"type:text" json:"description"`
	Emoji          string         `gorm:"size:10" json:"emoji,omitempty"`
	ImageURL       string         `gorm:"type:text" json:"image_url,omitempty"`
	PointsRequired int64          `gorm:"not null;check:points_required >= 0" json:"points_required"`
	Category       RewardCategory `gorm:"type:varchar(32);not null" json:"category"`
	Available      bool           `gorm:"index;not null" json:"available"`
	Stock          *int           `json:"stock,omitempty"`

	Timestamps
}

func (r *Reward) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

func (r *Reward) InStock() bool {
	return r.Stock == nil || *r.Stock > 0
}

// RewardClaim records a completed redemption; one per user and reward.
type RewardClaim struct {
	ID            string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID        string    `gorm:"not null;uniqueIndex:idx_reward_claim_user" json:"user_id"`
	RewardID      string    `gorm:"not null;uniqueIndex:idx_reward_claim_user" json:"reward_id"`
	PointsSpent   int64     `gorm:"not null" json:"points_spent"`
	TransactionID string    `gorm:"not null" json:"transaction_id"`
	ClaimedAt     time.Time `gorm:"not null" json:"claimed_at"`
	Viewed        bool      `gorm:"default:false" json:"viewed"`

	Reward *Reward `gorm:"foreignKey:RewardID" json:"reward,omitempty"`
}

func (c *RewardClaim) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
