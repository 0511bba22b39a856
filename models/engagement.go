package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Platform is a social network an engagement or account targets.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformTwitter   Platform = "twitter"
	PlatformYouTube   Platform = "youtube"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformTikTok    Platform = "tiktok"
	PlatformFacebook  Platform = "facebook"
)

var Platforms = []Platform{
	PlatformInstagram,
	PlatformTwitter,
	PlatformYouTube,
	PlatformLinkedIn,
	PlatformTikTok,
	PlatformFacebook,
}

func (p Platform) Valid() bool {
	for _, known := range Platforms {
		if p == known {
			return true
		}
	}
	return false
}

// EngagementType is the action a user claims to have performed.
type EngagementType string

const (
	EngagementLike      EngagementType = "like"
	EngagementComment   EngagementType = "comment"
	EngagementFollow    EngagementType = "follow"
	EngagementShare     EngagementType = "share"
	EngagementSubscribe EngagementType = "subscribe"
)

func (t EngagementType) Valid() bool {
	switch t {
	case EngagementLike, EngagementComment, EngagementFollow, EngagementShare, EngagementSubscribe:
		return true
	}
	return false
}

type EngagementStatus string

const (
	EngagementPending  EngagementStatus = "pending"
	EngagementVerified EngagementStatus = "verified"
	EngagementRejected EngagementStatus = "rejected"
	EngagementExpired  EngagementStatus = "expired"
)

// Terminal reports whether no further transition is allowed out of s.
func (s EngagementStatus) Terminal() bool {
	return s != EngagementPending
}

// Engagement is a user's claim of an action taken on another creator's content.
// PointsValue is copied from the opportunity at submission and never recomputed.
type Engagement struct {
	ID            string           `gorm:"primaryKey;type:uuid" json:"id"`
	UserID        string           `gorm:"not null;uniqueIndex:idx_engagement_user_opportunity" json:"user_id"`
	OpportunityID string           `gorm:"not null;uniqueIndex:idx_engagement_user_opportunity" json:"opportunity_id"`
	Platform      Platform         `gorm:"type:varchar(16);not null" json:"platform"`
	Type          EngagementType   `gorm:"type:varchar(16);not null" json:"engagement_type"`
	ContentURL    string           `gorm:"type:text;not null" json:"content_url"`
	ContentTitle  string           `json:"content_title,omitempty"`
	PointsValue   int64            `gorm:"not null;check:points_value >= 0" json:"points_value"`
	Status        EngagementStatus `gorm:"type:varchar(16);index;not null;default:'pending'" json:"status"`
	ProofURL      string           `gorm:"type:text" json:"proof_url,omitempty"`

	SubmittedAt     time.Time  `gorm:"not null" json:"submitted_at"`
	VerifiedAt      *time.Time `json:"verified_at,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ExpiresAt       time.Time  `gorm:"index;not null" json:"expires_at"`
	ModeratorID     string     `json:"moderator_id,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`

	Timestamps
}

func (e *Engagement) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// Overdue reports whether a pending engagement has passed its expiry at now.
func (e *Engagement) Overdue(now time.Time) bool {
	return e.Status == EngagementPending && now.After(e.ExpiresAt)
}
