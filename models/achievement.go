package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AchievementMetric is the counter an achievement threshold is measured against.
type AchievementMetric string

const (
	MetricVerifiedLikes       AchievementMetric = "verified_likes"
	MetricVerifiedComments    AchievementMetric = "verified_comments"
	MetricVerifiedFollows     AchievementMetric = "verified_follows"
	MetricVerifiedEngagements AchievementMetric = "verified_engagements"
	MetricConnectedAccounts   AchievementMetric = "connected_accounts"
)

// Achievement: static catalogue entry (seeded at start-up)
type Achievement struct {
	Code          string            `gorm:"primaryKey" json:"code"` // e.g. "LIKES_1000"
	Title         string            `gorm:"not null" json:"title"`
	Description   string            `json:"description"`
	Emoji         string            `gorm:"size:10" json:"emoji,omitempty"`
	Metric        AchievementMetric `gorm:"type:varchar(32);not null" json:"metric"`
	Threshold     int64             `gorm:"not null" json:"threshold"`
	PointsAwarded int64             `gorm:"not null" json:"points_awarded"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

// UserAchievement tracks a user's progress towards one achievement.
// completed → claimed; claiming credits PointsAwarded exactly once.
type UserAchievement struct {
	ID              string     `gorm:"primaryKey;type:uuid" json:"id"`
	UserID          string     `gorm:"not null;uniqueIndex:idx_user_achievement" json:"user_id"`
	AchievementCode string     `gorm:"not null;uniqueIndex:idx_user_achievement" json:"achievement_code"`
	Progress        int64      `gorm:"default:0" json:"progress"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ClaimedAt       *time.Time `json:"claimed_at,omitempty"`

	Achievement *Achievement `gorm:"foreignKey:AchievementCode;references:Code" json:"achievement,omitempty"`
}

func (u *UserAchievement) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Achievements seeded on start-up.
var DefaultAchievements = []Achievement{
	{
		Code:          "FIRST_ENGAGEMENT",
		Title:         "First Steps",
		Description:   "Got your first engagement verified",
		Emoji:         "👣",
		Metric:        MetricVerifiedEngagements,
		Threshold:     1,
		PointsAwarded: 10,
	},
	{
		Code:          "LIKES_100",
		Title:         "100 Likes",
		Description:   "100 verified likes",
		Emoji:         "👍",
		Metric:        MetricVerifiedLikes,
		Threshold:     100,
		PointsAwarded: 50,
	},
	{
		Code:          "LIKES_1000",
		Title:         "1000 Likes",
		Description:   "1000 verified likes",
		Emoji:         "🔥",
		Metric:        MetricVerifiedLikes,
		Threshold:     1000,
		PointsAwarded: 200,
	},
	{
		Code:          "COMMENTS_50",
		Title:         "Conversationalist",
		Description:   "50 verified comments",
		Emoji:         "💬",
		Metric:        MetricVerifiedComments,
		Threshold:     50,
		PointsAwarded: 100,
	},
	{
		Code:          "FOLLOWS_250",
		Title:         "Networker",
		Description:   "250 verified follows",
		Emoji:         "🤝",
		Metric:        MetricVerifiedFollows,
		Threshold:     250,
		PointsAwarded: 150,
	},
	{
		Code:          "CONNECT_3",
		Title:         "Everywhere at Once",
		Description:   "Connected three social accounts",
		Emoji:         "🌐",
		Metric:        MetricConnectedAccounts,
		Threshold:     3,
		PointsAwarded: 75,
	},
}
