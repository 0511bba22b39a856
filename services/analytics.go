package services

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"roundabout/models"
)

const dayLayout = "2006-01-02"

type AnalyticsService struct {
	DB    *gorm.DB
	clock clockwork.Clock
}

func NewAnalyticsService(db *gorm.DB, clock clockwork.Clock) *AnalyticsService {
	return &AnalyticsService{DB: db, clock: clock}
}

type PlatformStat struct {
	Platform models.Platform `json:"platform"`
	Label    string          `json:"label"`
	Total    int64           `json:"total"`
	Pending  int64           `json:"pending"`
	Verified int64           `json:"verified"`
	Rejected int64           `json:"rejected"`
	Expired  int64           `json:"expired"`
	Points   int64           `json:"points_earned"`
}

type DayPoints struct {
	Day    string `json:"day"`
	Earned int64  `json:"earned"`
	Spent  int64  `json:"spent"`
}

type Overview struct {
	Platforms      []PlatformStat `json:"platforms"`
	PointsPerDay   []DayPoints    `json:"points_per_day"`
	Redemptions    int64          `json:"redemptions"`
	Balance        int64          `json:"balance"`
	TotalFollowers int64          `json:"total_followers"`
}

var brandLabels = map[models.Platform]string{
	models.PlatformTwitter:  "Twitter/X",
	models.PlatformYouTube:  "YouTube",
	models.PlatformLinkedIn: "LinkedIn",
	models.PlatformTikTok:   "TikTok",
}

// PlatformLabel is the display name of a platform.
func PlatformLabel(p models.Platform) string {
	if label, ok := brandLabels[p]; ok {
		return label
	}
	return cases.Title(language.English).String(string(p))
}

// Overview gathers the user's dashboard figures for the last days days.
func (s *AnalyticsService) Overview(ctx context.Context, userID string, days int) (*Overview, error) {
	if days <= 0 || days > 365 {
		days = 30
	}
	now := s.clock.Now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(days - 1))

	out := &Overview{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		stats, err := s.platformStats(gctx, userID)
		out.Platforms = stats
		return err
	})
	g.Go(func() error {
		series, err := s.pointsPerDay(gctx, userID, start, days)
		out.PointsPerDay = series
		return err
	})
	g.Go(func() error {
		return s.DB.WithContext(gctx).Model(&models.RewardClaim{}).
			Where("user_id = ?", userID).
			Count(&out.Redemptions).Error
	})
	g.Go(func() error {
		balance, err := balanceOf(s.DB.WithContext(gctx), userID)
		out.Balance = balance
		return err
	})
	g.Go(func() error {
		return s.DB.WithContext(gctx).Model(&models.SocialAccount{}).
			Where("user_id = ?", userID).
			Select("COALESCE(SUM(follower_count), 0)").
			Scan(&out.TotalFollowers).Error
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *AnalyticsService) platformStats(ctx context.Context, userID string) ([]PlatformStat, error) {
	var rows []struct {
		Platform models.Platform
		Status   models.EngagementStatus
		Count    int64
		Points   int64
	}
	if err := s.DB.WithContext(ctx).Model(&models.Engagement{}).
		Select("platform, status, COUNT(*) AS count, COALESCE(SUM(points_value), 0) AS points").
		Where("user_id = ?", userID).
		Group("platform, status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	byPlatform := lo.GroupBy(rows, func(r struct {
		Platform models.Platform
		Status   models.EngagementStatus
		Count    int64
		Points   int64
	}) models.Platform {
		return r.Platform
	})

	stats := make([]PlatformStat, 0, len(models.Platforms))
	for _, p := range models.Platforms {
		st := PlatformStat{Platform: p, Label: PlatformLabel(p)}
		for _, r := range byPlatform[p] {
			st.Total += r.Count
			switch r.Status {
			case models.EngagementPending:
				st.Pending = r.Count
			case models.EngagementVerified:
				st.Verified = r.Count
				st.Points = r.Points
			case models.EngagementRejected:
				st.Rejected = r.Count
			case models.EngagementExpired:
				st.Expired = r.Count
			}
		}
		stats = append(stats, st)
	}
	return stats, nil
}

// pointsPerDay buckets ledger entries by UTC day, filling days with no activity.
func (s *AnalyticsService) pointsPerDay(ctx context.Context, userID string, start time.Time, days int) ([]DayPoints, error) {
	var txs []models.PointsTransaction
	if err := s.DB.WithContext(ctx).
		Where("user_id = ? AND created_at >= ?", userID, start).
		Find(&txs).Error; err != nil {
		return nil, err
	}

	byDay := lo.GroupBy(txs, func(t models.PointsTransaction) string {
		return t.CreatedAt.UTC().Format(dayLayout)
	})

	series := make([]DayPoints, 0, days)
	for i := range days {
		day := start.AddDate(0, 0, i).Format(dayLayout)
		dp := DayPoints{Day: day}
		for _, t := range byDay[day] {
			if t.Amount >= 0 {
				dp.Earned += t.Amount
			} else {
				dp.Spent -= t.Amount
			}
		}
		series = append(series, dp)
	}
	return series, nil
}
