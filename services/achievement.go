package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"roundabout/models"
	"roundabout/realtime"
)

type AchievementService struct {
	DB            *gorm.DB
	ledger        *LedgerService
	notifications *NotificationService
	clock         clockwork.Clock
	publisher
}

func NewAchievementService(db *gorm.DB, ledger *LedgerService, notifications *NotificationService, hub realtime.Hub, clock clockwork.Clock, logger *zap.Logger) *AchievementService {
	logger = logger.Named("achievements")
	return &AchievementService{
		DB:            db,
		ledger:        ledger,
		notifications: notifications,
		clock:         clock,
		publisher:     publisher{hub: hub, logger: logger},
	}
}

// Seed upserts the catalogue.
func (s *AchievementService) Seed(ctx context.Context, catalogue []models.Achievement) error {
	if len(catalogue) == 0 {
		return nil
	}
	rows := append([]models.Achievement(nil), catalogue...)
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "description", "emoji", "metric", "threshold", "points_awarded"}),
	}).Create(&rows).Error
}

// metricsFor counts everything an achievement can be measured against.
func (s *AchievementService) metricsFor(tx *gorm.DB, userID string) (map[models.AchievementMetric]int64, error) {
	var rows []struct {
		Type  models.EngagementType
		Count int64
	}
	if err := tx.Model(&models.Engagement{}).
		Select("type, COUNT(*) AS count").
		Where("user_id = ? AND status = ?", userID, models.EngagementVerified).
		Group("type").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count verified engagements: %w", err)
	}

	out := make(map[models.AchievementMetric]int64)
	for _, r := range rows {
		out[models.MetricVerifiedEngagements] += r.Count
		switch r.Type {
		case models.EngagementLike:
			out[models.MetricVerifiedLikes] = r.Count
		case models.EngagementComment:
			out[models.MetricVerifiedComments] = r.Count
		case models.EngagementFollow:
			out[models.MetricVerifiedFollows] = r.Count
		}
	}

	var connected int64
	if err := tx.Model(&models.SocialAccount{}).
		Where("user_id = ? AND state = ?", userID, models.ConnectionConnected).
		Count(&connected).Error; err != nil {
		return nil, fmt.Errorf("count connected accounts: %w", err)
	}
	out[models.MetricConnectedAccounts] = connected
	return out, nil
}

// Recompute refreshes progress on every achievement and returns the ones that
// completed on this call. It holds the profile lock so recomputes for one user
// run one at a time, and completion is never cleared once recorded.
func (s *AchievementService) Recompute(ctx context.Context, userID string) ([]models.UserAchievement, error) {
	now := s.clock.Now().UTC()
	var (
		completed []models.UserAchievement
		notes     []*models.Notification
	)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		completed, notes = nil, nil

		if _, err := lockProfile(tx, userID); err != nil {
			return err
		}

		var catalogue []models.Achievement
		if err := tx.Find(&catalogue).Error; err != nil {
			return err
		}
		counts, err := s.metricsFor(tx, userID)
		if err != nil {
			return err
		}

		var existing []models.UserAchievement
		if err := tx.Where("user_id = ?", userID).Find(&existing).Error; err != nil {
			return err
		}
		byCode := make(map[string]models.UserAchievement, len(existing))
		for _, ua := range existing {
			byCode[ua.AchievementCode] = ua
		}

		for _, a := range catalogue {
			progress := counts[a.Metric]
			ua, ok := byCode[a.Code]
			if !ok {
				ua = models.UserAchievement{UserID: userID, AchievementCode: a.Code}
			}
			if ok && ua.Progress == progress && (ua.CompletedAt != nil || progress < a.Threshold) {
				continue
			}

			ua.Progress = progress
			justCompleted := ua.CompletedAt == nil && progress >= a.Threshold
			if justCompleted {
				ua.CompletedAt = &now
			}

			if ok {
				updates := map[string]any{"progress": ua.Progress}
				if justCompleted {
					updates["completed_at"] = gorm.Expr("COALESCE(completed_at, ?)", now)
				}
				if err := tx.Model(&models.UserAchievement{}).Where("id = ?", ua.ID).
					Updates(updates).Error; err != nil {
					return err
				}
			} else if err := tx.Create(&ua).Error; err != nil {
				return err
			}

			if justCompleted {
				ua.Achievement = &a
				completed = append(completed, ua)
				note := &models.Notification{
					UserID:      userID,
					Kind:        models.NotificationAchievement,
					Title:       fmt.Sprintf("%s %s unlocked", a.Emoji, a.Title),
					Body:        fmt.Sprintf("Claim it for %d points", a.PointsAwarded),
					ReferenceID: a.Code,
				}
				if err := s.notifications.createTx(tx, now, note); err != nil {
					return err
				}
				notes = append(notes, note)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifications.afterCommit(ctx, notes...)
	for _, ua := range completed {
		s.logger.Info("[ACHIEVEMENT] 🎖️ completed", zap.String("user_id", userID), zap.String("code", ua.AchievementCode))
	}
	return completed, nil
}

type AchievementStatus struct {
	models.Achievement
	Progress    int64      `json:"progress"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	Claimable   bool       `json:"claimable"`
}

// List returns the whole catalogue with the user's progress.
func (s *AchievementService) List(ctx context.Context, userID string) ([]AchievementStatus, error) {
	db := s.DB.WithContext(ctx)
	var catalogue []models.Achievement
	if err := db.Order("threshold ASC, code ASC").Find(&catalogue).Error; err != nil {
		return nil, err
	}
	var mine []models.UserAchievement
	if err := db.Where("user_id = ?", userID).Find(&mine).Error; err != nil {
		return nil, err
	}
	byCode := make(map[string]models.UserAchievement, len(mine))
	for _, ua := range mine {
		byCode[ua.AchievementCode] = ua
	}

	out := make([]AchievementStatus, 0, len(catalogue))
	for _, a := range catalogue {
		st := AchievementStatus{Achievement: a}
		if ua, ok := byCode[a.Code]; ok {
			st.Progress = ua.Progress
			st.CompletedAt = ua.CompletedAt
			st.ClaimedAt = ua.ClaimedAt
			st.Claimable = ua.CompletedAt != nil && ua.ClaimedAt == nil
		}
		out = append(out, st)
	}
	return out, nil
}

// Claim moves a completed achievement to claimed and credits its points once.
func (s *AchievementService) Claim(ctx context.Context, userID, code string) (*Posting, error) {
	now := s.clock.Now().UTC()
	var posting *Posting

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockProfile(tx, userID); err != nil {
			return err
		}

		var a models.Achievement
		if err := tx.First(&a, "code = ?", code).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var ua models.UserAchievement
		if err := tx.Where("user_id = ? AND achievement_code = ?", userID, code).First(&ua).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAchievementNotClaimable
			}
			return err
		}

		res := tx.Model(&models.UserAchievement{}).
			Where("id = ? AND completed_at IS NOT NULL AND claimed_at IS NULL", ua.ID).
			Update("claimed_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAchievementNotClaimable
		}

		var err error
		posting, err = s.ledger.appendTx(tx, now, Entry{
			UserID:      userID,
			Amount:      a.PointsAwarded,
			Type:        models.TransactionEarned,
			Source:      models.SourceAchievement,
			SourceID:    ua.ID,
			Description: fmt.Sprintf("Achievement: %s", a.Title),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.ledger.afterCommit(ctx, posting)
	s.logger.Info("[ACHIEVEMENT] claimed",
		zap.String("user_id", userID),
		zap.String("code", code),
		zap.Int64("balance", posting.Balance))
	return posting, nil
}
