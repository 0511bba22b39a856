package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"roundabout/metrics"
	"roundabout/models"
	"roundabout/realtime"
)

type RewardService struct {
	DB            *gorm.DB
	ledger        *LedgerService
	notifications *NotificationService
	clock         clockwork.Clock
	publisher
}

func NewRewardService(db *gorm.DB, ledger *LedgerService, notifications *NotificationService, hub realtime.Hub, clock clockwork.Clock, logger *zap.Logger) *RewardService {
	logger = logger.Named("rewards")
	return &RewardService{
		DB:            db,
		ledger:        ledger,
		notifications: notifications,
		clock:         clock,
		publisher:     publisher{hub: hub, logger: logger},
	}
}

// --- Catalogue ---

type RewardInput struct {
	Title          string                `json:"title"`
	Description    string                `json:"description"`
	Emoji          string                `json:"emoji"`
	ImageURL       string                `json:"image_url"`
	PointsRequired int64                 `json:"points_required"`
	Category       models.RewardCategory `json:"category"`
	Available      *bool                 `json:"available"`
	Stock          *int                  `json:"stock"`
}

func validCategory(c models.RewardCategory) bool {
	switch c {
	case models.RewardCategoryGiftCard, models.RewardCategoryMerch, models.RewardCategoryPromotion,
		models.RewardCategoryExperience, models.RewardCategoryOther:
		return true
	}
	return false
}

// uniqueSlug returns slug.Make(title), suffixed until unused.
func uniqueSlug(tx *gorm.DB, model any, title string) (string, error) {
	base := slug.Make(title)
	if base == "" {
		base = uuid.NewString()[:8]
	}
	candidate := base
	for i := 2; ; i++ {
		var n int64
		if err := tx.Unscoped().Model(model).Where("slug = ?", candidate).Count(&n).Error; err != nil {
			return "", err
		}
		if n == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

func (s *RewardService) CreateReward(ctx context.Context, in RewardInput) (*models.Reward, error) {
	in.Title = strings.TrimSpace(in.Title)
	switch {
	case in.Title == "":
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	case in.PointsRequired < 0:
		return nil, fmt.Errorf("%w: points_required must be non-negative", ErrInvalidInput)
	case in.Stock != nil && *in.Stock < 0:
		return nil, fmt.Errorf("%w: stock must be non-negative", ErrInvalidInput)
	}
	if in.Category == "" {
		in.Category = models.RewardCategoryOther
	}
	if !validCategory(in.Category) {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, in.Category)
	}

	reward := &models.Reward{
		Title:          in.Title,
		Description:    in.Description,
		Emoji:          in.Emoji,
		ImageURL:       in.ImageURL,
		PointsRequired: in.PointsRequired,
		Category:       in.Category,
		Available:      in.Available == nil || *in.Available,
		Stock:          in.Stock,
	}
	db := s.DB.WithContext(ctx)
	sl, err := uniqueSlug(db, &models.Reward{}, in.Title)
	if err != nil {
		return nil, err
	}
	reward.Slug = sl
	if err := db.Create(reward).Error; err != nil {
		return nil, fmt.Errorf("create reward: %w", err)
	}
	s.logger.Info("[REWARD] created", zap.String("id", reward.ID), zap.String("slug", reward.Slug))
	return reward, nil
}

type RewardPatch struct {
	Title          *string                `json:"title"`
	Description    *string                `json:"description"`
	Emoji          *string                `json:"emoji"`
	ImageURL       *string                `json:"image_url"`
	PointsRequired *int64                 `json:"points_required"`
	Category       *models.RewardCategory `json:"category"`
	Available      *bool                  `json:"available"`
	Stock          *int                   `json:"stock"`
}

func (s *RewardService) UpdateReward(ctx context.Context, id string, p RewardPatch) (*models.Reward, error) {
	reward, err := s.GetReward(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if p.Title != nil && strings.TrimSpace(*p.Title) != "" {
		updates["title"] = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		updates["description"] = *p.Description
	}
	if p.Emoji != nil {
		updates["emoji"] = *p.Emoji
	}
	if p.ImageURL != nil {
		updates["image_url"] = *p.ImageURL
	}
	if p.PointsRequired != nil {
		if *p.PointsRequired < 0 {
			return nil, fmt.Errorf("%w: points_required must be non-negative", ErrInvalidInput)
		}
		updates["points_required"] = *p.PointsRequired
	}
	if p.Category != nil {
		if !validCategory(*p.Category) {
			return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, *p.Category)
		}
		updates["category"] = *p.Category
	}
	if p.Available != nil {
		updates["available"] = *p.Available
	}
	if p.Stock != nil {
		if *p.Stock < 0 {
			return nil, fmt.Errorf("%w: stock must be non-negative", ErrInvalidInput)
		}
		updates["stock"] = *p.Stock
	}
	if len(updates) == 0 {
		return reward, nil
	}

	if err := s.DB.WithContext(ctx).Model(&models.Reward{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update reward: %w", err)
	}
	return s.GetReward(ctx, id)
}

// DeleteReward soft-deletes; existing claims keep their history.
func (s *RewardService) DeleteReward(ctx context.Context, id string) error {
	res := s.DB.WithContext(ctx).Delete(&models.Reward{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RewardService) GetReward(ctx context.Context, idOrSlug string) (*models.Reward, error) {
	var r models.Reward
	q := s.DB.WithContext(ctx)
	if _, err := uuid.Parse(idOrSlug); err == nil {
		q = q.Where("id = ?", idOrSlug)
	} else {
		q = q.Where("slug = ?", idOrSlug)
	}
	if err := q.First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

// RewardView is a catalogue entry as one user sees it.
type RewardView struct {
	models.Reward
	Claimed    bool `json:"claimed"`
	Redeemable bool `json:"redeemable"`
}

func (s *RewardService) ListRewards(ctx context.Context, userID string, category models.RewardCategory) ([]RewardView, error) {
	db := s.DB.WithContext(ctx)
	q := db.Model(&models.Reward{})
	if category != "" {
		q = q.Where("category = ?", category)
	}
	var rewards []models.Reward
	if err := q.Order("points_required ASC, title ASC").Find(&rewards).Error; err != nil {
		return nil, err
	}

	var claimed []string
	if err := db.Model(&models.RewardClaim{}).Where("user_id = ?", userID).Pluck("reward_id", &claimed).Error; err != nil {
		return nil, err
	}
	claimedSet := make(map[string]struct{}, len(claimed))
	for _, id := range claimed {
		claimedSet[id] = struct{}{}
	}

	balance, err := balanceOf(db, userID)
	if err != nil {
		return nil, err
	}

	out := make([]RewardView, 0, len(rewards))
	for _, r := range rewards {
		_, has := claimedSet[r.ID]
		out = append(out, RewardView{
			Reward:     r,
			Claimed:    has,
			Redeemable: !has && r.Available && r.InStock() && balance >= r.PointsRequired,
		})
	}
	return out, nil
}

// --- Redemption ---

type Redemption struct {
	Claim   models.RewardClaim `json:"claim"`
	Posting *Posting           `json:"posting"`
}

// Redeem debits the reward's cost and records the claim in one transaction.
// The profile row lock serializes redemptions per user; the stock decrement is a
// conditional write so the last unit goes to exactly one user.
func (s *RewardService) Redeem(ctx context.Context, userID, rewardID string) (*Redemption, error) {
	now := s.clock.Now().UTC()
	var (
		out  *Redemption
		note *models.Notification
	)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockProfile(tx, userID); err != nil {
			return err
		}

		var reward models.Reward
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&reward, "id = ?", rewardID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if !reward.Available || !reward.InStock() {
			return ErrRewardUnavailable
		}

		var already int64
		if err := tx.Model(&models.RewardClaim{}).
			Where("user_id = ? AND reward_id = ?", userID, reward.ID).
			Count(&already).Error; err != nil {
			return err
		}
		if already > 0 {
			return fmt.Errorf("%w: already claimed", ErrRewardUnavailable)
		}

		balance, err := balanceOf(tx, userID)
		if err != nil {
			return err
		}
		if balance < reward.PointsRequired {
			return fmt.Errorf("%w: balance %d, need %d", ErrInsufficientPoints, balance, reward.PointsRequired)
		}

		if reward.Stock != nil {
			res := tx.Model(&models.Reward{}).
				Where("id = ? AND stock > 0", reward.ID).
				UpdateColumn("stock", gorm.Expr("stock - 1"))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrRewardUnavailable
			}
		}

		claim := models.RewardClaim{
			ID:          uuid.NewString(),
			UserID:      userID,
			RewardID:    reward.ID,
			PointsSpent: reward.PointsRequired,
			ClaimedAt:   now,
		}
		posting, err := s.ledger.appendTx(tx, now, Entry{
			UserID:      userID,
			Amount:      -reward.PointsRequired,
			Type:        models.TransactionSpent,
			Source:      models.SourceReward,
			SourceID:    claim.ID,
			Description: fmt.Sprintf("Redeemed %s", reward.Title),
		})
		if err != nil {
			return err
		}
		claim.TransactionID = posting.Transaction.ID
		if err := tx.Create(&claim).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: already claimed", ErrRewardUnavailable)
			}
			return fmt.Errorf("create reward claim: %w", err)
		}

		note = &models.Notification{
			UserID:      userID,
			Kind:        models.NotificationRewardRedeemed,
			Title:       fmt.Sprintf("%s %s redeemed", reward.Emoji, reward.Title),
			Body:        fmt.Sprintf("%d points spent", reward.PointsRequired),
			ReferenceID: claim.ID,
		}
		if err := s.notifications.createTx(tx, now, note); err != nil {
			return err
		}

		claim.Reward = &reward
		out = &Redemption{Claim: claim, Posting: posting}
		return nil
	})
	if err != nil {
		metrics.Redemptions.WithLabelValues(redemptionOutcome(err)).Inc()
		s.logger.Info("[REWARD] redemption refused",
			zap.String("user_id", userID),
			zap.String("reward_id", rewardID),
			zap.Error(err))
		return nil, err
	}

	metrics.Redemptions.WithLabelValues("ok").Inc()
	s.ledger.afterCommit(ctx, out.Posting)
	s.notifications.afterCommit(ctx, note)
	s.logger.Info("[REWARD] 🎁 redeemed",
		zap.String("user_id", userID),
		zap.String("reward_id", rewardID),
		zap.Int64("balance", out.Posting.Balance))
	return out, nil
}

func redemptionOutcome(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientPoints):
		return "insufficient_points"
	case errors.Is(err, ErrRewardUnavailable):
		return "unavailable"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func (s *RewardService) ListClaims(ctx context.Context, userID string) ([]models.RewardClaim, error) {
	var claims []models.RewardClaim
	err := s.DB.WithContext(ctx).
		Preload("Reward", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Where("user_id = ?", userID).
		Order("claimed_at DESC").
		Find(&claims).Error
	return claims, err
}

// MarkClaimsViewed clears the "new" badge on the user's claims.
func (s *RewardService) MarkClaimsViewed(ctx context.Context, userID string) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&models.RewardClaim{}).
		Where("user_id = ? AND viewed = ?", userID, false).
		Update("viewed", true)
	return res.RowsAffected, res.Error
}
