package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"roundabout/models"
)

type OpportunityService struct {
	DB     *gorm.DB
	clock  clockwork.Clock
	logger *zap.Logger
}

func NewOpportunityService(db *gorm.DB, clock clockwork.Clock, logger *zap.Logger) *OpportunityService {
	return &OpportunityService{DB: db, clock: clock, logger: logger.Named("opportunities")}
}

type OpportunityInput struct {
	Platform     models.Platform       `json:"platform"`
	Type         models.EngagementType `json:"engagement_type"`
	ContentURL   string                `json:"content_url"`
	ContentTitle string                `json:"content_title"`
	PointsReward int64                 `json:"points_reward"`
	ClosesAt     *time.Time            `json:"closes_at"`
	MaxClaims    int                   `json:"max_claims"`
	TTLSeconds   int64                 `json:"ttl_seconds"`
}

func (in OpportunityInput) validate(now time.Time) error {
	switch {
	case !in.Platform.Valid():
		return fmt.Errorf("%w: unknown platform %q", ErrInvalidInput, in.Platform)
	case !in.Type.Valid():
		return fmt.Errorf("%w: unknown engagement type %q", ErrInvalidInput, in.Type)
	case strings.TrimSpace(in.ContentURL) == "":
		return fmt.Errorf("%w: content_url is required", ErrInvalidInput)
	case in.PointsReward < 0:
		return fmt.Errorf("%w: points_reward must be non-negative", ErrInvalidInput)
	case in.MaxClaims < 0 || in.TTLSeconds < 0:
		return fmt.Errorf("%w: max_claims and ttl_seconds must be non-negative", ErrInvalidInput)
	case in.ClosesAt != nil && !in.ClosesAt.After(now):
		return fmt.Errorf("%w: closes_at must be in the future", ErrInvalidInput)
	}
	return nil
}

func (s *OpportunityService) Create(ctx context.Context, ownerID string, in OpportunityInput) (*models.Opportunity, error) {
	now := s.clock.Now().UTC()
	if err := in.validate(now); err != nil {
		return nil, err
	}
	opp := &models.Opportunity{
		OwnerID:      ownerID,
		Platform:     in.Platform,
		Type:         in.Type,
		ContentURL:   strings.TrimSpace(in.ContentURL),
		ContentTitle: strings.TrimSpace(in.ContentTitle),
		PointsReward: in.PointsReward,
		Open:         true,
		ClosesAt:     in.ClosesAt,
		MaxClaims:    in.MaxClaims,
		TTLSeconds:   in.TTLSeconds,
	}
	if err := s.DB.WithContext(ctx).Create(opp).Error; err != nil {
		return nil, fmt.Errorf("create opportunity: %w", err)
	}
	s.logger.Info("[OPPORTUNITY] created",
		zap.String("id", opp.ID),
		zap.String("owner_id", ownerID),
		zap.String("platform", string(opp.Platform)))
	return opp, nil
}

func (s *OpportunityService) Get(ctx context.Context, id string) (*models.Opportunity, error) {
	var opp models.Opportunity
	if err := s.DB.WithContext(ctx).First(&opp, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &opp, nil
}

type OpportunityFilter struct {
	Platform models.Platform
	Type     models.EngagementType
	// ExcludeOwner hides the viewer's own opportunities.
	ExcludeOwner string
	Limit        int
}

// ListOpen returns opportunities still accepting claims, newest first.
func (s *OpportunityService) ListOpen(ctx context.Context, f OpportunityFilter) ([]models.Opportunity, error) {
	now := s.clock.Now().UTC()
	q := s.DB.WithContext(ctx).
		Where("open = ?", true).
		Where("closes_at IS NULL OR closes_at > ?", now).
		Where("max_claims = 0 OR claim_count < max_claims")
	if f.Platform != "" {
		q = q.Where("platform = ?", f.Platform)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.ExcludeOwner != "" {
		q = q.Where("owner_id <> ?", f.ExcludeOwner)
	}
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var out []models.Opportunity
	err := q.Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// Close stops new submissions. Pending engagements are unaffected.
func (s *OpportunityService) Close(ctx context.Context, ownerID, id string) (*models.Opportunity, error) {
	opp, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if opp.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	if err := s.DB.WithContext(ctx).Model(opp).Update("open", false).Error; err != nil {
		return nil, fmt.Errorf("close opportunity: %w", err)
	}
	opp.Open = false
	return opp, nil
}
