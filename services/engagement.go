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
	"gorm.io/gorm/clause"

	"roundabout/metrics"
	"roundabout/models"
	"roundabout/realtime"
)

// EngagementService owns the engagement lifecycle:
//
//	pending → verified | rejected | expired
//
// Every transition is a conditional write on status = pending, so of two racing
// actors exactly one succeeds and the other gets ErrInvalidTransition.
type EngagementService struct {
	DB            *gorm.DB
	ledger        *LedgerService
	achievements  *AchievementService
	notifications *NotificationService
	clock         clockwork.Clock
	publisher
}

func NewEngagementService(
	db *gorm.DB,
	ledger *LedgerService,
	achievements *AchievementService,
	notifications *NotificationService,
	hub realtime.Hub,
	clock clockwork.Clock,
	logger *zap.Logger,
) *EngagementService {
	logger = logger.Named("engagements")
	return &EngagementService{
		DB:            db,
		ledger:        ledger,
		achievements:  achievements,
		notifications: notifications,
		clock:         clock,
		publisher:     publisher{hub: hub, logger: logger},
	}
}

type SubmitInput struct {
	OpportunityID string `json:"opportunity_id"`
	ProofURL      string `json:"proof_url"`
}

// Submit records a pending claim against an open opportunity. The point value is
// copied from the opportunity now and never recomputed.
func (s *EngagementService) Submit(ctx context.Context, userID string, in SubmitInput) (*models.Engagement, error) {
	if strings.TrimSpace(in.OpportunityID) == "" {
		return nil, fmt.Errorf("%w: opportunity_id is required", ErrInvalidInput)
	}
	now := s.clock.Now().UTC()

	var e *models.Engagement
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var opp models.Opportunity
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&opp, "id = ?", in.OpportunityID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if opp.OwnerID == userID {
			return fmt.Errorf("%w: cannot engage with your own opportunity", ErrForbidden)
		}
		if !opp.AcceptsClaims(now) {
			return ErrOpportunityClosed
		}

		var dup int64
		if err := tx.Unscoped().Model(&models.Engagement{}).
			Where("user_id = ? AND opportunity_id = ?", userID, opp.ID).
			Count(&dup).Error; err != nil {
			return err
		}
		if dup > 0 {
			return ErrDuplicateEngagement
		}

		e = &models.Engagement{
			UserID:        userID,
			OpportunityID: opp.ID,
			Platform:      opp.Platform,
			Type:          opp.Type,
			ContentURL:    opp.ContentURL,
			ContentTitle:  opp.ContentTitle,
			PointsValue:   opp.PointsReward,
			Status:        models.EngagementPending,
			ProofURL:      strings.TrimSpace(in.ProofURL),
			SubmittedAt:   now,
			ExpiresAt:     now.Add(opp.EngagementTTL()),
		}
		if err := tx.Create(e).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateEngagement
			}
			return fmt.Errorf("create engagement: %w", err)
		}
		return tx.Model(&models.Opportunity{}).
			Where("id = ?", opp.ID).
			UpdateColumn("claim_count", gorm.Expr("claim_count + 1")).Error
	})
	if err != nil {
		return nil, err
	}

	metrics.EngagementTransitions.WithLabelValues(string(models.EngagementPending)).Inc()
	s.publish(ctx, realtime.ChannelEngagements, realtime.KindInsert, userID, e)
	s.logger.Info("[ENGAGEMENT] submitted",
		zap.String("id", e.ID),
		zap.String("user_id", userID),
		zap.Int64("points", e.PointsValue))
	return e, nil
}

func loadEngagement(tx *gorm.DB, id string) (*models.Engagement, error) {
	var e models.Engagement
	if err := tx.First(&e, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// transitionTx moves e out of pending. Zero affected rows means someone else
// already resolved it.
func transitionTx(tx *gorm.DB, e *models.Engagement, to models.EngagementStatus, now time.Time, updates map[string]any) error {
	updates["status"] = to
	updates["resolved_at"] = now
	res := tx.Model(&models.Engagement{}).
		Where("id = ? AND status = ?", e.ID, models.EngagementPending).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("transition engagement %s: %w", e.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	e.Status = to
	e.ResolvedAt = &now
	return nil
}

var errOverdue = errors.New("engagement overdue")

type transitionResult struct {
	engagement   *models.Engagement
	posting      *Posting
	notification *models.Notification
}

// resolve runs one moderator transition. An overdue engagement is expired
// instead and the caller gets ErrInvalidTransition.
func (s *EngagementService) resolve(
	ctx context.Context,
	id string,
	to models.EngagementStatus,
	apply func(tx *gorm.DB, e *models.Engagement, now time.Time, res *transitionResult) error,
) (*transitionResult, error) {
	now := s.clock.Now().UTC()
	res := &transitionResult{}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e, err := loadEngagement(tx, id)
		if err != nil {
			return err
		}
		if e.Status.Terminal() {
			return ErrInvalidTransition
		}
		if e.Overdue(now) {
			return errOverdue
		}
		res.engagement = e
		return apply(tx, e, now, res)
	})

	switch {
	case errors.Is(err, errOverdue):
		if _, expErr := s.expire(ctx, id); expErr != nil && !errors.Is(expErr, ErrInvalidTransition) {
			s.logger.Warn("[ENGAGEMENT] expire on resolve failed", zap.String("id", id), zap.Error(expErr))
		}
		metrics.InvalidTransitions.Inc()
		return nil, fmt.Errorf("%w: engagement %s expired before it was %s", ErrInvalidTransition, id, to)
	case errors.Is(err, ErrInvalidTransition):
		metrics.InvalidTransitions.Inc()
		s.logger.Info("[ENGAGEMENT] ❌ rejected transition",
			zap.String("id", id),
			zap.String("to", string(to)))
		return nil, err
	case err != nil:
		return nil, err
	}

	metrics.EngagementTransitions.WithLabelValues(string(to)).Inc()
	s.ledger.afterCommit(ctx, res.posting)
	s.notifications.afterCommit(ctx, res.notification)
	s.publish(ctx, realtime.ChannelEngagements, realtime.KindUpdate, res.engagement.UserID, res.engagement)
	return res, nil
}

// Verify credits the engagement's point value exactly once.
func (s *EngagementService) Verify(ctx context.Context, id, moderatorID string) (*models.Engagement, error) {
	res, err := s.resolve(ctx, id, models.EngagementVerified,
		func(tx *gorm.DB, e *models.Engagement, now time.Time, res *transitionResult) error {
			if err := transitionTx(tx, e, models.EngagementVerified, now, map[string]any{
				"verified_at":  now,
				"moderator_id": moderatorID,
			}); err != nil {
				return err
			}
			e.VerifiedAt = &now
			e.ModeratorID = moderatorID

			posting, err := s.ledger.appendTx(tx, now, Entry{
				UserID:      e.UserID,
				Amount:      e.PointsValue,
				Type:        models.TransactionEarned,
				Source:      models.SourceEngagement,
				SourceID:    e.ID,
				Description: fmt.Sprintf("Verified %s %s", e.Platform, e.Type),
			})
			if err != nil {
				return err
			}
			res.posting = posting

			res.notification = &models.Notification{
				UserID:      e.UserID,
				Kind:        models.NotificationEngagementVerified,
				Title:       "Engagement verified",
				Body:        fmt.Sprintf("You earned %d points", e.PointsValue),
				ReferenceID: e.ID,
			}
			return s.notifications.createTx(tx, now, res.notification)
		})
	if err != nil {
		return nil, err
	}

	e := res.engagement
	s.logger.Info("[ENGAGEMENT] ✅ verified",
		zap.String("id", e.ID),
		zap.String("user_id", e.UserID),
		zap.Int64("points", e.PointsValue),
		zap.Int64("balance", res.posting.Balance))

	if _, err := s.achievements.Recompute(ctx, e.UserID); err != nil {
		s.logger.Warn("[ENGAGEMENT] achievement recompute failed", zap.String("user_id", e.UserID), zap.Error(err))
	}
	return e, nil
}

// Reject closes the engagement without a ledger entry.
func (s *EngagementService) Reject(ctx context.Context, id, moderatorID, reason string) (*models.Engagement, error) {
	reason = strings.TrimSpace(reason)
	res, err := s.resolve(ctx, id, models.EngagementRejected,
		func(tx *gorm.DB, e *models.Engagement, now time.Time, res *transitionResult) error {
			if err := transitionTx(tx, e, models.EngagementRejected, now, map[string]any{
				"moderator_id":     moderatorID,
				"rejection_reason": reason,
			}); err != nil {
				return err
			}
			e.ModeratorID = moderatorID
			e.RejectionReason = reason

			body := "Your engagement was not verified"
			if reason != "" {
				body = body + ": " + reason
			}
			res.notification = &models.Notification{
				UserID:      e.UserID,
				Kind:        models.NotificationEngagementRejected,
				Title:       "Engagement rejected",
				Body:        body,
				ReferenceID: e.ID,
			}
			return s.notifications.createTx(tx, now, res.notification)
		})
	if err != nil {
		return nil, err
	}
	s.logger.Info("[ENGAGEMENT] rejected", zap.String("id", id), zap.String("moderator_id", moderatorID))
	return res.engagement, nil
}

// expire lapses one pending engagement whose expiry has passed.
func (s *EngagementService) expire(ctx context.Context, id string) (*models.Engagement, error) {
	now := s.clock.Now().UTC()
	var (
		e    *models.Engagement
		note *models.Notification
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		e, err = loadEngagement(tx, id)
		if err != nil {
			return err
		}
		if !e.Overdue(now) {
			return ErrInvalidTransition
		}
		if err := transitionTx(tx, e, models.EngagementExpired, now, map[string]any{}); err != nil {
			return err
		}
		note = &models.Notification{
			UserID:      e.UserID,
			Kind:        models.NotificationEngagementExpired,
			Title:       "Engagement expired",
			Body:        "It was not verified in time",
			ReferenceID: e.ID,
		}
		return s.notifications.createTx(tx, now, note)
	})
	if err != nil {
		return nil, err
	}

	metrics.EngagementTransitions.WithLabelValues(string(models.EngagementExpired)).Inc()
	s.notifications.afterCommit(ctx, note)
	s.publish(ctx, realtime.ChannelEngagements, realtime.KindUpdate, e.UserID, e)
	return e, nil
}

// ExpireDue sweeps overdue pending engagements and reports how many it expired.
func (s *EngagementService) ExpireDue(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = 500
	}
	var ids []string
	if err := s.DB.WithContext(ctx).Model(&models.Engagement{}).
		Where("status = ? AND expires_at < ?", models.EngagementPending, s.clock.Now().UTC()).
		Order("expires_at ASC").
		Limit(batch).
		Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("find overdue engagements: %w", err)
	}

	expired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		if _, err := s.expire(ctx, id); err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				continue
			}
			s.logger.Warn("[ENGAGEMENT] expire failed", zap.String("id", id), zap.Error(err))
			continue
		}
		expired++
	}
	return expired, nil
}

// Get returns the engagement, lapsing it first if it is overdue.
func (s *EngagementService) Get(ctx context.Context, id string) (*models.Engagement, error) {
	e, err := loadEngagement(s.DB.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if !e.Overdue(s.clock.Now().UTC()) {
		return e, nil
	}
	expired, err := s.expire(ctx, id)
	switch {
	case err == nil:
		return expired, nil
	case errors.Is(err, ErrInvalidTransition):
		// Someone resolved it in between; read the winner.
		return loadEngagement(s.DB.WithContext(ctx), id)
	default:
		return nil, err
	}
}

type EngagementFilter struct {
	Status   models.EngagementStatus
	Platform models.Platform
	Limit    int
}

// List returns a user's engagements newest first, lapsing overdue ones on the way.
func (s *EngagementService) List(ctx context.Context, userID string, f EngagementFilter) ([]models.Engagement, error) {
	if err := s.expireOverdueFor(ctx, userID); err != nil {
		return nil, err
	}

	q := s.DB.WithContext(ctx).Where("user_id = ?", userID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Platform != "" {
		q = q.Where("platform = ?", f.Platform)
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []models.Engagement
	err := q.Order("submitted_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// Queue lists pending engagements for moderators, oldest first.
func (s *EngagementService) Queue(ctx context.Context, limit int) ([]models.Engagement, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []models.Engagement
	err := s.DB.WithContext(ctx).
		Where("status = ? AND expires_at >= ?", models.EngagementPending, s.clock.Now().UTC()).
		Order("submitted_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (s *EngagementService) expireOverdueFor(ctx context.Context, userID string) error {
	var ids []string
	if err := s.DB.WithContext(ctx).Model(&models.Engagement{}).
		Where("user_id = ? AND status = ? AND expires_at < ?", userID, models.EngagementPending, s.clock.Now().UTC()).
		Pluck("id", &ids).Error; err != nil {
		return fmt.Errorf("find overdue engagements: %w", err)
	}
	for _, id := range ids {
		if _, err := s.expire(ctx, id); err != nil && !errors.Is(err, ErrInvalidTransition) {
			return err
		}
	}
	return nil
}
