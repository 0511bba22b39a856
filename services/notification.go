package services

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"roundabout/models"
	"roundabout/realtime"
)

type NotificationService struct {
	DB    *gorm.DB
	clock clockwork.Clock
	publisher
}

func NewNotificationService(db *gorm.DB, hub realtime.Hub, clock clockwork.Clock, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		DB:        db,
		clock:     clock,
		publisher: publisher{hub: hub, logger: logger.Named("notifications")},
	}
}

// createTx inserts n inside tx; publish it with afterCommit.
func (s *NotificationService) createTx(tx *gorm.DB, now time.Time, n *models.Notification) error {
	n.CreatedAt = now
	if err := tx.Create(n).Error; err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (s *NotificationService) afterCommit(ctx context.Context, notes ...*models.Notification) {
	for _, n := range notes {
		if n == nil {
			continue
		}
		s.publish(ctx, realtime.ChannelNotifications, realtime.KindInsert, n.UserID, n)
	}
}

// Notify creates and publishes a standalone notification.
func (s *NotificationService) Notify(ctx context.Context, n *models.Notification) error {
	if err := s.createTx(s.DB.WithContext(ctx), s.clock.Now().UTC(), n); err != nil {
		return err
	}
	s.afterCommit(ctx, n)
	return nil
}

func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q := s.DB.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("read = ?", false)
	}
	var out []models.Notification
	err := q.Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&n).Error
	return n, err
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	res := s.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	s.publishUnread(ctx, userID)
	return nil
}

// MarkAllRead returns how many notifications changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true)
	if res.Error != nil {
		return 0, res.Error
	}
	s.publishUnread(ctx, userID)
	return res.RowsAffected, nil
}

func (s *NotificationService) publishUnread(ctx context.Context, userID string) {
	unread, err := s.UnreadCount(ctx, userID)
	if err != nil {
		s.logger.Warn("[NOTIFY] unread count failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	s.publish(ctx, realtime.ChannelNotifications, realtime.KindUpdate, userID, map[string]int64{"unread_count": unread})
}
