package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"roundabout/models"
	"roundabout/realtime"
)

const maxMessageLength = 4000

type MessagingService struct {
	DB            *gorm.DB
	notifications *NotificationService
	clock         clockwork.Clock
	publisher
}

func NewMessagingService(db *gorm.DB, notifications *NotificationService, hub realtime.Hub, clock clockwork.Clock, logger *zap.Logger) *MessagingService {
	logger = logger.Named("messaging")
	return &MessagingService{
		DB:            db,
		notifications: notifications,
		clock:         clock,
		publisher:     publisher{hub: hub, logger: logger},
	}
}

func directKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return ids[0] + ":" + ids[1]
}

// StartDirect returns the direct conversation between a and b, creating it once.
func (s *MessagingService) StartDirect(ctx context.Context, a, b string) (*models.Conversation, error) {
	if a == "" || b == "" || a == b {
		return nil, fmt.Errorf("%w: a direct conversation needs two different users", ErrInvalidInput)
	}
	key := directKey(a, b)
	db := s.DB.WithContext(ctx)

	var conv models.Conversation
	err := db.Preload("Members").Where("direct_key = ?", key).First(&conv).Error
	if err == nil {
		return &conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var peer int64
	if err := db.Model(&models.Profile{}).Where("user_id = ?", b).Count(&peer).Error; err != nil {
		return nil, err
	}
	if peer == 0 {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, b)
	}

	now := s.clock.Now().UTC()
	conv = models.Conversation{Kind: models.ConversationDirect, DirectKey: &key}
	err = db.Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&conv)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost the race; the other creator added the members.
			return nil
		}
		for _, uid := range []string{a, b} {
			if err := addMemberTx(tx, conv.ID, uid, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create direct conversation: %w", err)
	}

	var out models.Conversation
	if err := db.Preload("Members").Where("direct_key = ?", key).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func addMemberTx(tx *gorm.DB, conversationID, userID string, now time.Time) error {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.ConversationMember{
		ConversationID: conversationID,
		UserID:         userID,
		JoinedAt:       now,
		LastReadAt:     &now,
	}).Error
}

func removeMemberTx(tx *gorm.DB, conversationID, userID string) error {
	return tx.Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Delete(&models.ConversationMember{}).Error
}

func (s *MessagingService) membership(db *gorm.DB, conversationID, userID string) (*models.ConversationMember, error) {
	var m models.ConversationMember
	err := db.Where("conversation_id = ? AND user_id = ?", conversationID, userID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		var exists int64
		if cerr := db.Model(&models.Conversation{}).Where("id = ?", conversationID).Count(&exists).Error; cerr != nil {
			return nil, cerr
		}
		if exists == 0 {
			return nil, ErrNotFound
		}
		return nil, ErrForbidden
	}
	return &m, err
}

// Send appends a message and fans it out to every other member.
func (s *MessagingService) Send(ctx context.Context, conversationID, senderID, body string) (*models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: message body is empty", ErrInvalidInput)
	}
	if utf8.RuneCountInString(body) > maxMessageLength {
		return nil, fmt.Errorf("%w: message longer than %d characters", ErrInvalidInput, maxMessageLength)
	}

	db := s.DB.WithContext(ctx)
	if _, err := s.membership(db, conversationID, senderID); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	msg := &models.Message{ConversationID: conversationID, SenderID: senderID, Body: body, SentAt: now}
	var (
		recipients []string
		notes      []*models.Notification
	)
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		if err := tx.Model(&models.Conversation{}).Where("id = ?", conversationID).
			Update("last_message_at", now).Error; err != nil {
			return err
		}
		// The sender has read everything up to their own message.
		if err := tx.Model(&models.ConversationMember{}).
			Where("conversation_id = ? AND user_id = ?", conversationID, senderID).
			Update("last_read_at", now).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.ConversationMember{}).
			Where("conversation_id = ? AND user_id <> ?", conversationID, senderID).
			Pluck("user_id", &recipients).Error; err != nil {
			return err
		}
		for _, uid := range recipients {
			note := &models.Notification{
				UserID:      uid,
				Kind:        models.NotificationMessage,
				Title:       "New message",
				Body:        preview(body),
				ReferenceID: conversationID,
			}
			if err := s.notifications.createTx(tx, now, note); err != nil {
				return err
			}
			notes = append(notes, note)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, uid := range recipients {
		s.publish(ctx, realtime.ChannelMessages, realtime.KindInsert, uid, msg)
	}
	s.notifications.afterCommit(ctx, notes...)
	return msg, nil
}

func preview(body string) string {
	const n = 80
	if utf8.RuneCountInString(body) <= n {
		return body
	}
	return string([]rune(body)[:n]) + "…"
}

// Messages pages backwards from before (exclusive), returned oldest first.
func (s *MessagingService) Messages(ctx context.Context, conversationID, userID string, before *time.Time, limit int) ([]models.Message, error) {
	db := s.DB.WithContext(ctx)
	if _, err := s.membership(db, conversationID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := db.Where("conversation_id = ?", conversationID)
	if before != nil {
		q = q.Where("sent_at < ?", before.UTC())
	}
	var out []models.Message
	if err := q.Order("sent_at DESC, id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return lo.Reverse(out), nil
}

// MarkRead moves the user's read marker to now.
func (s *MessagingService) MarkRead(ctx context.Context, conversationID, userID string) error {
	db := s.DB.WithContext(ctx)
	if _, err := s.membership(db, conversationID, userID); err != nil {
		return err
	}
	if err := db.Model(&models.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update("last_read_at", s.clock.Now().UTC()).Error; err != nil {
		return err
	}
	unread, err := s.Unread(ctx, userID)
	if err != nil {
		return err
	}
	s.publish(ctx, realtime.ChannelMessages, realtime.KindUpdate, userID, map[string]any{
		"conversation_id": conversationID,
		"unread_count":    unread,
	})
	return nil
}

func unreadQuery(db *gorm.DB, userID string) *gorm.DB {
	return db.Model(&models.Message{}).
		Joins("JOIN conversation_members cm ON cm.conversation_id = messages.conversation_id AND cm.user_id = ?", userID).
		Where("messages.sender_id <> ?", userID).
		Where("cm.last_read_at IS NULL OR messages.sent_at > cm.last_read_at")
}

// Unread counts messages from others sent after the user's read marker.
func (s *MessagingService) Unread(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := unreadQuery(s.DB.WithContext(ctx), userID).Count(&n).Error
	return n, err
}

type ConversationSummary struct {
	models.Conversation
	Unread      int64           `json:"unread"`
	LastMessage *models.Message `json:"last_message,omitempty"`
}

// ListConversations returns the user's conversations, most recently active first.
func (s *MessagingService) ListConversations(ctx context.Context, userID string) ([]ConversationSummary, error) {
	db := s.DB.WithContext(ctx)
	var convs []models.Conversation
	if err := db.Preload("Members").
		Joins("JOIN conversation_members me ON me.conversation_id = conversations.id AND me.user_id = ?", userID).
		Order("conversations.last_message_at DESC, conversations.created_at DESC").
		Find(&convs).Error; err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return []ConversationSummary{}, nil
	}

	var unread []struct {
		ConversationID string
		Count          int64
	}
	if err := unreadQuery(db, userID).
		Select("messages.conversation_id AS conversation_id, COUNT(*) AS count").
		Group("messages.conversation_id").
		Scan(&unread).Error; err != nil {
		return nil, err
	}
	unreadBy := make(map[string]int64, len(unread))
	for _, u := range unread {
		unreadBy[u.ConversationID] = u.Count
	}

	out := make([]ConversationSummary, 0, len(convs))
	for _, c := range convs {
		sum := ConversationSummary{Conversation: c, Unread: unreadBy[c.ID]}
		if c.LastMessageAt != nil {
			var last models.Message
			if err := db.Where("conversation_id = ?", c.ID).Order("sent_at DESC, id DESC").First(&last).Error; err == nil {
				sum.LastMessage = &last
			}
		}
		out = append(out, sum)
	}
	return out, nil
}
