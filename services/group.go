package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"roundabout/models"
)

// GroupService manages community groups. Each group owns one group
// conversation whose members mirror the group's members.
type GroupService struct {
	DB     *gorm.DB
	clock  clockwork.Clock
	logger *zap.Logger
}

func NewGroupService(db *gorm.DB, clock clockwork.Clock, logger *zap.Logger) *GroupService {
	return &GroupService{DB: db, clock: clock, logger: logger.Named("groups")}
}

type GroupInput struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Platform    *models.Platform `json:"platform"`
}

func (s *GroupService) Create(ctx context.Context, ownerID string, in GroupInput) (*models.CommunityGroup, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.Platform != nil && !in.Platform.Valid() {
		return nil, fmt.Errorf("%w: unknown platform %q", ErrInvalidInput, *in.Platform)
	}

	now := s.clock.Now().UTC()
	group := &models.CommunityGroup{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: strings.TrimSpace(in.Description),
		Platform:    in.Platform,
		OwnerID:     ownerID,
		MemberCount: 1,
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sl, err := uniqueSlug(tx, &models.CommunityGroup{}, in.Name)
		if err != nil {
			return err
		}
		group.Slug = sl

		conv := models.Conversation{Kind: models.ConversationGroup, Title: in.Name, GroupID: &group.ID}
		if err := tx.Create(&conv).Error; err != nil {
			return fmt.Errorf("create group conversation: %w", err)
		}
		group.ConversationID = conv.ID

		if err := tx.Create(group).Error; err != nil {
			return fmt.Errorf("create group: %w", err)
		}
		if err := tx.Create(&models.GroupMembership{
			GroupID: group.ID, UserID: ownerID, Role: models.GroupRoleOwner, JoinedAt: now,
		}).Error; err != nil {
			return err
		}
		return addMemberTx(tx, conv.ID, ownerID, now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("[GROUP] created", zap.String("id", group.ID), zap.String("slug", group.Slug))
	return group, nil
}

func (s *GroupService) Get(ctx context.Context, idOrSlug string) (*models.CommunityGroup, error) {
	var g models.CommunityGroup
	q := s.DB.WithContext(ctx)
	if _, err := uuid.Parse(idOrSlug); err == nil {
		q = q.Where("id = ?", idOrSlug)
	} else {
		q = q.Where("slug = ?", idOrSlug)
	}
	if err := q.First(&g).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

type GroupFilter struct {
	Platform models.Platform
	Query    string
	MemberID string
	Limit    int
}

func (s *GroupService) List(ctx context.Context, f GroupFilter) ([]models.CommunityGroup, error) {
	q := s.DB.WithContext(ctx).Model(&models.CommunityGroup{})
	if f.Platform != "" {
		q = q.Where("platform = ?", f.Platform)
	}
	if term := strings.TrimSpace(f.Query); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}
	if f.MemberID != "" {
		q = q.Joins("JOIN group_memberships gm ON gm.group_id = community_groups.id AND gm.user_id = ?", f.MemberID)
	}
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var out []models.CommunityGroup
	err := q.Order("community_groups.member_count DESC, community_groups.name ASC").Limit(limit).Find(&out).Error
	return out, err
}

// Join is idempotent: joining twice leaves one membership.
func (s *GroupService) Join(ctx context.Context, groupID, userID string) (*models.GroupMembership, error) {
	group, err := s.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	m := models.GroupMembership{GroupID: group.ID, UserID: userID, Role: models.GroupRoleMember, JoinedAt: now}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&m)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return tx.Where("group_id = ? AND user_id = ?", group.ID, userID).First(&m).Error
		}
		if err := tx.Model(&models.CommunityGroup{}).Where("id = ?", group.ID).
			UpdateColumn("member_count", gorm.Expr("member_count + 1")).Error; err != nil {
			return err
		}
		return addMemberTx(tx, group.ConversationID, userID, now)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Leave removes a member. The owner cannot leave their own group.
func (s *GroupService) Leave(ctx context.Context, groupID, userID string) error {
	group, err := s.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if group.OwnerID == userID {
		return fmt.Errorf("%w: the owner cannot leave the group", ErrForbidden)
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("group_id = ? AND user_id = ?", group.ID, userID).Delete(&models.GroupMembership{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Model(&models.CommunityGroup{}).Where("id = ? AND member_count > 0", group.ID).
			UpdateColumn("member_count", gorm.Expr("member_count - 1")).Error; err != nil {
			return err
		}
		return removeMemberTx(tx, group.ConversationID, userID)
	})
}

func (s *GroupService) Members(ctx context.Context, groupID string) ([]models.GroupMembership, error) {
	group, err := s.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	var out []models.GroupMembership
	err = s.DB.WithContext(ctx).Where("group_id = ?", group.ID).Order("joined_at ASC").Find(&out).Error
	return out, err
}
