package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"roundabout/models"
)

type ProfileService struct {
	DB    *gorm.DB
	clock clockwork.Clock
}

func NewProfileService(db *gorm.DB, clock clockwork.Clock) *ProfileService {
	return &ProfileService{DB: db, clock: clock}
}

// Ensure creates the profile on first sight and bumps last_seen.
func (s *ProfileService) Ensure(ctx context.Context, userID, email string) (*models.Profile, error) {
	db := s.DB.WithContext(ctx)
	username := userID
	if local, _, ok := strings.Cut(email, "@"); ok && local != "" {
		username = local
	}
	now := s.clock.Now().UTC()
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Profile{
		UserID:   userID,
		Email:    email,
		Username: username,
		Level:    1,
		LastSeen: &now,
	}).Error; err != nil {
		return nil, fmt.Errorf("ensure profile: %w", err)
	}
	if err := db.Model(&models.Profile{}).Where("user_id = ?", userID).Update("last_seen", now).Error; err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

func (s *ProfileService) Get(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

type ProfilePatch struct {
	Username    *string `json:"username"`
	DisplayName *string `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
	Bio         *string `json:"bio"`
}

// Update changes the editable fields. Points fields are never written here.
func (s *ProfileService) Update(ctx context.Context, userID string, p ProfilePatch) (*models.Profile, error) {
	updates := map[string]any{}
	if p.Username != nil {
		u := strings.TrimSpace(*p.Username)
		if u == "" {
			return nil, fmt.Errorf("%w: username cannot be empty", ErrInvalidInput)
		}
		updates["username"] = u
	}
	if p.DisplayName != nil {
		updates["display_name"] = strings.TrimSpace(*p.DisplayName)
	}
	if p.AvatarURL != nil {
		updates["avatar_url"] = *p.AvatarURL
	}
	if p.Bio != nil {
		updates["bio"] = *p.Bio
	}
	if len(updates) > 0 {
		res := s.DB.WithContext(ctx).Model(&models.Profile{}).Where("user_id = ?", userID).Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}
	return s.Get(ctx, userID)
}

type ProfileSummary struct {
	UserID      string  `json:"user_id"`
	Username    string  `json:"username"`
	DisplayName string  `json:"display_name,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
	Level       int     `json:"level"`
}

// Search matches username or display name, case-insensitively.
func (s *ProfileService) Search(ctx context.Context, query string, limit int) ([]ProfileSummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q := s.DB.WithContext(ctx).Model(&models.Profile{}).Limit(limit)
	if term := strings.TrimSpace(query); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(username) LIKE ? OR LOWER(display_name) LIKE ?", like, like)
	}
	var profiles []models.Profile
	if err := q.Order("username ASC").Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("search profiles: %w", err)
	}
	out := make([]ProfileSummary, len(profiles))
	for i, p := range profiles {
		out[i] = ProfileSummary{
			UserID:      p.UserID,
			Username:    p.Username,
			DisplayName: p.DisplayName,
			AvatarURL:   p.AvatarURL,
			Level:       p.Level,
		}
	}
	return out, nil
}
