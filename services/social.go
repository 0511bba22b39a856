package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"roundabout/models"
	"roundabout/realtime"
)

// SocialProvider is the slice of the functions API the social service needs.
type SocialProvider interface {
	ConnectSocialAccount(ctx context.Context, token string, platform models.Platform) (string, error)
	FetchSocialProfile(ctx context.Context, platform models.Platform, externalID, username string) (*PlatformProfile, error)
}

type SocialService struct {
	DB           *gorm.DB
	provider     SocialProvider
	achievements *AchievementService
	clock        clockwork.Clock
	publisher
}

func NewSocialService(db *gorm.DB, provider SocialProvider, achievements *AchievementService, hub realtime.Hub, clock clockwork.Clock, logger *zap.Logger) *SocialService {
	logger = logger.Named("social")
	return &SocialService{
		DB:           db,
		provider:     provider,
		achievements: achievements,
		clock:        clock,
		publisher:    publisher{hub: hub, logger: logger},
	}
}

// Connect starts the OAuth flow and returns the provider's authorization URL.
func (s *SocialService) Connect(ctx context.Context, token string, platform models.Platform) (string, error) {
	if !platform.Valid() {
		return "", fmt.Errorf("%w: unknown platform %q", ErrInvalidInput, platform)
	}
	url, err := s.provider.ConnectSocialAccount(ctx, token, platform)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrConnectionFailure, platform, err)
	}
	return url, nil
}

type LinkInput struct {
	Platform       models.Platform `json:"platform"`
	ExternalID     string          `json:"external_id"`
	Username       string          `json:"username"`
	FollowerCount  int64           `json:"follower_count"`
	FollowingCount int64           `json:"following_count"`
	Verified       bool            `json:"verified"`
}

// Link stores the account once the provider callback has completed. Linking a
// platform again replaces the previous account.
func (s *SocialService) Link(ctx context.Context, userID string, in LinkInput) (*models.SocialAccount, error) {
	in.Username = strings.TrimPrefix(strings.TrimSpace(in.Username), "@")
	if !in.Platform.Valid() {
		return nil, fmt.Errorf("%w: unknown platform %q", ErrInvalidInput, in.Platform)
	}
	if in.Username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}

	now := s.clock.Now().UTC()
	acct := &models.SocialAccount{
		UserID:         userID,
		Platform:       in.Platform,
		ExternalID:     in.ExternalID,
		Username:       in.Username,
		FollowerCount:  in.FollowerCount,
		FollowingCount: in.FollowingCount,
		Verified:       in.Verified,
		State:          models.ConnectionConnected,
		LastSyncAt:     &now,
	}
	db := s.DB.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "platform"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"external_id", "username", "follower_count", "following_count",
			"verified", "state", "last_sync_at", "last_sync_error", "updated_at",
		}),
	}).Create(acct).Error; err != nil {
		return nil, fmt.Errorf("link %s account: %w", in.Platform, err)
	}

	var stored models.SocialAccount
	if err := db.Where("user_id = ? AND platform = ?", userID, in.Platform).First(&stored).Error; err != nil {
		return nil, err
	}

	s.publish(ctx, realtime.ChannelSocial, realtime.KindUpdate, userID, &stored)
	s.logger.Info("[SOCIAL] 🔗 account linked",
		zap.String("user_id", userID),
		zap.String("platform", string(in.Platform)),
		zap.String("username", stored.Username))

	if _, err := s.achievements.Recompute(ctx, userID); err != nil {
		s.logger.Warn("[SOCIAL] achievement recompute failed", zap.String("user_id", userID), zap.Error(err))
	}
	return &stored, nil
}

func (s *SocialService) List(ctx context.Context, userID string) ([]models.SocialAccount, error) {
	var out []models.SocialAccount
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Order("platform ASC").Find(&out).Error
	return out, err
}

func (s *SocialService) Disconnect(ctx context.Context, userID string, platform models.Platform) error {
	res := s.DB.WithContext(ctx).
		Where("user_id = ? AND platform = ?", userID, platform).
		Delete(&models.SocialAccount{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	s.publish(ctx, realtime.ChannelSocial, realtime.KindDelete, userID, map[string]string{"platform": string(platform)})
	s.logger.Info("[SOCIAL] account disconnected", zap.String("user_id", userID), zap.String("platform", string(platform)))

	if _, err := s.achievements.Recompute(ctx, userID); err != nil {
		s.logger.Warn("[SOCIAL] achievement recompute failed", zap.String("user_id", userID), zap.Error(err))
	}
	return nil
}

// Sync refreshes one account from its platform. A failed lookup marks the
// account as errored and is returned.
func (s *SocialService) Sync(ctx context.Context, acct *models.SocialAccount) error {
	now := s.clock.Now().UTC()
	profile, fetchErr := s.provider.FetchSocialProfile(ctx, acct.Platform, acct.ExternalID, acct.Username)

	updates := map[string]any{"last_sync_at": now}
	if fetchErr != nil {
		updates["state"] = models.ConnectionError
		updates["last_sync_error"] = fetchErr.Error()
	} else {
		updates["state"] = models.ConnectionConnected
		updates["last_sync_error"] = ""
		updates["follower_count"] = profile.FollowerCount
		updates["following_count"] = profile.FollowingCount
		updates["verified"] = profile.Verified
		if profile.Username != "" {
			updates["username"] = profile.Username
		}
	}

	if err := s.DB.WithContext(ctx).Model(&models.SocialAccount{}).Where("id = ?", acct.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("save sync of %s: %w", acct.ID, err)
	}
	if err := s.DB.WithContext(ctx).First(acct, "id = ?", acct.ID).Error; err != nil {
		return err
	}
	s.publish(ctx, realtime.ChannelSocial, realtime.KindUpdate, acct.UserID, acct)

	if fetchErr != nil {
		return fmt.Errorf("%w: %s/%s: %v", ErrConnectionFailure, acct.Platform, acct.Username, fetchErr)
	}
	return nil
}

type SyncReport struct {
	Synced int
	Failed int
}

// SyncStale refreshes accounts not synced within maxAge, a few at a time.
func (s *SocialService) SyncStale(ctx context.Context, maxAge time.Duration, batch int) (SyncReport, error) {
	if batch <= 0 {
		batch = 100
	}
	cutoff := s.clock.Now().UTC().Add(-maxAge)

	var accounts []models.SocialAccount
	if err := s.DB.WithContext(ctx).
		Where("state <> ?", models.ConnectionDisconnected).
		Where("last_sync_at IS NULL OR last_sync_at < ?", cutoff).
		Order("last_sync_at ASC").
		Limit(batch).
		Find(&accounts).Error; err != nil {
		return SyncReport{}, fmt.Errorf("find stale accounts: %w", err)
	}

	results := make([]error, len(accounts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range accounts {
		g.Go(func() error {
			results[i] = s.Sync(gctx, &accounts[i])
			return nil
		})
	}
	_ = g.Wait()

	var report SyncReport
	for i, err := range results {
		if err != nil {
			report.Failed++
			if !errors.Is(err, ErrConnectionFailure) {
				s.logger.Warn("[SOCIAL] sync failed", zap.String("account_id", accounts[i].ID), zap.Error(err))
			}
			continue
		}
		report.Synced++
	}
	return report, nil
}
