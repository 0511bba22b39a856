package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundabout/models"
	"roundabout/services"
)

func TestClaimCompletedAchievement(t *testing.T) {
	t.Parallel()
	env, cleanup := setupTest(t)
	defer cleanup()
	ctx := context.Background()

	env.fund(t, "ivy", 275)
	completed := epoch
	require.NoError(t, env.db.Create(&models.UserAchievement{
		UserID:          "ivy",
		AchievementCode: "LIKES_1000",
		Progress:        1000,
		CompletedAt:     &completed,
	}).Error)

	posting, err := env.achievements.Claim(ctx, "ivy", "LIKES_1000")
	require.NoError(t, err)
	assert.Equal(t, int64(475), posting.Balance)
	assert.Equal(t, int64(200), posting.Transaction.Amount)
	assert.Equal(t, models.TransactionEarned, posting.Transaction.Type)
	assert.Equal(t, models.SourceAchievement, posting.Transaction.Source)

	assert.Len(t, env.ledgerEntries(t, "ivy"), 2)
	assert.Equal(t, int64(475), env.assertLedgerConsistent(t, "ivy"))

	_, err = env.achievements.Claim(ctx, "ivy", "LIKES_1000")
	require.ErrorIs(t, err, services.ErrAchievementNotClaimable)
	assert.Equal(t, int64(475), env.assertLedgerConsistent(t, "ivy"))
}

func TestClaimIncompleteAchievement(t *testing.T) {
	t.Parallel()
	env, cleanup := setupTest(t)
	defer cleanup()
	ctx := context.Background()

	_, err := env.achievements.Claim(ctx, "jon", "LIKES_100")
	assert.ErrorIs(t, err, services.ErrAchievementNotClaimable)

	require.NoError(t, env.db.Create(&models.UserAchievement{
		UserID: "jon", AchievementCode: "LIKES_100", Progress: 40,
	}).Error)
	_, err = env.achievements.Claim(ctx, "jon", "LIKES_100")
	assert.ErrorIs(t, err, services.ErrAchievementNotClaimable)

	_, err = env.achievements.Claim(ctx, "jon", "NOPE")
	assert.ErrorIs(t, err, services.ErrNotFound)
	assert.Empty(t, env.ledgerEntries(t, "jon"))
}

func TestVerificationCompletesAchievements(t *testing.T) {
	t.Parallel()
	env, cleanup := setupTest(t)
	defer cleanup()
	ctx := context.Background()

	opp := env.opportunity(t, "creator", models.EngagementLike, 10)
	e, err := env.engagements.Submit(ctx, "kim", services.SubmitInput{OpportunityID: opp.ID})
	require.NoError(t, err)
	_, err = env.engagements.Verify(ctx, e.ID, "mod")
	require.NoError(t, err)

	statuses, err := env.achievements.List(ctx, "kim")
	require.NoError(t, err)
	byCode := lo.KeyBy(statuses, func(s services.AchievementStatus) string { return s.Code })

	first := byCode["FIRST_ENGAGEMENT"]
	assert.True(t, first.Claimable)
	assert.NotNil(t, first.CompletedAt)
	assert.Equal(t, int64(1), byCode["LIKES_100"].Progress)
	assert.False(t, byCode["LIKES_100"].Claimable)

	notes, err := env.notifications.List(ctx, "kim", true, 10)
	require.NoError(t, err)
	kinds := lo.Map(notes, func(n models.Notification, _ int) models.NotificationKind { return n.Kind })
	assert.Contains(t, kinds, models.NotificationAchievement)
	assert.Contains(t, kinds, models.NotificationEngagementVerified)

	// Recomputing again completes nothing new.
	again, err := env.achievements.Recompute(ctx, "kim")
	require.NoError(t, err)
	assert.Empty(t, again)

	posting, err := env.achievements.Claim(ctx, "kim", "FIRST_ENGAGEMENT")
	require.NoError(t, err)
	assert.Equal(t, int64(20), posting.Balance)
}

func TestRecomputeKeepsCompletion(t *testing.T) {
	t.Parallel()
	env, cleanup := setupTest(t)
	defer cleanup()
	ctx := context.Background()

	completed := epoch.Add(-time.Hour)
	require.NoError(t, env.db.Create(&models.UserAchievement{
		UserID:          "max",
		AchievementCode: "LIKES_100",
		Progress:        100,
		CompletedAt:     &completed,
	}).Error)

	// a recompute that counts less than the stored progress
	opp := env.opportunity(t, "creator", models.EngagementLike, 10)
	e, err := env.engagements.Submit(ctx, "max", services.SubmitInput{OpportunityID: opp.ID})
	require.NoError(t, err)
	_, err = env.engagements.Verify(ctx, e.ID, "mod")
	require.NoError(t, err)

	var ua models.UserAchievement
	require.NoError(t, env.db.Where("user_id = ? AND achievement_code = ?", "max", "LIKES_100").First(&ua).Error)
	assert.Equal(t, int64(1), ua.Progress)
	require.NotNil(t, ua.CompletedAt)
	assert.True(t, completed.Equal(*ua.CompletedAt))

	again, err := env.achievements.Recompute(ctx, "max")
	require.NoError(t, err)
	assert.Empty(t, again)

	notes, err := env.notifications.List(ctx, "max", false, 10)
	require.NoError(t, err)
	unlocked := lo.Filter(notes, func(n models.Notification, _ int) bool {
		return n.Kind == models.NotificationAchievement && n.ReferenceID == "LIKES_100"
	})
	assert.Empty(t, unlocked)

	posting, err := env.achievements.Claim(ctx, "max", "LIKES_100")
	require.NoError(t, err)
	assert.Equal(t, models.SourceAchievement, posting.Transaction.Source)
}

func TestSeedIsIdempotent(t *testing.T) {
	t.Parallel()
	env, cleanup := setupTest(t)
	defer cleanup()
	ctx := context.Background()

	catalogue := append([]models.Achievement(nil), models.DefaultAchievements...)
	catalogue[0].PointsAwarded = 999
	require.NoError(t, env.achievements.Seed(ctx, catalogue))

	var count int64
	require.NoError(t, env.db.Model(&models.Achievement{}).Count(&count).Error)
	assert.Equal(t, int64(len(models.DefaultAchievements)), count)

	var first models.Achievement
	require.NoError(t, env.db.First(&first, "code = ?", catalogue[0].Code).Error)
	assert.Equal(t, int64(999), first.PointsAwarded)
}
