package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"roundabout/models"
	"roundabout/realtime"
	"roundabout/services"
)

var epoch = time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	db            *gorm.DB
	clock         *clockwork.FakeClock
	hub           *realtime.MemoryHub
	profiles      *services.ProfileService
	notifications *services.NotificationService
	ledger        *services.LedgerService
	achievements  *services.AchievementService
	opportunities *services.OpportunityService
	engagements   *services.EngagementService
	rewards       *services.RewardService
	social        *services.SocialService
	messaging     *services.MessagingService
	groups        *services.GroupService
	analytics     *services.AnalyticsService
	provider      *fakeProvider
}

func setupTest(t *testing.T) (*testEnv, func()) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))

	logger := zap.NewNop()
	clock := clockwork.NewFakeClockAt(epoch)
	hub := realtime.NewMemoryHub(logger)
	provider := &fakeProvider{profiles: map[string]*services.PlatformProfile{}}

	env := &testEnv{db: db, clock: clock, hub: hub, provider: provider}
	env.profiles = services.NewProfileService(db, clock)
	env.notifications = services.NewNotificationService(db, hub, clock, logger)
	env.ledger = services.NewLedgerService(db, hub, clock, logger)
	env.achievements = services.NewAchievementService(db, env.ledger, env.notifications, hub, clock, logger)
	env.opportunities = services.NewOpportunityService(db, clock, logger)
	env.engagements = services.NewEngagementService(db, env.ledger, env.achievements, env.notifications, hub, clock, logger)
	env.rewards = services.NewRewardService(db, env.ledger, env.notifications, hub, clock, logger)
	env.social = services.NewSocialService(db, provider, env.achievements, hub, clock, logger)
	env.messaging = services.NewMessagingService(db, env.notifications, hub, clock, logger)
	env.groups = services.NewGroupService(db, clock, logger)
	env.analytics = services.NewAnalyticsService(db, clock)

	require.NoError(t, env.achievements.Seed(context.Background(), models.DefaultAchievements))

	cleanup := func() {
		_ = hub.Close()
		_ = sqlDB.Close()
	}
	return env, cleanup
}

// profile creates a user the way the session layer would on first sign-in.
func (env *testEnv) profile(t *testing.T, userID string) *models.Profile {
	t.Helper()
	p, err := env.profiles.Ensure(context.Background(), userID, userID+"@example.com")
	require.NoError(t, err)
	return p
}

// fund gives userID a starting balance through the ledger.
func (env *testEnv) fund(t *testing.T, userID string, amount int64) {
	t.Helper()
	_, err := env.ledger.GrantBonus(context.Background(), userID, amount, "starting balance", "")
	require.NoError(t, err)
}

func (env *testEnv) opportunity(t *testing.T, ownerID string, typ models.EngagementType, points int64) *models.Opportunity {
	t.Helper()
	opp, err := env.opportunities.Create(context.Background(), ownerID, services.OpportunityInput{
		Platform:     models.PlatformInstagram,
		Type:         typ,
		ContentURL:   "https://instagram.example/p/abc",
		ContentTitle: "Launch post",
		PointsReward: points,
	})
	require.NoError(t, err)
	return opp
}

func (env *testEnv) ledgerEntries(t *testing.T, userID string) []models.PointsTransaction {
	t.Helper()
	var txs []models.PointsTransaction
	require.NoError(t, env.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&txs).Error)
	return txs
}

// assertLedgerConsistent checks the cached balance against the ledger sum.
func (env *testEnv) assertLedgerConsistent(t *testing.T, userID string) int64 {
	t.Helper()
	var sum int64
	for _, tx := range env.ledgerEntries(t, userID) {
		sum += tx.Amount
	}
	summary, err := env.ledger.Summary(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, sum, summary.Balance)
	require.True(t, summary.InSync, "cached balance %d, ledger %d", summary.CachedBalance, summary.Balance)
	return sum
}

type fakeProvider struct {
	connectErr error
	profiles   map[string]*services.PlatformProfile
}

func (f *fakeProvider) ConnectSocialAccount(_ context.Context, _ string, platform models.Platform) (string, error) {
	if f.connectErr != nil {
		return "", f.connectErr
	}
	return "https://oauth.example/" + string(platform), nil
}

func (f *fakeProvider) FetchSocialProfile(_ context.Context, _ models.Platform, _, username string) (*services.PlatformProfile, error) {
	p, ok := f.profiles[username]
	if !ok {
		return nil, services.ErrNotFound
	}
	return p, nil
}

func nextEvent(t *testing.T, sub *realtime.Subscription) realtime.Event {
	t.Helper()
	select {
	case e, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return realtime.Event{}
}
