package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"roundabout/handlers"
	"roundabout/models"
	"roundabout/realtime"
	"roundabout/services"
)

const secret = "handler-secret"

type testServer struct {
	app    *fiber.App
	deps   handlers.Deps
	clock  *clockwork.FakeClock
	tokens map[string]string
}

func setupTest(t *testing.T) (*testServer, func()) {
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
	clock := clockwork.NewFakeClockAt(time.Date(2026, time.April, 1, 9, 0, 0, 0, time.UTC))
	hub := realtime.NewMemoryHub(logger)
	functions := services.NewFunctionsClient("http://127.0.0.1:1", "", time.Second, logger)

	profiles := services.NewProfileService(db, clock)
	notifications := services.NewNotificationService(db, hub, clock, logger)
	ledger := services.NewLedgerService(db, hub, clock, logger)
	achievements := services.NewAchievementService(db, ledger, notifications, hub, clock, logger)
	require.NoError(t, achievements.Seed(context.Background(), models.DefaultAchievements))

	deps := handlers.Deps{
		Sessions:      services.NewSessionManager(secret, "", profiles, realtime.NewRegistry(hub), clock, logger),
		Profiles:      profiles,
		Opportunities: services.NewOpportunityService(db, clock, logger),
		Engagements:   services.NewEngagementService(db, ledger, achievements, notifications, hub, clock, logger),
		Ledger:        ledger,
		Rewards:       services.NewRewardService(db, ledger, notifications, hub, clock, logger),
		Achievements:  achievements,
		Social:        services.NewSocialService(db, functions, achievements, hub, clock, logger),
		Messaging:     services.NewMessagingService(db, notifications, hub, clock, logger),
		Groups:        services.NewGroupService(db, clock, logger),
		Notifications: notifications,
		Analytics:     services.NewAnalyticsService(db, clock),
		Subscriptions: functions,
		Logger:        logger,
	}

	app := fiber.New()
	handlers.Register(app, deps)

	srv := &testServer{app: app, deps: deps, clock: clock, tokens: map[string]string{}}
	for user, role := range map[string]string{"creator": "", "fan": "", "mod": services.RoleModerator, "root": services.RoleAdmin} {
		claims := services.Claims{
			Email:   user + "@example.com",
			Role:    "authenticated",
			AppRole: role,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   user,
				ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		srv.tokens[user] = token
	}

	cleanup := func() {
		_ = app.Shutdown()
		_ = hub.Close()
		_ = sqlDB.Close()
	}
	return srv, cleanup
}

// do sends a request as user (anonymous when empty) and decodes the JSON reply into out.
func (s *testServer) do(t *testing.T, user, method, path string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+s.tokens[user])
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestRequiresSession(t *testing.T) {
	t.Parallel()
	srv, cleanup := setupTest(t)
	defer cleanup()

	var body map[string]string
	assert.Equal(t, http.StatusUnauthorized, srv.do(t, "", http.MethodGet, "/points", nil, &body))
	assert.Equal(t, "authentication required", body["error"])

	srv.tokens["forged"] = "not-a-token"
	assert.Equal(t, http.StatusUnauthorized, srv.do(t, "forged", http.MethodGet, "/me", nil, nil))

	var me struct {
		Profile models.Profile `json:"profile"`
	}
	assert.Equal(t, http.StatusOK, srv.do(t, "fan", http.MethodGet, "/me", nil, &me))
	assert.Equal(t, "fan", me.Profile.UserID)
}

func TestEngagementModerationFlow(t *testing.T) {
	t.Parallel()
	srv, cleanup := setupTest(t)
	defer cleanup()

	var opp models.Opportunity
	require.Equal(t, http.StatusCreated, srv.do(t, "creator", http.MethodPost, "/opportunities", map[string]any{
		"platform":        "instagram",
		"engagement_type": "comment",
		"content_url":     "https://instagram.example/p/1",
		"points_reward":   45,
	}, &opp))

	var e models.Engagement
	require.Equal(t, http.StatusCreated, srv.do(t, "fan", http.MethodPost, "/engagements",
		map[string]string{"opportunity_id": opp.ID}, &e))
	assert.Equal(t, models.EngagementPending, e.Status)

	assert.Equal(t, http.StatusConflict, srv.do(t, "fan", http.MethodPost, "/engagements",
		map[string]string{"opportunity_id": opp.ID}, nil))
	assert.Equal(t, http.StatusForbidden, srv.do(t, "creator", http.MethodPost, "/engagements",
		map[string]string{"opportunity_id": opp.ID}, nil))

	assert.Equal(t, http.StatusForbidden, srv.do(t, "fan", http.MethodPost, "/admin/engagements/"+e.ID+"/verify", nil, nil))
	assert.Equal(t, http.StatusNotFound, srv.do(t, "creator", http.MethodGet, "/engagements/"+e.ID, nil, nil))

	var queue []models.Engagement
	require.Equal(t, http.StatusOK, srv.do(t, "mod", http.MethodGet, "/admin/engagements/queue", nil, &queue))
	require.Len(t, queue, 1)

	var verified models.Engagement
	require.Equal(t, http.StatusOK, srv.do(t, "mod", http.MethodPost, "/admin/engagements/"+e.ID+"/verify", nil, &verified))
	assert.Equal(t, models.EngagementVerified, verified.Status)

	var conflict map[string]string
	assert.Equal(t, http.StatusConflict, srv.do(t, "mod", http.MethodPost, "/admin/engagements/"+e.ID+"/verify", nil, &conflict))
	assert.Contains(t, conflict["error"], "invalid engagement transition")

	var summary services.PointsSummary
	require.Equal(t, http.StatusOK, srv.do(t, "fan", http.MethodGet, "/points", nil, &summary))
	assert.Equal(t, int64(45), summary.Balance)
	assert.True(t, summary.InSync)
}

func TestRedeemStatusCodes(t *testing.T) {
	t.Parallel()
	srv, cleanup := setupTest(t)
	defer cleanup()

	var reward models.Reward
	assert.Equal(t, http.StatusForbidden, srv.do(t, "mod", http.MethodPost, "/admin/rewards",
		map[string]any{"title": "Free Coffee", "points_required": 300}, nil))
	require.Equal(t, http.StatusCreated, srv.do(t, "root", http.MethodPost, "/admin/rewards",
		map[string]any{"title": "Free Coffee", "points_required": 300, "category": "gift_card"}, &reward))

	require.Equal(t, http.StatusCreated, srv.do(t, "root", http.MethodPost, "/admin/points/bonus",
		map[string]any{"user_id": "fan", "amount": 275}, nil))

	var refusal map[string]string
	assert.Equal(t, http.StatusUnprocessableEntity, srv.do(t, "fan", http.MethodPost, "/rewards/"+reward.ID+"/redeem", nil, &refusal))
	assert.Contains(t, refusal["error"], "insufficient points")

	require.Equal(t, http.StatusCreated, srv.do(t, "root", http.MethodPost, "/admin/points/bonus",
		map[string]any{"user_id": "fan", "amount": 25}, nil))

	var redemption services.Redemption
	require.Equal(t, http.StatusCreated, srv.do(t, "fan", http.MethodPost, "/rewards/"+reward.ID+"/redeem", nil, &redemption))
	assert.Equal(t, int64(0), redemption.Posting.Balance)
	assert.Equal(t, http.StatusConflict, srv.do(t, "fan", http.MethodPost, "/rewards/"+reward.ID+"/redeem", nil, nil))

	var history []models.PointsTransaction
	require.Equal(t, http.StatusOK, srv.do(t, "fan", http.MethodGet, "/points/history", nil, &history))
	assert.Len(t, history, 3)
}

func TestProofUploadDisabled(t *testing.T) {
	t.Parallel()
	srv, cleanup := setupTest(t)
	defer cleanup()

	assert.Equal(t, http.StatusServiceUnavailable, srv.do(t, "fan", http.MethodPost, "/engagements/proof", nil, nil))
}

func TestSignOutRevokesToken(t *testing.T) {
	t.Parallel()
	srv, cleanup := setupTest(t)
	defer cleanup()

	require.Equal(t, http.StatusOK, srv.do(t, "fan", http.MethodGet, "/notifications", nil, nil))
	assert.Equal(t, http.StatusNoContent, srv.do(t, "fan", http.MethodPost, "/auth/signout", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, srv.do(t, "fan", http.MethodGet, "/notifications", nil, nil))
}

var pathParam = regexp.MustCompile(`:[a-z_]+`)

func TestEveryRouteRequiresSession(t *testing.T) {
	t.Parallel()
	srv, cleanup := setupTest(t)
	defer cleanup()

	public := map[string]bool{"/realtime/stream": true}
	checked := 0
	for _, route := range srv.app.GetRoutes(true) {
		if public[route.Path] || route.Method == http.MethodHead {
			continue
		}
		path := pathParam.ReplaceAllString(route.Path, "x")
		var body map[string]string
		assert.Equal(t, http.StatusUnauthorized, srv.do(t, "", route.Method, path, nil, &body), route.Method+" "+route.Path)
		assert.Equal(t, "authentication required", body["error"])
		checked++
	}
	assert.Greater(t, checked, 40)
}

func TestUnknownPathIsNotFound(t *testing.T) {
	t.Parallel()
	srv, cleanup := setupTest(t)
	defer cleanup()

	var body map[string]string
	assert.Equal(t, http.StatusNotFound, srv.do(t, "", http.MethodGet, "/nope", nil, &body))
	assert.Equal(t, "not found", body["error"])
	assert.Equal(t, http.StatusNotFound, srv.do(t, "fan", http.MethodGet, "/nope", nil, nil))
	assert.Equal(t, http.StatusNotFound, srv.do(t, "fan", http.MethodGet, "/points/nope", nil, nil))
}
