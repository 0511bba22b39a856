package handlers

import (
	"context"
	"io"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"roundabout/middleware"
	"roundabout/services"
)

// SubscriptionProvider proxies the billing functions.
type SubscriptionProvider interface {
	CheckSubscription(ctx context.Context, token string) (*services.SubscriptionStatus, error)
	CreateSubscription(ctx context.Context, token, priceID, plan string) (string, error)
	CustomerPortal(ctx context.Context, token string) (string, error)
}

// ProofUploader stores proof screenshots and returns their URL.
type ProofUploader interface {
	Upload(ctx context.Context, userID, contentType string, size int64, body io.Reader) (string, error)
}

// Deps is everything the HTTP surface needs.
type Deps struct {
	Sessions      *services.SessionManager
	Profiles      *services.ProfileService
	Opportunities *services.OpportunityService
	Engagements   *services.EngagementService
	Ledger        *services.LedgerService
	Rewards       *services.RewardService
	Achievements  *services.AchievementService
	Social        *services.SocialService
	Messaging     *services.MessagingService
	Groups        *services.GroupService
	Notifications *services.NotificationService
	Analytics     *services.AnalyticsService
	Subscriptions SubscriptionProvider
	// Proofs is nil when object storage is not configured.
	Proofs ProofUploader
	Logger *zap.Logger
}

// securedPrefixes are the path prefixes SessionMiddleware guards. A route outside
// them is public.
var securedPrefixes = []string{
	"/me",
	"/auth",
	"/profiles",
	"/opportunities",
	"/engagements",
	"/admin",
	"/rewards",
	"/points",
	"/achievements",
	"/social-accounts",
	"/subscription",
	"/conversations",
	"/groups",
	"/notifications",
	"/analytics",
}

// Register mounts every route. Everything except the realtime stream (which
// authenticates from the query string) sits behind SessionMiddleware; role checks
// are attached per route so moderator and admin paths can share the /admin prefix.
// Register mounts a JSON 404 last, so routes added after it are unreachable.
func Register(app *fiber.App, d Deps) {
	logger := d.Logger.Named("http")

	SetupRealtimeRoutes(app, d, logger)

	app.Use(securedPrefixes, middleware.SessionMiddleware(d.Sessions, logger))
	secured := fiber.Router(app)

	SetupProfileRoutes(secured, d, logger)
	SetupEngagementRoutes(secured, d, logger)
	SetupRewardRoutes(secured, d, logger)
	SetupPointsRoutes(secured, d, logger)
	SetupAchievementRoutes(secured, d, logger)
	SetupSocialRoutes(secured, d, logger)
	SetupMessagingRoutes(secured, d, logger)
	SetupGroupRoutes(secured, d, logger)
	SetupNotificationRoutes(secured, d, logger)
	SetupAnalyticsRoutes(secured, d, logger)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	})
}
