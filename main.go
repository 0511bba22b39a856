package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"roundabout/config"
	"roundabout/handlers"
	"roundabout/logger"
	"roundabout/metrics"
	"roundabout/models"
	"roundabout/realtime"
	"roundabout/services"
	"roundabout/utils"
	"roundabout/workers"
)

func main() {
	cfg, dotenv, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	zl, err := logger.New(cfg.Production(), cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to build logger: ", err)
	}
	defer func() { _ = zl.Sync() }()
	if !dotenv {
		zl.Info("⚠️  No .env file found, reading environment variables directly")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		zl.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		zl.Fatal("failed to migrate database", zap.Error(err))
	}

	var hub realtime.Hub
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			zl.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			zl.Fatal("failed to reach redis", zap.Error(err))
		}
		defer rdb.Close()
		hub = realtime.NewRedisHub(rdb, zl)
	} else {
		zl.Warn("⚠️  REDIS_URL not set, realtime fan-out is local to this process")
		hub = realtime.NewMemoryHub(zl)
	}
	registry := realtime.NewRegistry(hub)

	clock := clockwork.NewRealClock()

	functions := services.NewFunctionsClient(cfg.FunctionsURL, cfg.FunctionsAPIKey, cfg.FunctionsTimeout, zl)

	profiles := services.NewProfileService(db, clock)
	notifications := services.NewNotificationService(db, hub, clock, zl)
	ledger := services.NewLedgerService(db, hub, clock, zl)
	achievements := services.NewAchievementService(db, ledger, notifications, hub, clock, zl)
	opportunities := services.NewOpportunityService(db, clock, zl)
	engagements := services.NewEngagementService(db, ledger, achievements, notifications, hub, clock, zl)
	rewards := services.NewRewardService(db, ledger, notifications, hub, clock, zl)
	social := services.NewSocialService(db, functions, achievements, hub, clock, zl)
	messaging := services.NewMessagingService(db, notifications, hub, clock, zl)
	groups := services.NewGroupService(db, clock, zl)
	analytics := services.NewAnalyticsService(db, clock)
	sessions := services.NewSessionManager(cfg.JWTSecret, cfg.JWTIssuer, profiles, registry, clock, zl)

	if err := achievements.Seed(ctx, models.DefaultAchievements); err != nil {
		zl.Fatal("failed to seed achievements", zap.Error(err))
	}

	deps := handlers.Deps{
		Sessions:      sessions,
		Profiles:      profiles,
		Opportunities: opportunities,
		Engagements:   engagements,
		Ledger:        ledger,
		Rewards:       rewards,
		Achievements:  achievements,
		Social:        social,
		Messaging:     messaging,
		Groups:        groups,
		Notifications: notifications,
		Analytics:     analytics,
		Subscriptions: functions,
		Logger:        zl,
	}
	if cfg.R2.Enabled() {
		client, err := utils.NewR2Client(ctx, cfg.R2)
		if err != nil {
			zl.Fatal("failed to initialize R2 client", zap.Error(err))
		}
		deps.Proofs = utils.NewProofStore(client, cfg.R2.Bucket, cfg.R2.CDNBaseURL, cfg.R2.AccountID)
	} else {
		zl.Warn("⚠️  R2 bucket not configured, proof uploads are disabled")
	}

	scheduler, err := workers.NewScheduler(clock, zl)
	if err != nil {
		zl.Fatal("failed to create scheduler", zap.Error(err))
	}
	if _, err := workers.NewExpiryWorker(engagements, cfg.ExpirySweepInterval, zl).Register(scheduler); err != nil {
		zl.Fatal("failed to schedule expiry sweep", zap.Error(err))
	}
	if cfg.FunctionsURL != "" {
		if _, err := workers.NewSocialSyncWorker(social, cfg.SocialSyncInterval, zl).Register(scheduler); err != nil {
			zl.Fatal("failed to schedule social sync", zap.Error(err))
		}
	}
	if _, err := workers.RegisterSessionPrune(scheduler, sessions, 5*time.Minute, zl); err != nil {
		zl.Fatal("failed to schedule session prune", zap.Error(err))
	}
	scheduler.Start()

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024,
	})
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", metrics.Handler())
	handlers.Register(app, deps)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			zl.Error("server error", zap.Error(err))
		}
	}()

	zl.Info("✅ Server running", zap.String("port", cfg.Port))
	zl.Info("✅ CORS configured", zap.Strings("origins", cfg.AllowedOrigins))

	<-ctx.Done()
	zl.Info("Shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		zl.Error("server shutdown", zap.Error(err))
	}
	if err := scheduler.Shutdown(); err != nil {
		zl.Error("scheduler shutdown", zap.Error(err))
	}
	if err := hub.Close(); err != nil {
		zl.Error("realtime hub shutdown", zap.Error(err))
	}
}
