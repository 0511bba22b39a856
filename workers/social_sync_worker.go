package workers

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"roundabout/services"
)

// Syncer refreshes linked social accounts.
type Syncer interface {
	SyncStale(ctx context.Context, maxAge time.Duration, batch int) (services.SyncReport, error)
}

// SocialSyncWorker keeps follower counts fresh: every interval it refreshes
// accounts not synced within that interval.
type SocialSyncWorker struct {
	social   Syncer
	interval time.Duration
	batch    int
	logger   *zap.Logger
}

func NewSocialSyncWorker(social Syncer, interval time.Duration, logger *zap.Logger) *SocialSyncWorker {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &SocialSyncWorker{
		social:   social,
		interval: interval,
		batch:    100,
		logger:   logger.Named("social_sync_worker"),
	}
}

func (w *SocialSyncWorker) Register(s gocron.Scheduler) (gocron.Job, error) {
	return s.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), w.interval)
			defer cancel()
			w.RunOnce(ctx)
		}),
		gocron.WithName("social-sync"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
}

func (w *SocialSyncWorker) RunOnce(ctx context.Context) services.SyncReport {
	w.logger.Debug("[SYNC] 📡 refreshing stale social accounts", zap.Duration("max_age", w.interval))
	report, err := w.social.SyncStale(ctx, w.interval, w.batch)
	if err != nil {
		w.logger.Error("[SYNC] ❌ sync batch failed", zap.Error(err))
		return report
	}
	if report.Synced+report.Failed > 0 {
		w.logger.Info("[SYNC] ✅ social accounts refreshed",
			zap.Int("synced", report.Synced),
			zap.Int("failed", report.Failed))
	}
	return report
}
