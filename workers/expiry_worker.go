package workers

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Expirer lapses overdue pending engagements.
type Expirer interface {
	ExpireDue(ctx context.Context, batch int) (int, error)
}

// ExpiryWorker sweeps overdue engagements on an interval. Reads also lapse
// overdue rows, so the sweep only bounds how long a stale row can sit unseen.
type ExpiryWorker struct {
	engagements Expirer
	interval    time.Duration
	batch       int
	logger      *zap.Logger
}

func NewExpiryWorker(engagements Expirer, interval time.Duration, logger *zap.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpiryWorker{
		engagements: engagements,
		interval:    interval,
		batch:       500,
		logger:      logger.Named("expiry_worker"),
	}
}

func (w *ExpiryWorker) Register(s gocron.Scheduler) (gocron.Job, error) {
	return s.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), w.interval)
			defer cancel()
			w.RunOnce(ctx)
		}),
		gocron.WithName("engagement-expiry"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
}

// RunOnce sweeps until a batch comes back short.
func (w *ExpiryWorker) RunOnce(ctx context.Context) int {
	total := 0
	for {
		n, err := w.engagements.ExpireDue(ctx, w.batch)
		total += n
		if err != nil {
			w.logger.Error("[EXPIRY] sweep failed", zap.Int("expired", total), zap.Error(err))
			return total
		}
		if n < w.batch {
			break
		}
	}
	if total > 0 {
		w.logger.Info("[EXPIRY] ⏰ lapsed overdue engagements", zap.Int("expired", total))
	}
	return total
}
