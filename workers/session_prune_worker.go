package workers

import (
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Pruner drops expired session state.
type Pruner interface {
	Prune() int
}

// RegisterSessionPrune forgets expired sessions and sign-out revocations.
func RegisterSessionPrune(s gocron.Scheduler, sessions Pruner, interval time.Duration, logger *zap.Logger) (gocron.Job, error) {
	logger = logger.Named("session_prune")
	return s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if n := sessions.Prune(); n > 0 {
				logger.Debug("[SESSION] pruned expired entries", zap.Int("count", n))
			}
		}),
		gocron.WithName("session-prune"),
	)
}
