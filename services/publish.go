package services

import (
	"context"

	"go.uber.org/zap"

	"roundabout/realtime"
)

// publisher sends realtime events after a commit. Delivery failures are logged and
// never undo the committed write.
type publisher struct {
	hub    realtime.Hub
	logger *zap.Logger
}

func (p publisher) publish(ctx context.Context, channel realtime.Channel, kind realtime.Kind, userID string, payload any) {
	if p.hub == nil {
		return
	}
	e, err := realtime.NewEvent(channel, kind, userID, payload)
	if err != nil {
		p.logger.Error("[REALTIME] build event failed", zap.String("channel", string(channel)), zap.Error(err))
		return
	}
	if err := p.hub.Publish(ctx, e); err != nil {
		p.logger.Warn("[REALTIME] publish failed",
			zap.String("channel", string(channel)),
			zap.String("user_id", userID),
			zap.Error(err))
	}
}
