package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"roundabout/metrics"
)

const channelPrefix = "realtime:"

// RedisHub fans events out over Redis pub/sub so every API node sees them.
// Each event goes to "realtime:<channel>@<user id>".
type RedisHub struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedisHub(rdb *redis.Client, logger *zap.Logger) *RedisHub {
	return &RedisHub{rdb: rdb, logger: logger.Named("realtime.redis")}
}

func redisChannel(channel, userID string) string {
	return fmt.Sprintf("%s%s@%s", channelPrefix, channel, userID)
}

// patterns turns a filter into glob patterns for PSUBSCRIBE.
func patterns(f Filter) []string {
	user := f.UserID
	if user == "" {
		user = "*"
	}
	if len(f.Channels) == 0 {
		return []string{redisChannel("*", user)}
	}
	out := make([]string, 0, len(f.Channels))
	for _, c := range f.Channels {
		out = append(out, redisChannel(string(c), user))
	}
	return out
}

func (h *RedisHub) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := h.rdb.Publish(ctx, redisChannel(string(e.Channel), e.UserID), data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", e.Channel, err)
	}
	metrics.RealtimeEvents.WithLabelValues(string(e.Channel)).Inc()
	return nil
}

func (h *RedisHub) Subscribe(ctx context.Context, f Filter) (*Subscription, error) {
	pats := patterns(f)
	pubsub := h.rdb.PSubscribe(ctx, pats...)

	// Wait for every confirmation so nothing published after Subscribe returns is missed.
	for range pats {
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			return nil, fmt.Errorf("psubscribe %s: %w", strings.Join(pats, ","), err)
		}
	}

	out := make(chan Event, subscriberBuffer)
	stop := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(stop)
			_ = pubsub.Close()
		})
	}
	sub := newSubscription(out, cancel)
	metrics.RealtimeSubscribers.Inc()

	go func() {
		defer metrics.RealtimeSubscribers.Dec()
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				sub.Close()
				return
			case <-stop:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					h.logger.Warn("[REALTIME] dropping malformed event", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				if !f.Match(e) {
					continue
				}
				select {
				case out <- e:
				default:
					h.logger.Warn("[REALTIME] subscriber buffer full, dropping event",
						zap.String("channel", string(e.Channel)),
						zap.String("user_id", e.UserID))
				}
			}
		}
	}()
	return sub, nil
}

// Close leaves the client open; its owner closes it.
func (h *RedisHub) Close() error {
	return nil
}
