package realtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"roundabout/metrics"
)

const subscriberBuffer = 64

// MemoryHub fans events out inside one process.
type MemoryHub struct {
	logger *zap.Logger

	mu     sync.RWMutex
	subs   map[*memorySub]struct{}
	closed bool
}

type memorySub struct {
	filter Filter
	ch     chan Event
}

func NewMemoryHub(logger *zap.Logger) *MemoryHub {
	return &MemoryHub{
		logger: logger.Named("realtime.memory"),
		subs:   make(map[*memorySub]struct{}),
	}
}

// Publish never blocks: a subscriber whose buffer is full misses the event.
func (h *MemoryHub) Publish(_ context.Context, e Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrHubClosed
	}

	metrics.RealtimeEvents.WithLabelValues(string(e.Channel)).Inc()
	for sub := range h.subs {
		if !sub.filter.Match(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			h.logger.Warn("[REALTIME] subscriber buffer full, dropping event",
				zap.String("channel", string(e.Channel)),
				zap.String("user_id", e.UserID))
		}
	}
	return nil
}

func (h *MemoryHub) Subscribe(ctx context.Context, f Filter) (*Subscription, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	ms := &memorySub{filter: f, ch: make(chan Event, subscriberBuffer)}
	h.subs[ms] = struct{}{}
	h.mu.Unlock()
	metrics.RealtimeSubscribers.Inc()

	var once sync.Once
	remove := func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[ms]; ok {
				delete(h.subs, ms)
				close(ms.ch)
			}
			h.mu.Unlock()
			metrics.RealtimeSubscribers.Dec()
		})
	}

	sub := newSubscription(ms.ch, remove)
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.Done():
		}
	}()
	return sub, nil
}

func (h *MemoryHub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for ms := range h.subs {
		close(ms.ch)
		delete(h.subs, ms)
	}
	return nil
}
