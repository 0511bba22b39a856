// Package realtime fans row-change events out to subscribed clients.
//
// A Subscription is a lazy stream of typed events delivered on a channel; closing it
// unsubscribes and closes the channel. Ordering holds within one Channel only and
// nothing is replayed across a reconnect.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Channel names the table an event originated from.
type Channel string

const (
	ChannelEngagements   Channel = "engagements"
	ChannelMessages      Channel = "messages"
	ChannelNotifications Channel = "notifications"
	ChannelPoints        Channel = "points_transactions"
	ChannelSocial        Channel = "social_accounts"
)

type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Event is a single row change addressed to one user.
type Event struct {
	ID      string          `json:"id"`
	Channel Channel         `json:"channel"`
	Kind    Kind            `json:"kind"`
	UserID  string          `json:"user_id"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

func NewEvent(channel Channel, kind Kind, userID string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", channel, err)
	}
	return Event{
		ID:      uuid.NewString(),
		Channel: channel,
		Kind:    kind,
		UserID:  userID,
		Payload: raw,
		At:      time.Now().UTC(),
	}, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Filter selects events by recipient and channel. Zero values match everything.
type Filter struct {
	UserID   string
	Channels []Channel
}

func (f Filter) Match(e Event) bool {
	if f.UserID != "" && f.UserID != e.UserID {
		return false
	}
	if len(f.Channels) > 0 && !lo.Contains(f.Channels, e.Channel) {
		return false
	}
	return true
}

// Hub publishes events and hands out subscriptions.
type Hub interface {
	Publish(ctx context.Context, e Event) error
	Subscribe(ctx context.Context, f Filter) (*Subscription, error)
	Close() error
}

// Subscription delivers matching events until Close is called or the
// subscribing context ends.
type Subscription struct {
	events <-chan Event

	once    sync.Once
	mu      sync.Mutex
	done    chan struct{}
	cancel  func()
	onClose []func()
}

func newSubscription(events <-chan Event, cancel func()) *Subscription {
	return &Subscription{
		events: events,
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Done is closed once the subscription has been closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cancel()
		close(s.done)

		s.mu.Lock()
		hooks := s.onClose
		s.onClose = nil
		s.mu.Unlock()
		for _, hook := range hooks {
			hook()
		}
	})
}

func (s *Subscription) addCloseHook(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		go fn()
	default:
		s.onClose = append(s.onClose, fn)
	}
}
