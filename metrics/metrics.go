package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EngagementTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roundabout_engagement_transitions_total",
		Help: "Engagement lifecycle transitions by target status.",
	}, []string{"status"})

	InvalidTransitions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roundabout_engagement_invalid_transitions_total",
		Help: "Transition attempts rejected because the engagement was not pending.",
	})

	PointsLedgered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roundabout_points_ledgered_total",
		Help: "Absolute points appended to the ledger by transaction type.",
	}, []string{"type"})

	Redemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roundabout_reward_redemptions_total",
		Help: "Reward redemption attempts by outcome.",
	}, []string{"outcome"})

	RealtimeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roundabout_realtime_events_total",
		Help: "Realtime events published by channel.",
	}, []string{"channel"})

	RealtimeSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "roundabout_realtime_subscribers",
		Help: "Open realtime subscriptions.",
	})
)

// Handler exposes the default registry on a fiber route.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
