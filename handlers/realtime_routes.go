package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"roundabout/middleware"
	"roundabout/realtime"
)

// SetupRealtimeRoutes serves the caller's change events as Server-Sent Events.
// ?channels=engagements,messages narrows the stream; the default is everything.
func SetupRealtimeRoutes(app *fiber.App, d Deps, logger *zap.Logger) {
	app.Get("/realtime/stream", middleware.SSESessionMiddleware(d.Sessions, logger), func(c *fiber.Ctx) error {
		sess := middleware.Session(c)
		ctx := c.UserContext()

		filter := realtime.Filter{UserID: sess.UserID}
		if raw := c.Query("channels"); raw != "" {
			for _, ch := range strings.Split(raw, ",") {
				if ch = strings.TrimSpace(ch); ch != "" {
					filter.Channels = append(filter.Channels, realtime.Channel(ch))
				}
			}
		}

		var badge realtime.Badge
		notes, err := d.Notifications.UnreadCount(ctx, sess.UserID)
		if err != nil {
			return fail(c, logger, err)
		}
		msgs, err := d.Messaging.Unread(ctx, sess.UserID)
		if err != nil {
			return fail(c, logger, err)
		}
		profile, err := d.Profiles.Get(ctx, sess.UserID)
		if err != nil {
			return fail(c, logger, err)
		}
		badge.UnreadNotifications = int(notes)
		badge.UnreadMessages = int(msgs)
		badge.PointsBalance = int(profile.PointsBalance)
		badge.PointsVersion = profile.LedgerVersion

		if err := realtime.Stream(c, d.Sessions.Registry(), sess.ID, filter, badge, logger); err != nil {
			return fail(c, logger, err)
		}
		return nil
	})
}
