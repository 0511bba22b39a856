package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"roundabout/services"
)

// SSESessionMiddleware authenticates EventSource requests, which cannot set
// headers, from the `token` query parameter. A bearer header still wins.
//
// Usage:
//
//	app.Get("/realtime/stream", middleware.SSESessionMiddleware(sessions, logger), realtimeHandler.Stream)
func SSESessionMiddleware(sessions *services.SessionManager, logger *zap.Logger) fiber.Handler {
	logger = logger.Named("sse_auth")
	return func(c *fiber.Ctx) error {
		token := bearerToken(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			token = strings.TrimSpace(c.Query("token"))
		}
		return authenticate(c, sessions, logger, token)
	}
}
