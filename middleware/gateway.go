package middleware

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// RequireModerator admits sessions allowed to verify or reject engagements.
func RequireModerator(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess := Session(c)
		if sess == nil {
			return unauthorized(c)
		}
		if !sess.CanModerate() {
			logger.Info("[GATEWAY] 🚫 moderator role required",
				zap.String("user_id", sess.UserID),
				zap.String("path", c.Path()))
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "moderator role required"})
		}
		return c.Next()
	}
}

// RequireAdmin admits admin sessions only.
func RequireAdmin(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess := Session(c)
		if sess == nil {
			return unauthorized(c)
		}
		if !sess.IsAdmin() {
			logger.Info("[GATEWAY] 🚫 admin role required",
				zap.String("user_id", sess.UserID),
				zap.String("path", c.Path()))
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin role required"})
		}
		return c.Next()
	}
}
