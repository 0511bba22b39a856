package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"roundabout/middleware"
)

func SetupAnalyticsRoutes(secured fiber.Router, d Deps, logger *zap.Logger) {
	secured.Get("/analytics", func(c *fiber.Ctx) error {
		out, err := d.Analytics.Overview(c.UserContext(), middleware.Session(c).UserID, c.QueryInt("days", 30))
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(out)
	})
}
