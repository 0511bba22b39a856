package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"roundabout/middleware"
)

func SetupAchievementRoutes(secured fiber.Router, d Deps, logger *zap.Logger) {
	secured.Get("/achievements", func(c *fiber.Ctx) error {
		out, err := d.Achievements.List(c.UserContext(), middleware.Session(c).UserID)
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(out)
	})

	secured.Post("/achievements/:code/claim", func(c *fiber.Ctx) error {
		posting, err := d.Achievements.Claim(c.UserContext(), middleware.Session(c).UserID, c.Params("code"))
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(posting)
	})
}
