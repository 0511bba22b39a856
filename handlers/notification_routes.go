package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"roundabout/middleware"
)

func SetupNotificationRoutes(secured fiber.Router, d Deps, logger *zap.Logger) {
	secured.Get("/notifications", func(c *fiber.Ctx) error {
		out, err := d.Notifications.List(c.UserContext(), middleware.Session(c).UserID, c.QueryBool("unread"), c.QueryInt("limit", 50))
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(out)
	})

	secured.Post("/notifications/read-all", func(c *fiber.Ctx) error {
		n, err := d.Notifications.MarkAllRead(c.UserContext(), middleware.Session(c).UserID)
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(fiber.Map{"updated": n})
	})

	secured.Post("/notifications/:id/read", func(c *fiber.Ctx) error {
		if err := d.Notifications.MarkRead(c.UserContext(), middleware.Session(c).UserID, c.Params("id")); err != nil {
			return fail(c, logger, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
