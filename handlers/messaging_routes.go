package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"roundabout/middleware"
)

func SetupMessagingRoutes(secured fiber.Router, d Deps, logger *zap.Logger) {
	secured.Get("/conversations", func(c *fiber.Ctx) error {
		out, err := d.Messaging.ListConversations(c.UserContext(), middleware.Session(c).UserID)
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(out)
	})

	secured.Get("/conversations/unread", func(c *fiber.Ctx) error {
		n, err := d.Messaging.Unread(c.UserContext(), middleware.Session(c).UserID)
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(fiber.Map{"unread_count": n})
	})

	secured.Post("/conversations/direct", func(c *fiber.Ctx) error {
		var req struct {
			UserID string `json:"user_id"`
		}
		if err := c.BodyParser(&req); err != nil || req.UserID == "" {
			return badRequest(c, "user_id is required")
		}
		conv, err := d.Messaging.StartDirect(c.UserContext(), middleware.Session(c).UserID, req.UserID)
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(conv)
	})

	secured.Get("/conversations/:id/messages", func(c *fiber.Ctx) error {
		var before *time.Time
		if raw := c.Query("before"); raw != "" {
			t, err := time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				return badRequest(c, "before must be an RFC 3339 timestamp")
			}
			before = &t
		}
		out, err := d.Messaging.Messages(c.UserContext(), c.Params("id"), middleware.Session(c).UserID, before, c.QueryInt("limit", 50))
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(out)
	})

	secured.Post("/conversations/:id/messages", func(c *fiber.Ctx) error {
		var req struct {
			Body string `json:"body"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
		msg, err := d.Messaging.Send(c.UserContext(), c.Params("id"), middleware.Session(c).UserID, req.Body)
		if err != nil {
			return fail(c, logger, err)
		}
		return c.Status(fiber.StatusCreated).JSON(msg)
	})

	secured.Post("/conversations/:id/read", func(c *fiber.Ctx) error {
		if err := d.Messaging.MarkRead(c.UserContext(), c.Params("id"), middleware.Session(c).UserID); err != nil {
			return fail(c, logger, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
