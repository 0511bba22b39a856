package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"roundabout/middleware"
)

func SetupPointsRoutes(secured fiber.Router, d Deps, logger *zap.Logger) {
	admin := middleware.RequireAdmin(logger)

	secured.Get("/points", func(c *fiber.Ctx) error {
		summary, err := d.Ledger.Summary(c.UserContext(), middleware.Session(c).UserID)
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(summary)
	})

	secured.Get("/points/history", func(c *fiber.Ctx) error {
		history, err := d.Ledger.History(c.UserContext(), middleware.Session(c).UserID, c.QueryInt("limit", 50))
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(history)
	})

	secured.Post("/admin/points/bonus", admin, func(c *fiber.Ctx) error {
		var req struct {
			UserID      string `json:"user_id"`
			Amount      int64  `json:"amount"`
			Description string `json:"description"`
			SourceID    string `json:"source_id"`
		}
		if err := c.BodyParser(&req); err != nil || req.UserID == "" {
			return badRequest(c, "user_id and amount are required")
		}
		posting, err := d.Ledger.GrantBonus(c.UserContext(), req.UserID, req.Amount, req.Description, req.SourceID)
		if err != nil {
			return fail(c, logger, err)
		}
		return c.Status(fiber.StatusCreated).JSON(posting)
	})

	secured.Post("/admin/points/reconcile/:user_id", admin, func(c *fiber.Ctx) error {
		profile, err := d.Ledger.Reconcile(c.UserContext(), c.Params("user_id"))
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(profile)
	})
}
