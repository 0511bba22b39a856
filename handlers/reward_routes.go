package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"roundabout/middleware"
	"roundabout/models"
	"roundabout/services"
)

func SetupRewardRoutes(secured fiber.Router, d Deps, logger *zap.Logger) {
	admin := middleware.RequireAdmin(logger)

	secured.Get("/rewards", func(c *fiber.Ctx) error {
		out, err := d.Rewards.ListRewards(c.UserContext(), middleware.Session(c).UserID, models.RewardCategory(c.Query("category")))
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(out)
	})

	secured.Get("/rewards/claims", func(c *fiber.Ctx) error {
		out, err := d.Rewards.ListClaims(c.UserContext(), middleware.Session(c).UserID)
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(out)
	})

	secured.Post("/rewards/claims/viewed", func(c *fiber.Ctx) error {
		n, err := d.Rewards.MarkClaimsViewed(c.UserContext(), middleware.Session(c).UserID)
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(fiber.Map{"updated": n})
	})

	secured.Get("/rewards/:id", func(c *fiber.Ctx) error {
		r, err := d.Rewards.GetReward(c.UserContext(), c.Params("id"))
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(r)
	})

	secured.Post("/rewards/:id/redeem", func(c *fiber.Ctx) error {
		out, err := d.Rewards.Redeem(c.UserContext(), middleware.Session(c).UserID, c.Params("id"))
		if err != nil {
			return fail(c, logger, err)
		}
		return c.Status(fiber.StatusCreated).JSON(out)
	})

	// --- Admin catalogue ---

	secured.Post("/admin/rewards", admin, func(c *fiber.Ctx) error {
		var in services.RewardInput
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, "Invalid request body")
		}
		r, err := d.Rewards.CreateReward(c.UserContext(), in)
		if err != nil {
			return fail(c, logger, err)
		}
		return c.Status(fiber.StatusCreated).JSON(r)
	})

	secured.Patch("/admin/rewards/:id", admin, func(c *fiber.Ctx) error {
		var patch services.RewardPatch
		if err := c.BodyParser(&patch); err != nil {
			return badRequest(c, "Invalid request body")
		}
		r, err := d.Rewards.UpdateReward(c.UserContext(), c.Params("id"), patch)
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(r)
	})

	secured.Delete("/admin/rewards/:id", admin, func(c *fiber.Ctx) error {
		if err := d.Rewards.DeleteReward(c.UserContext(), c.Params("id")); err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(fiber.Map{"message": "Reward deleted successfully"})
	})
}
