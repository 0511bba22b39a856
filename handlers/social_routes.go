package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"roundabout/middleware"
	"roundabout/models"
	"roundabout/services"
)

func SetupSocialRoutes(secured fiber.Router, d Deps, logger *zap.Logger) {
	secured.Get("/social-accounts", func(c *fiber.Ctx) error {
		out, err := d.Social.List(c.UserContext(), middleware.Session(c).UserID)
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(out)
	})

	// Starts the OAuth flow; the client follows the returned URL.
	secured.Post("/social-accounts/connect", func(c *fiber.Ctx) error {
		var req struct {
			Platform models.Platform `json:"platform"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
		sess := middleware.Session(c)
		url, err := d.Social.Connect(c.UserContext(), sess.Token, req.Platform)
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(fiber.Map{"url": url})
	})

	// Called once the provider callback completes.
	secured.Post("/social-accounts", func(c *fiber.Ctx) error {
		var in services.LinkInput
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, "Invalid request body")
		}
		acct, err := d.Social.Link(c.UserContext(), middleware.Session(c).UserID, in)
		if err != nil {
			return fail(c, logger, err)
		}
		return c.Status(fiber.StatusCreated).JSON(acct)
	})

	secured.Post("/social-accounts/:platform/sync", func(c *fiber.Ctx) error {
		sess := middleware.Session(c)
		accounts, err := d.Social.List(c.UserContext(), sess.UserID)
		if err != nil {
			return fail(c, logger, err)
		}
		platform := models.Platform(c.Params("platform"))
		for i := range accounts {
			if accounts[i].Platform != platform {
				continue
			}
			if err := d.Social.Sync(c.UserContext(), &accounts[i]); err != nil {
				return fail(c, logger, err)
			}
			return c.JSON(accounts[i])
		}
		return fail(c, logger, services.ErrNotFound)
	})

	secured.Delete("/social-accounts/:platform", func(c *fiber.Ctx) error {
		if err := d.Social.Disconnect(c.UserContext(), middleware.Session(c).UserID, models.Platform(c.Params("platform"))); err != nil {
			return fail(c, logger, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	// --- Subscription (billing functions proxy) ---

	secured.Get("/subscription", func(c *fiber.Ctx) error {
		status, err := d.Subscriptions.CheckSubscription(c.UserContext(), middleware.Session(c).Token)
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(status)
	})

	secured.Post("/subscription/checkout", func(c *fiber.Ctx) error {
		var req struct {
			PriceID string `json:"price_id"`
			Plan    string `json:"plan"`
		}
		if err := c.BodyParser(&req); err != nil || req.PriceID == "" {
			return badRequest(c, "price_id is required")
		}
		url, err := d.Subscriptions.CreateSubscription(c.UserContext(), middleware.Session(c).Token, req.PriceID, req.Plan)
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(fiber.Map{"url": url})
	})

	secured.Post("/subscription/portal", func(c *fiber.Ctx) error {
		url, err := d.Subscriptions.CustomerPortal(c.UserContext(), middleware.Session(c).Token)
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(fiber.Map{"url": url})
	})
}
