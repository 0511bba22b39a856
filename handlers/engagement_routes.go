package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"roundabout/middleware"
	"roundabout/models"
	"roundabout/services"
	"roundabout/utils"
)

const maxProofBytes = 8 << 20

func SetupEngagementRoutes(secured fiber.Router, d Deps, logger *zap.Logger) {
	moderator := middleware.RequireModerator(logger)

	// --- Opportunities ---

	secured.Get("/opportunities", func(c *fiber.Ctx) error {
		out, err := d.Opportunities.ListOpen(c.UserContext(), services.OpportunityFilter{
			Platform:     models.Platform(c.Query("platform")),
			Type:         models.EngagementType(c.Query("type")),
			ExcludeOwner: middleware.Session(c).UserID,
			Limit:        c.QueryInt("limit", 50),
		})
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(out)
	})

	secured.Post("/opportunities", func(c *fiber.Ctx) error {
		var in services.OpportunityInput
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, "Invalid request body")
		}
		opp, err := d.Opportunities.Create(c.UserContext(), middleware.Session(c).UserID, in)
		if err != nil {
			return fail(c, logger, err)
		}
		return c.Status(fiber.StatusCreated).JSON(opp)
	})

	secured.Get("/opportunities/:id", func(c *fiber.Ctx) error {
		opp, err := d.Opportunities.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(opp)
	})

	secured.Post("/opportunities/:id/close", func(c *fiber.Ctx) error {
		opp, err := d.Opportunities.Close(c.UserContext(), middleware.Session(c).UserID, c.Params("id"))
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(opp)
	})

	// --- Engagements ---

	secured.Post("/engagements", func(c *fiber.Ctx) error {
		var in services.SubmitInput
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, "Invalid request body")
		}
		e, err := d.Engagements.Submit(c.UserContext(), middleware.Session(c).UserID, in)
		if err != nil {
			return fail(c, logger, err)
		}
		return c.Status(fiber.StatusCreated).JSON(e)
	})

	secured.Post("/engagements/proof", func(c *fiber.Ctx) error {
		if d.Proofs == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "proof storage is not configured"})
		}
		fh, err := c.FormFile("file")
		if err != nil {
			return badRequest(c, "file is required")
		}
		if fh.Size > maxProofBytes {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "proof screenshot too large"})
		}
		contentType := fh.Header.Get(fiber.HeaderContentType)
		if _, ok := utils.ProofExtension(contentType); !ok {
			return badRequest(c, "proof must be a png, jpeg, webp or gif image")
		}
		f, err := fh.Open()
		if err != nil {
			return fail(c, logger, err)
		}
		defer f.Close()

		url, err := d.Proofs.Upload(c.UserContext(), middleware.Session(c).UserID, contentType, fh.Size, f)
		if err != nil {
			return fail(c, logger, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"proof_url": url})
	})

	secured.Get("/engagements", func(c *fiber.Ctx) error {
		out, err := d.Engagements.List(c.UserContext(), middleware.Session(c).UserID, services.EngagementFilter{
			Status:   models.EngagementStatus(c.Query("status")),
			Platform: models.Platform(c.Query("platform")),
			Limit:    c.QueryInt("limit", 50),
		})
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(out)
	})

	secured.Get("/engagements/:id", func(c *fiber.Ctx) error {
		sess := middleware.Session(c)
		e, err := d.Engagements.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return fail(c, logger, err)
		}
		if e.UserID != sess.UserID && !sess.CanModerate() {
			return fail(c, logger, services.ErrNotFound)
		}
		return c.JSON(e)
	})

	// --- Moderation ---

	secured.Get("/admin/engagements/queue", moderator, func(c *fiber.Ctx) error {
		out, err := d.Engagements.Queue(c.UserContext(), c.QueryInt("limit", 50))
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(out)
	})

	secured.Post("/admin/engagements/:id/verify", moderator, func(c *fiber.Ctx) error {
		e, err := d.Engagements.Verify(c.UserContext(), c.Params("id"), middleware.Session(c).UserID)
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(e)
	})

	secured.Post("/admin/engagements/:id/reject", moderator, func(c *fiber.Ctx) error {
		var req struct {
			Reason string `json:"reason"`
		}
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return badRequest(c, "Invalid request body")
			}
		}
		e, err := d.Engagements.Reject(c.UserContext(), c.Params("id"), middleware.Session(c).UserID, req.Reason)
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(e)
	})
}
