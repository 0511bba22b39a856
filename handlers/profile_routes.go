package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"roundabout/middleware"
	"roundabout/services"
)

func SetupProfileRoutes(secured fiber.Router, d Deps, logger *zap.Logger) {
	secured.Get("/me", func(c *fiber.Ctx) error {
		sess := middleware.Session(c)
		profile, err := d.Profiles.Get(c.UserContext(), sess.UserID)
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(fiber.Map{
			"session": sess,
			"profile": profile,
			"level":   services.ProgressFor(profile.LifetimeEarned),
		})
	})

	secured.Patch("/me", func(c *fiber.Ctx) error {
		var patch services.ProfilePatch
		if err := c.BodyParser(&patch); err != nil {
			return badRequest(c, "Invalid request body")
		}
		profile, err := d.Profiles.Update(c.UserContext(), middleware.Session(c).UserID, patch)
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(profile)
	})

	secured.Get("/profiles", func(c *fiber.Ctx) error {
		out, err := d.Profiles.Search(c.UserContext(), c.Query("q"), c.QueryInt("limit", 50))
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(out)
	})

	// Sign-out: closes the session's realtime streams and refuses the token afterwards.
	secured.Post("/auth/signout", func(c *fiber.Ctx) error {
		d.Sessions.Teardown(middleware.Session(c))
		return c.SendStatus(fiber.StatusNoContent)
	})
}
