package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"roundabout/middleware"
	"roundabout/models"
	"roundabout/services"
)

func SetupGroupRoutes(secured fiber.Router, d Deps, logger *zap.Logger) {
	secured.Get("/groups", func(c *fiber.Ctx) error {
		f := services.GroupFilter{
			Platform: models.Platform(c.Query("platform")),
			Query:    c.Query("q"),
			Limit:    c.QueryInt("limit", 50),
		}
		if c.QueryBool("mine") {
			f.MemberID = middleware.Session(c).UserID
		}
		out, err := d.Groups.List(c.UserContext(), f)
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(out)
	})

	secured.Post("/groups", func(c *fiber.Ctx) error {
		var in services.GroupInput
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, "Invalid request body")
		}
		g, err := d.Groups.Create(c.UserContext(), middleware.Session(c).UserID, in)
		if err != nil {
			return fail(c, logger, err)
		}
		return c.Status(fiber.StatusCreated).JSON(g)
	})

	secured.Get("/groups/:id", func(c *fiber.Ctx) error {
		g, err := d.Groups.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(g)
	})

	secured.Get("/groups/:id/members", func(c *fiber.Ctx) error {
		out, err := d.Groups.Members(c.UserContext(), c.Params("id"))
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(out)
	})

	secured.Post("/groups/:id/join", func(c *fiber.Ctx) error {
		m, err := d.Groups.Join(c.UserContext(), c.Params("id"), middleware.Session(c).UserID)
		if err != nil {
			return fail(c, logger, err)
		}
		return c.JSON(m)
	})

	secured.Post("/groups/:id/leave", func(c *fiber.Ctx) error {
		if err := d.Groups.Leave(c.UserContext(), c.Params("id"), middleware.Session(c).UserID); err != nil {
			return fail(c, logger, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
