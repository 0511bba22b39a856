package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"roundabout/services"
)

var statusByError = []struct {
	err    error
	status int
}{
	{services.ErrAuthenticationRequired, fiber.StatusUnauthorized},
	{services.ErrForbidden, fiber.StatusForbidden},
	{services.ErrNotFound, fiber.StatusNotFound},
	{services.ErrInvalidInput, fiber.StatusBadRequest},
	{services.ErrInvalidTransition, fiber.StatusConflict},
	{services.ErrDuplicateEngagement, fiber.StatusConflict},
	{services.ErrDuplicateLedgerEntry, fiber.StatusConflict},
	{services.ErrOpportunityClosed, fiber.StatusConflict},
	{services.ErrRewardUnavailable, fiber.StatusConflict},
	{services.ErrAchievementNotClaimable, fiber.StatusConflict},
	{services.ErrInsufficientPoints, fiber.StatusUnprocessableEntity},
	{services.ErrConnectionFailure, fiber.StatusBadGateway},
}

// fail maps a service error to its status and an {"error": ...} body.
// Unknown errors are logged and hidden behind a 500.
func fail(c *fiber.Ctx, logger *zap.Logger, err error) error {
	for _, m := range statusByError {
		if errors.Is(err, m.err) {
			return c.Status(m.status).JSON(fiber.Map{"error": err.Error()})
		}
	}
	logger.Error("[HTTP] request failed",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}
