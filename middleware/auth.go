package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"roundabout/services"
)

const sessionLocal = "session"

// SessionMiddleware requires a valid bearer token. The session is attached to
// the request before any handler runs; missing or invalid tokens get a 401.
func SessionMiddleware(sessions *services.SessionManager, logger *zap.Logger) fiber.Handler {
	logger = logger.Named("auth")
	return func(c *fiber.Ctx) error {
		return authenticate(c, sessions, logger, bearerToken(c.Get(fiber.HeaderAuthorization)))
	}
}

func bearerToken(header string) string {
	token := strings.TrimSpace(header)
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return ""
}

func authenticate(c *fiber.Ctx, sessions *services.SessionManager, logger *zap.Logger, token string) error {
	if token == "" {
		logger.Debug("[AUTH] missing bearer token", zap.String("path", c.Path()))
		return unauthorized(c)
	}
	sess, err := sessions.Init(c.UserContext(), token)
	if err != nil {
		if !errors.Is(err, services.ErrAuthenticationRequired) {
			logger.Error("[AUTH] session init failed", zap.String("path", c.Path()), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to initialize session"})
		}
		logger.Info("[AUTH] ❌ rejected token", zap.String("path", c.Path()), zap.Error(err))
		return unauthorized(c)
	}

	c.Locals(sessionLocal, sess)
	c.SetUserContext(services.WithSession(c.UserContext(), sess))
	return c.Next()
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": services.ErrAuthenticationRequired.Error(),
	})
}

// Session returns the request's session. Only valid behind SessionMiddleware.
func Session(c *fiber.Ctx) *services.Session {
	sess, _ := c.Locals(sessionLocal).(*services.Session)
	return sess
}
