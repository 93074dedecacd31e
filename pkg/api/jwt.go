package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/travigo/smartrail/pkg/broadcast"
)

// EnsureValidToken checks the bearer token and stores its subject as account_userid
func EnsureValidToken(authenticator broadcast.Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		authHeader := c.Get("Authorization")

		if authHeader == "" {
			c.SendStatus(fiber.StatusUnauthorized)
			return c.JSON(fiber.Map{
				"error": "Authorization header is required",
			})
		}

		if len(authHeader) < 8 || !strings.EqualFold(authHeader[:7], "bearer ") {
			c.SendStatus(fiber.StatusUnauthorized)
			return c.JSON(fiber.Map{
				"error": "Authorization header must be a bearer token",
			})
		}

		userID, jwtErr := authenticator.Authenticate(c.UserContext(), authHeader[7:])

		if jwtErr == nil {
			c.Locals("account_userid", userID)

			return c.Next()
		} else {
			c.SendStatus(fiber.StatusUnauthorized)
			return c.JSON(fiber.Map{
				"error": "Invalid auth token",
			})
		}
	}
}
