package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/juniorlance/juniorlance_be/internal/utils"
)

// JWTFromCookie authenticates the request from the session cookie and stores
// the validated claims for AttachJWTLocals.
func JWTFromCookie(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := c.Cookies("jl_token")
		if tokenStr == "" {
			return fiber.ErrUnauthorized
		}

		claims, err := utils.ParseJWT(secret, tokenStr)
		if err != nil {
			return fiber.ErrUnauthorized
		}

		c.Locals("claims", claims)
		return c.Next()
	}
}
