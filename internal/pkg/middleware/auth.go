package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/SchoolPay/internal/pkg/usercontext"
)

// RequireUser rejects anonymous requests with JSON 401.
func RequireUser(c *fiber.Ctx) error {
	if !usercontext.GetUserContext(c).Authenticated {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "X-User-ID required",
		})
	}
	return c.Next()
}

// RequireStaff allows only finance or admin callers.
func RequireStaff(c *fiber.Ctx) error {
	u := usercontext.GetUserContext(c)
	if !u.Authenticated {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "X-User-ID required",
		})
	}
	if !u.IsStaff() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "forbidden",
			"message": "finance or admin role required",
		})
	}
	return c.Next()
}
