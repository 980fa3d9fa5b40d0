package middleware

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/SchoolPay/internal/pkg/usercontext"
)

// Headers set by the upstream auth gateway
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRoles = "X-User-Roles"
)

// UserContextMiddleware builds the request identity from the gateway headers.
// A missing or malformed X-User-ID leaves the request anonymous.
func UserContextMiddleware(c *fiber.Ctx) error {
	raw := strings.TrimSpace(c.Get(HeaderUserID))
	id, err := strconv.ParseUint(raw, 10, 64)
	if raw == "" || err != nil || id == 0 {
		usercontext.SetUserContext(c, usercontext.UserContext{})
		return c.Next()
	}

	var roles []string
	for _, r := range strings.Split(c.Get(HeaderUserRoles), ",") {
		if r = strings.ToLower(strings.TrimSpace(r)); r != "" {
			roles = append(roles, r)
		}
	}

	usercontext.SetUserContext(c, usercontext.UserContext{
		UserID:        uint(id),
		Roles:         roles,
		Authenticated: true,
	})
	return c.Next()
}
