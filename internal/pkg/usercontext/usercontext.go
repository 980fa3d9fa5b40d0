package usercontext

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Locals key holding the UserContext of the request
const LocalsKey = "USER_CONTEXT"

// Role names the upstream gateway forwards in X-User-Roles
const (
	RoleAdmin   = "admin"
	RoleFinance = "finance"
)

// UserContext represents the caller identity for a request
type UserContext struct {
	UserID        uint     `json:"user_id"`
	Roles         []string `json:"roles"`
	Authenticated bool     `json:"authenticated"`
}

// HasRole reports whether the caller carries role
func (u UserContext) HasRole(role string) bool {
	for _, r := range u.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// IsStaff is true for callers that manage concepts and run admin tasks
func (u UserContext) IsStaff() bool {
	return u.HasRole(RoleAdmin) || u.HasRole(RoleFinance)
}

// CanSeeUser is true when the caller is the user or staff
func (u UserContext) CanSeeUser(userID uint) bool {
	return u.Authenticated && (u.UserID == userID || u.IsStaff())
}

// GetUserContext retrieves the user context from fiber context
// Returns an anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(LocalsKey).(UserContext); ok {
		return ctx
	}
	return UserContext{}
}

// SetUserContext stores the user context on the request
func SetUserContext(c *fiber.Ctx, u UserContext) {
	c.Locals(LocalsKey, u)
}

// GetUserID returns the current user's ID, or 0 if anonymous
func GetUserID(c *fiber.Ctx) uint {
	return GetUserContext(c).UserID
}
