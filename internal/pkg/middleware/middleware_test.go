package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/SchoolPay/internal/pkg/usercontext"
)

func newTestApp(handlers ...fiber.Handler) *fiber.App {
	app := fiber.New()
	chain := append([]fiber.Handler{UserContextMiddleware}, handlers...)
	chain = append(chain, func(c *fiber.Ctx) error {
		return c.JSON(usercontext.GetUserContext(c))
	})
	app.Get("/", chain...)
	return app
}

func TestUserContextMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		userID    string
		roles     string
		wantID    uint
		wantAuth  bool
		wantStaff bool
	}{
		{"anonymous", "", "", 0, false, false},
		{"malformed id", "abc", "admin", 0, false, false},
		{"zero id", "0", "admin", 0, false, false},
		{"student", "12", "student", 12, true, false},
		{"finance with spaces", " 7 ", " Finance , student ", 7, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got usercontext.UserContext
			app := fiber.New()
			app.Get("/", UserContextMiddleware, func(c *fiber.Ctx) error {
				got = usercontext.GetUserContext(c)
				return c.SendStatus(fiber.StatusNoContent)
			})

			req := httptest.NewRequest("GET", "/", nil)
			if tt.userID != "" {
				req.Header.Set(HeaderUserID, tt.userID)
			}
			if tt.roles != "" {
				req.Header.Set(HeaderUserRoles, tt.roles)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

			assert.Equal(t, tt.wantID, got.UserID)
			assert.Equal(t, tt.wantAuth, got.Authenticated)
			assert.Equal(t, tt.wantStaff, got.IsStaff())
		})
	}
}

func TestRequireUser(t *testing.T) {
	app := newTestApp(RequireUser)

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(HeaderUserID, "3")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRequireStaff(t *testing.T) {
	app := newTestApp(RequireStaff)

	tests := []struct {
		name   string
		userID string
		roles  string
		want   int
	}{
		{"anonymous", "", "", fiber.StatusUnauthorized},
		{"student", "3", "student", fiber.StatusForbidden},
		{"finance", "3", "finance", fiber.StatusOK},
		{"admin", "3", "admin", fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.userID != "" {
				req.Header.Set(HeaderUserID, tt.userID)
				req.Header.Set(HeaderUserRoles, tt.roles)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestAPIKeyAuthMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		header string
		value  string
		want   int
	}{
		{"disabled", "", "", "", fiber.StatusOK},
		{"missing", "s3cret", "", "", fiber.StatusUnauthorized},
		{"wrong", "s3cret", "X-API-Key", "nope", fiber.StatusUnauthorized},
		{"header", "s3cret", "X-API-Key", "s3cret", fiber.StatusOK},
		{"bearer", "s3cret", "Authorization", "Bearer s3cret", fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(APIKeyAuthMiddleware(tt.key))
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
