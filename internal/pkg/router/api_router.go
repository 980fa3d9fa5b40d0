package router

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	apiv1 "github.com/ManuelReschke/SchoolPay/internal/api/v1"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/env"
)

type ApiRouter struct {
	server *apiv1.APIServer
	opts   apiv1.Options
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        env.GetEnvInt("API_RATE_LIMIT", 120),
		Expiration: time.Minute,
		// Gateway deliveries come in bursts from a few addresses.
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/api/v1/webhooks/")
		},
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	apiv1.RegisterHandlers(v1, h.server, h.opts)
}

func NewApiRouter(server *apiv1.APIServer, opts apiv1.Options) *ApiRouter {
	return &ApiRouter{server: server, opts: opts}
}
