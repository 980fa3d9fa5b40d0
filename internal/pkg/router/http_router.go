package router

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/SchoolPay/internal/pkg/middleware"
)

const healthTimeout = 2 * time.Second

// HealthCheck probes one dependency, e.g. the database or Redis.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type HttpRouter struct {
	checks []HealthCheck
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	app.Get("/health", h.handleHealth)
}

func (h HttpRouter) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
	defer cancel()

	status := fiber.StatusOK
	deps := fiber.Map{}
	for _, check := range h.checks {
		if err := check.Check(ctx); err != nil {
			log.Warnf("[Health] %s unhealthy: %v", check.Name, err)
			deps[check.Name] = "down"
			status = fiber.StatusServiceUnavailable
			continue
		}
		deps[check.Name] = "up"
	}

	state := "ok"
	if status != fiber.StatusOK {
		state = "degraded"
	}
	return c.Status(status).JSON(fiber.Map{"status": state, "dependencies": deps})
}

func NewHttpRouter(checks ...HealthCheck) *HttpRouter {
	return &HttpRouter{checks: checks}
}
