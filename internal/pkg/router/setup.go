package router

import (
	"github.com/gofiber/fiber/v2"

	apiv1 "github.com/ManuelReschke/SchoolPay/internal/api/v1"
)

// Router installs a set of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

func InstallRouter(app *fiber.App, server *apiv1.APIServer, opts apiv1.Options, checks ...HealthCheck) {
	// HttpRouter goes first: it installs the global UserContext middleware
	// that the API guards read.
	setup(app, NewHttpRouter(checks...), NewApiRouter(server, opts))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
