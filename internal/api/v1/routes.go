package apiv1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/SchoolPay/internal/pkg/middleware"
)

// Options configures the guards around the v1 routes.
type Options struct {
	// APIKey protects every caller-facing route when set. The gateway
	// webhook authenticates by signature instead.
	APIKey string
	// Idempotency wraps checkout. Without it checkout runs unguarded.
	Idempotency fiber.Handler
}

func passThrough(c *fiber.Ctx) error { return c.Next() }

// RegisterHandlers mounts the v1 routes on router. The request user context
// middleware must already run in front of router.
func RegisterHandlers(router fiber.Router, s *APIServer, opts Options) {
	idempotent := opts.Idempotency
	if idempotent == nil {
		idempotent = passThrough
	}
	apiKey := middleware.APIKeyAuthMiddleware(opts.APIKey)
	user := func(h ...fiber.Handler) []fiber.Handler {
		return append([]fiber.Handler{apiKey, middleware.RequireUser}, h...)
	}
	staff := func(h ...fiber.Handler) []fiber.Handler {
		return append([]fiber.Handler{apiKey, middleware.RequireStaff}, h...)
	}

	router.Get("/ping", s.GetPing)
	router.Post("/webhooks/midtrans", s.Webhooks.HandleMidtransNotification)

	// concepts
	router.Post("/concepts", staff(s.Concepts.HandleCreate)...)
	router.Get("/concepts/:id", user(s.Concepts.HandleGet)...)
	router.Patch("/concepts/:id", staff(s.Concepts.HandlePatch)...)
	router.Post("/concepts/:id/status", staff(s.Concepts.HandleChangeStatus)...)
	router.Get("/concepts/:id/eligibility/:userID", user(s.Concepts.HandleEligibility)...)
	router.Post("/concepts/:id/checkout", user(idempotent, s.Checkout.HandleCheckout)...)

	// payments
	router.Get("/payments/:id", user(s.Payments.HandleGet)...)
	router.Get("/me/billing-summary", user(s.Payments.HandleMySummary)...)
	router.Get("/users/:userID/billing-summary", user(s.Payments.HandleUserSummary)...)

	// admin
	router.Post("/admin/reconciliation/run", staff(s.Admin.HandleRunSweep)...)
	router.Get("/admin/jobs/stats", staff(s.Admin.HandleQueueStats)...)
}
