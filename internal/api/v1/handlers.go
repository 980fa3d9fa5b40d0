package apiv1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/SchoolPay/app/controllers"
)

// Pong is the body of GET /ping.
type Pong struct {
	Ping string `json:"ping"`
}

// APIServer bundles the controllers served under /api/v1.
type APIServer struct {
	Concepts *controllers.ConceptController
	Checkout *controllers.CheckoutController
	Payments *controllers.PaymentController
	Webhooks *controllers.WebhookController
	Admin    *controllers.AdminController
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(Pong{Ping: "pong"})
}
