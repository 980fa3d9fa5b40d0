package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/SchoolPay/internal/pkg/payments"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/usercontext"
)

// CheckoutController starts or resumes a payment for the calling user.
type CheckoutController struct {
	checkout *payments.CheckoutService
}

func NewCheckoutController(checkout *payments.CheckoutService) *CheckoutController {
	return &CheckoutController{checkout: checkout}
}

// HandleCheckout returns the session the caller should pay. A reused
// attempt answers 200, a new session 201.
// POST /concepts/:id/checkout
func (cc *CheckoutController) HandleCheckout(c *fiber.Ctx) error {
	conceptID, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid concept id")
	}
	userID := usercontext.GetUserID(c)

	result, err := cc.checkout.Checkout(c.UserContext(), userID, conceptID)
	if err != nil {
		return respondError(c, err)
	}

	status := fiber.StatusCreated
	if result.Reused {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{
		"payment_id":   result.Payment.ID,
		"session_id":   result.Payment.SessionID,
		"url":          result.Payment.URL,
		"amount":       result.Amount,
		"status":       result.Payment.Status,
		"reused":       result.Reused,
		"concept_name": result.Payment.ConceptName,
	})
}
