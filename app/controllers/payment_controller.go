package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ManuelReschke/SchoolPay/app/models"
	"github.com/ManuelReschke/SchoolPay/app/repository"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/apperror"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/payments"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/usercontext"
)

// PaymentController exposes ledger rows and billing summaries.
type PaymentController struct {
	payments repository.PaymentRepository
	summary  *payments.SummaryService
}

func NewPaymentController(ledger repository.PaymentRepository, summary *payments.SummaryService) *PaymentController {
	return &PaymentController{payments: ledger, summary: summary}
}

type paymentResponse struct {
	*models.Payment
	PendingAmount  string `json:"pending_amount"`
	OverPaidAmount string `json:"over_paid_amount"`
}

func newPaymentResponse(p *models.Payment) paymentResponse {
	return paymentResponse{
		Payment:        p,
		PendingAmount:  payments.FormatAmount(payments.PendingAmount(p)),
		OverPaidAmount: payments.FormatAmount(payments.OverPaidAmount(p)),
	}
}

// HandleGet returns one payment to its owner or to staff.
// GET /payments/:id
func (pc *PaymentController) HandleGet(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid payment id")
	}
	p, err := pc.payments.GetByID(c.UserContext(), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return respondError(c, apperror.NotFound("PaymentNotFound", "payment not found"))
	}
	if err != nil {
		return respondError(c, err)
	}
	if !usercontext.GetUserContext(c).CanSeeUser(p.UserID) {
		// Same answer as a missing row so ids cannot be probed.
		return respondError(c, apperror.NotFound("PaymentNotFound", "payment not found"))
	}
	return c.JSON(newPaymentResponse(p))
}

// HandleMySummary returns the caller's billing summary.
// GET /me/billing-summary
func (pc *PaymentController) HandleMySummary(c *fiber.Ctx) error {
	return pc.summaryFor(c, usercontext.GetUserID(c))
}

// HandleUserSummary returns a user's billing summary.
// GET /users/:userID/billing-summary
func (pc *PaymentController) HandleUserSummary(c *fiber.Ctx) error {
	userID, ok := parseIDParam(c, "userID")
	if !ok {
		return badRequest(c, "invalid user id")
	}
	if !usercontext.GetUserContext(c).CanSeeUser(userID) {
		return forbidden(c)
	}
	return pc.summaryFor(c, userID)
}

func (pc *PaymentController) summaryFor(c *fiber.Ctx, userID uint) error {
	summary, err := pc.summary.ForUser(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(summary)
}
