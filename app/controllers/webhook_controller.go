package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/SchoolPay/internal/pkg/billing"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/metrics/counter"
)

const webhookTimeout = 15 * time.Second

// WebhookController receives gateway notifications.
type WebhookController struct {
	billing  *billing.Service
	counters *counter.Counter
}

// NewWebhookController creates the controller. counters may be nil.
func NewWebhookController(svc *billing.Service, counters *counter.Counter) *WebhookController {
	return &WebhookController{billing: svc, counters: counters}
}

// HandleMidtransNotification applies one Midtrans notification. Any 2xx
// answer stops Midtrans from redelivering, so only failures worth a retry
// answer 5xx.
// POST /webhooks/midtrans
func (wc *WebhookController) HandleMidtransNotification(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	result, err := wc.billing.HandleMidtransNotification(ctx, rawBody)
	switch {
	case errors.Is(err, billing.ErrInvalidSignature):
		wc.counters.Incr(ctx, counter.WebhookPrefix+"rejected")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	case errors.Is(err, billing.ErrInvalidPayload):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": err.Error()})
	case err != nil:
		log.Errorf("[Webhook] Midtrans notification failed: %v", err)
		wc.counters.Incr(ctx, counter.WebhookPrefix+"failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_processing_failed"})
	}
	wc.counters.Incr(ctx, counter.WebhookPrefix+string(result.Outcome))
	return c.Status(fiber.StatusOK).JSON(result)
}
