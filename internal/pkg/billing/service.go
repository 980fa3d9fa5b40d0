package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/SchoolPay/app/models"
	"github.com/ManuelReschke/SchoolPay/app/repository"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/gateway/midtrans"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/payments"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
)

// Service ingests gateway notifications into the payment ledger.
type Service struct {
	repo      Repository
	payments  repository.PaymentRepository
	serverKey string
	now       func() time.Time
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository, payments repository.PaymentRepository, serverKey string) *Service {
	return &Service{repo: repo, payments: payments, serverKey: serverKey, now: time.Now}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, serverKey string) *Service {
	return NewService(NewRepository(db), repository.NewPaymentRepository(db), serverKey)
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		SessionID:       strings.TrimSpace(in.SessionID),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(ctx, event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, paymentID *uint, processingErr error) error {
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(ctx, webhookEventID, paymentID, errMsg)
}

// HandleMidtransNotification verifies, deduplicates and applies one
// notification. Unknown orders are acknowledged and logged so Midtrans stops
// retrying; the sweep picks up anything missed.
func (s *Service) HandleMidtransNotification(ctx context.Context, body []byte) (*WebhookResult, error) {
	var n MidtransNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if n.OrderID == "" || n.TransactionStatus == "" {
		return nil, fmt.Errorf("%w: order_id and transaction_status are required", ErrInvalidPayload)
	}
	if !VerifyMidtransSignature(n, s.serverKey) {
		log.Warnf("[Webhook] Rejected Midtrans notification for order %s: bad signature", n.OrderID)
		return nil, ErrInvalidSignature
	}

	created, event, err := s.RecordWebhookEvent(ctx, WebhookEventInput{
		Provider:        models.BillingProviderMidtrans,
		ProviderEventID: n.EventID(),
		EventType:       n.TransactionStatus,
		SessionID:       n.OrderID,
		PayloadJSON:     string(body),
		SignatureValid:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("record webhook event: %w", err)
	}
	if !created && event.IsProcessed() {
		return &WebhookResult{Outcome: WebhookDuplicate, EventID: event.ID}, nil
	}

	result, procErr := s.apply(ctx, n)
	var paymentID *uint
	if result != nil && result.PaymentID != 0 {
		paymentID = &result.PaymentID
	}
	if err := s.MarkWebhookProcessed(ctx, event.ID, paymentID, procErr); err != nil {
		log.Errorf("[Webhook] Could not mark event %d processed: %v", event.ID, err)
	}
	if procErr != nil {
		return nil, procErr
	}
	result.EventID = event.ID
	return result, nil
}

func (s *Service) apply(ctx context.Context, n MidtransNotification) (*WebhookResult, error) {
	payment, err := s.payments.GetBySessionID(ctx, n.OrderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warnf("[Webhook] No payment for Midtrans order %s", n.OrderID)
		return &WebhookResult{Outcome: WebhookIgnored, Reason: "payment not found"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load payment for order %s: %w", n.OrderID, err)
	}

	fact, err := midtrans.FactFrom(n.OrderID, n.TransactionStatus, n.FraudStatus, n.GrossAmount, n.TransactionID, n.PaymentType)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var status models.PaymentStatus
	changed, err := s.payments.ApplyGatewayFact(ctx, payment.ID, func(p *models.Payment) bool {
		c := payments.ApplyFact(p, *fact, payments.SourceWebhook, now)
		status = p.Status
		return c
	})
	if err != nil {
		return nil, fmt.Errorf("apply notification to payment %d: %w", payment.ID, err)
	}

	out := &WebhookResult{Outcome: WebhookUnchanged, PaymentID: payment.ID, Status: string(status)}
	if changed {
		out.Outcome = WebhookApplied
		log.Infof("[Webhook] Payment %d is now %s (order %s, %s)", payment.ID, status, n.OrderID, n.TransactionStatus)
	}
	return out, nil
}
