package gateway

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/SchoolPay/app/models"
)

// ErrSessionNotFound is returned when the gateway has no record of a session.
var ErrSessionNotFound = errors.New("gateway session not found")

// Status is the gateway's view of a checkout session, reduced to what the
// ledger cares about.
type Status string

const (
	// StatusOpen: the session exists and nothing settled yet.
	StatusOpen Status = "open"
	// StatusRequiresAction: the payer must complete an extra step (3DS, bank transfer).
	StatusRequiresAction Status = "requires_action"
	// StatusComplete: money settled; AmountReceived carries the amount.
	StatusComplete Status = "complete"
	// StatusExpired: expired, cancelled or denied. Nothing will settle.
	StatusExpired Status = "expired"
)

// Customer identifies the payer towards the gateway.
type Customer struct {
	UserID uint
	Name   string
	Email  string
}

// Session is a hosted checkout the payer is redirected to.
type Session struct {
	ID  string
	URL string
}

// Fact is the authoritative state of a session as reported by the gateway.
// Amounts are absolute, never deltas.
type Fact struct {
	SessionID               string
	Status                  Status
	AmountReceived          *decimal.Decimal
	PaymentIntentID         string
	ProviderPaymentMethodID string
}

// PaymentGateway is the contract every payment provider adapter implements.
type PaymentGateway interface {
	Provider() string
	CreateCustomer(ctx context.Context, customer Customer) (string, error)
	CreateCheckoutSession(ctx context.Context, customerID string, concept *models.PaymentConcept, amount decimal.Decimal, userID uint) (*Session, error)
	// ExpireSessionIfPending expires a session nobody paid yet. It returns
	// false when the session can no longer be expired (already paid or in
	// flight).
	ExpireSessionIfPending(ctx context.Context, sessionID string) (bool, error)
	GetSessionStatus(ctx context.Context, sessionID string) (*Fact, error)
}
