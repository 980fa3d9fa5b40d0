package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the closed status taxonomy of a ledger row.
type PaymentStatus string

const (
	PaymentStatusDefault        PaymentStatus = "default"
	PaymentStatusUnpaid         PaymentStatus = "unpaid"
	PaymentStatusRequiresAction PaymentStatus = "requires_action"
	PaymentStatusUnderpaid      PaymentStatus = "underpaid"
	PaymentStatusOverpaid       PaymentStatus = "overpaid"
	PaymentStatusPaid           PaymentStatus = "paid"
	PaymentStatusSucceeded      PaymentStatus = "succeeded"
)

// ReconcilableStatuses lists every status that gateway truth may still change.
// Succeeded rows were verified by a sweep and are left alone.
var ReconcilableStatuses = []PaymentStatus{
	PaymentStatusDefault,
	PaymentStatusPaid,
	PaymentStatusUnderpaid,
	PaymentStatusOverpaid,
	PaymentStatusUnpaid,
	PaymentStatusRequiresAction,
}

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusDefault, PaymentStatusUnpaid, PaymentStatusRequiresAction,
		PaymentStatusUnderpaid, PaymentStatusOverpaid, PaymentStatusPaid, PaymentStatusSucceeded:
		return true
	}
	return false
}

// IsNonPaid is true for rows where nothing has settled yet.
func (s PaymentStatus) IsNonPaid() bool {
	return s == PaymentStatusDefault || s == PaymentStatusUnpaid || s == PaymentStatusRequiresAction
}

func (s PaymentStatus) IsUnderPaid() bool { return s == PaymentStatusUnderpaid }
func (s PaymentStatus) IsOverPaid() bool  { return s == PaymentStatusOverpaid }

// IsPaid is true for the terminal success statuses.
func (s PaymentStatus) IsPaid() bool {
	return s == PaymentStatusPaid || s == PaymentStatusSucceeded
}

// IsSettled reports whether the row covers the full charge.
func (s PaymentStatus) IsSettled() bool {
	return s.IsPaid() || s == PaymentStatusOverpaid
}

func (s PaymentStatus) IsReconcilable() bool {
	for _, r := range ReconcilableStatuses {
		if r == s {
			return true
		}
	}
	return false
}

// Payment is one ledger row per checkout attempt. Rows are never hard-deleted;
// ConceptName survives the concept being purged.
type Payment struct {
	ID                      uint             `gorm:"primaryKey" json:"id"`
	ConceptName             string           `gorm:"type:varchar(150);not null" json:"concept_name"`
	Amount                  decimal.Decimal  `gorm:"type:decimal(12,2);not null" json:"amount"`
	AmountReceived          *decimal.Decimal `gorm:"type:decimal(12,2);default:null" json:"amount_received"`
	Status                  PaymentStatus    `gorm:"type:varchar(20);not null;default:'default';index:idx_payments_status_id,priority:1" json:"status"`
	UserID                  uint             `gorm:"not null;index:idx_payments_user_concept,priority:1" json:"user_id"`
	PaymentConceptID        *uint            `gorm:"index:idx_payments_user_concept,priority:2" json:"payment_concept_id"`
	PaymentMethodID         *uint            `gorm:"default:null" json:"payment_method_id,omitempty"`
	ProviderPaymentMethodID string           `gorm:"type:varchar(191);default:''" json:"provider_payment_method_id"`
	PaymentIntentID         string           `gorm:"type:varchar(191);default:'';index" json:"payment_intent_id"`
	URL                     string           `gorm:"type:varchar(500);default:''" json:"url"`
	SessionID               string           `gorm:"type:varchar(191);default:'';index" json:"session_id"`
	ActiveSlot              *string          `gorm:"type:varchar(64);default:null;uniqueIndex" json:"-"`
	ReconciledAt            *time.Time       `gorm:"type:timestamp;default:null" json:"reconciled_at,omitempty"`
	CreatedAt               time.Time        `gorm:"autoCreateTime;index:idx_payments_status_id,priority:2" json:"created_at"`
	UpdatedAt               time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// ActiveSlotKey is the value held in payments.active_slot by the single open
// attempt for a (user, concept) pair. The unique index backs up the advisory lock.
func ActiveSlotKey(userID, conceptID uint) string {
	return fmt.Sprintf("%d:%d", userID, conceptID)
}

// HoldsActiveSlot reports whether the row is the open attempt for its pair.
func (p *Payment) HoldsActiveSlot() bool {
	return p.ActiveSlot != nil && *p.ActiveSlot != ""
}

// ReleaseActiveSlot frees the (user, concept) slot.
func (p *Payment) ReleaseActiveSlot() {
	p.ActiveSlot = nil
}

// ClaimActiveSlot marks the row as the open attempt for its pair.
func (p *Payment) ClaimActiveSlot() {
	if p.PaymentConceptID == nil {
		return
	}
	key := ActiveSlotKey(p.UserID, *p.PaymentConceptID)
	p.ActiveSlot = &key
}

// ParseAmountReceived converts a gateway-reported amount. A nil input means
// "nothing reported" and stays nil; an empty string counts as a reported
// (zero) amount.
func ParseAmountReceived(raw *string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	s := strings.TrimSpace(*raw)
	if s == "" {
		z := decimal.Zero
		return &z, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return &d, nil
}
