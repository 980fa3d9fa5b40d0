package payments

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/SchoolPay/app/models"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/gateway"
)

// Source says where a gateway fact came from. Only the sweep, which asks the
// gateway directly, verifies a payment into succeeded.
type Source int

const (
	SourceWebhook Source = iota
	SourceSweep
)

// ApplyFact folds a gateway fact into the payment and reports whether any
// field changed. Amounts are absolute, so applying the same fact twice
// leaves the row as the first application did.
func ApplyFact(p *models.Payment, f gateway.Fact, src Source, now time.Time) bool {
	if p.Status == models.PaymentStatusSucceeded {
		return false
	}
	before := snapshotOf(p)

	next := *p
	if f.AmountReceived != nil {
		amt := *f.AmountReceived
		next.AmountReceived = &amt
	}
	if f.PaymentIntentID != "" {
		next.PaymentIntentID = f.PaymentIntentID
	}
	if f.ProviderPaymentMethodID != "" {
		next.ProviderPaymentMethodID = f.ProviderPaymentMethodID
	}

	status := statusFor(&next, f, src)
	if p.Status.IsPaid() && !status.IsSettled() {
		// A paid row ignores stale or partial facts entirely.
		return false
	}
	p.AmountReceived = next.AmountReceived
	p.PaymentIntentID = next.PaymentIntentID
	p.ProviderPaymentMethodID = next.ProviderPaymentMethodID
	p.Status = status

	if !p.Status.IsNonPaid() || f.Status == gateway.StatusExpired {
		p.ReleaseActiveSlot()
	}

	if snapshotOf(p) == before {
		return false
	}
	stamp := now
	p.ReconciledAt = &stamp
	return true
}

func statusFor(p *models.Payment, f gateway.Fact, src Source) models.PaymentStatus {
	got := received(p)
	if p.AmountReceived != nil && got.IsPositive() {
		switch got.Cmp(p.Amount) {
		case 1:
			return models.PaymentStatusOverpaid
		case 0:
			if src == SourceSweep {
				return models.PaymentStatusSucceeded
			}
			return models.PaymentStatusPaid
		default:
			return models.PaymentStatusUnderpaid
		}
	}

	switch f.Status {
	case gateway.StatusComplete:
		if p.Amount.IsZero() {
			if src == SourceSweep {
				return models.PaymentStatusSucceeded
			}
			return models.PaymentStatusPaid
		}
		return p.Status
	case gateway.StatusRequiresAction:
		if p.Status.IsNonPaid() {
			return models.PaymentStatusRequiresAction
		}
	case gateway.StatusExpired:
		if p.Status.IsNonPaid() {
			return models.PaymentStatusUnpaid
		}
	}
	return p.Status
}

type snapshot struct {
	status      models.PaymentStatus
	received    string
	hasReceived bool
	intent      string
	method      string
	slot        string
	hasSlot     bool
}

func snapshotOf(p *models.Payment) snapshot {
	s := snapshot{
		status: p.Status,
		intent: p.PaymentIntentID,
		method: p.ProviderPaymentMethodID,
	}
	if p.AmountReceived != nil {
		s.hasReceived = true
		s.received = normalized(*p.AmountReceived)
	}
	if p.ActiveSlot != nil {
		s.hasSlot = true
		s.slot = *p.ActiveSlot
	}
	return s
}

func normalized(d decimal.Decimal) string {
	return d.StringFixed(2)
}
