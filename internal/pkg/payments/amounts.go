package payments

import (
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/SchoolPay/app/models"
)

// received treats a missing amount as zero.
func received(p *models.Payment) decimal.Decimal {
	if p.AmountReceived == nil {
		return decimal.Zero
	}
	return *p.AmountReceived
}

// PendingAmount is max(amount - received, 0).
func PendingAmount(p *models.Payment) decimal.Decimal {
	pending := p.Amount.Sub(received(p))
	if pending.IsNegative() {
		return decimal.Zero
	}
	return pending
}

// OverPaidAmount is max(received - amount, 0).
func OverPaidAmount(p *models.Payment) decimal.Decimal {
	over := received(p).Sub(p.Amount)
	if over.IsNegative() {
		return decimal.Zero
	}
	return over
}

// FormatAmount renders money with two decimals, e.g. "600.00".
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// CheckoutAmount is what a new session for concept should charge: the
// pending amount of the latest underpaid attempt if there is one, otherwise
// the full concept amount.
func CheckoutAmount(concept *models.PaymentConcept, history []models.Payment) decimal.Decimal {
	if u := latestUnderpaid(history); u != nil {
		return PendingAmount(u)
	}
	return concept.Amount
}

func latestUnderpaid(history []models.Payment) *models.Payment {
	var latest *models.Payment
	for i := range history {
		p := &history[i]
		if p.Status.IsUnderPaid() && (latest == nil || p.ID > latest.ID) {
			latest = p
		}
	}
	return latest
}
