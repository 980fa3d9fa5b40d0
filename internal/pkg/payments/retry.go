package payments

import (
	"errors"
	"time"

	"github.com/ManuelReschke/SchoolPay/app/models"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/apperror"
)

// DefaultRetryWindow is how long a checkout attempt stays reusable.
const DefaultRetryWindow = time.Hour

// RetryReason names the rule that rejected a retry.
type RetryReason string

const (
	RetryRecencyExceeded       RetryReason = "recency"
	RetryAmountAlreadyReceived RetryReason = "amount_received"
	RetryTerminalState         RetryReason = "terminal_state"
)

var retryMessages = map[RetryReason]string{
	RetryRecencyExceeded:       "previous attempt was more than 1 hour ago",
	RetryAmountAlreadyReceived: "payment already received an amount",
	RetryTerminalState:         "payment already in terminal state",
}

// ErrRetryNotAllowed matches every *RetryNotAllowedError with errors.Is.
var ErrRetryNotAllowed = apperror.New(apperror.KindRetryNotAllowed, "", "payment retry not allowed")

// RetryNotAllowedError reports which rule blocked reusing a payment.
type RetryNotAllowedError struct {
	Reason    RetryReason
	PaymentID uint
}

func (e *RetryNotAllowedError) Error() string {
	return "payment retry not allowed: " + retryMessages[e.Reason]
}

func (e *RetryNotAllowedError) Is(target error) bool {
	return target == ErrRetryNotAllowed
}

// AppError exposes the rejection in the shared error taxonomy.
func (e *RetryNotAllowedError) AppError() *apperror.Error {
	return apperror.Wrap(apperror.KindRetryNotAllowed, "PaymentRetryNotAllowed", retryMessages[e.Reason], e)
}

// RetryPolicy decides whether an open attempt may be reused.
type RetryPolicy struct {
	Window time.Duration
}

func NewRetryPolicy(window time.Duration) RetryPolicy {
	if window <= 0 {
		window = DefaultRetryWindow
	}
	return RetryPolicy{Window: window}
}

// IsRecent is true while the attempt is strictly younger than the window. An
// attempt exactly one window old is no longer recent.
func (r RetryPolicy) IsRecent(p *models.Payment, now time.Time) bool {
	return now.Sub(p.CreatedAt) < r.window()
}

// EnsureValidToRepay checks, in order, recency, that nothing was received
// (any non-nil amount counts, including zero), and that the status is still
// non-paid.
func (r RetryPolicy) EnsureValidToRepay(p *models.Payment, now time.Time) error {
	switch {
	case !r.IsRecent(p, now):
		return &RetryNotAllowedError{Reason: RetryRecencyExceeded, PaymentID: p.ID}
	case p.AmountReceived != nil:
		return &RetryNotAllowedError{Reason: RetryAmountAlreadyReceived, PaymentID: p.ID}
	case !p.Status.IsNonPaid():
		return &RetryNotAllowedError{Reason: RetryTerminalState, PaymentID: p.ID}
	}
	return nil
}

func (r RetryPolicy) window() time.Duration {
	if r.Window <= 0 {
		return DefaultRetryWindow
	}
	return r.Window
}

// RetryReasonOf extracts the rejection reason from err, if any.
func RetryReasonOf(err error) (RetryReason, bool) {
	var re *RetryNotAllowedError
	if errors.As(err, &re) {
		return re.Reason, true
	}
	return "", false
}
