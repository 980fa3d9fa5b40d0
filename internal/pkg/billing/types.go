package billing

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	SessionID       string
	PayloadJSON     string
	SignatureValid  bool
}

// MidtransNotification is the HTTP notification body Midtrans posts after a
// transaction changes state.
type MidtransNotification struct {
	TransactionTime   string `json:"transaction_time"`
	TransactionStatus string `json:"transaction_status"`
	TransactionID     string `json:"transaction_id"`
	StatusCode        string `json:"status_code"`
	SignatureKey      string `json:"signature_key"`
	OrderID           string `json:"order_id"`
	GrossAmount       string `json:"gross_amount"`
	PaymentType       string `json:"payment_type"`
	FraudStatus       string `json:"fraud_status"`
}

// EventID identifies one delivery. Midtrans retries the same status change
// with the same transaction id, and each status change is a new event.
func (n MidtransNotification) EventID() string {
	if n.TransactionID == "" {
		return ""
	}
	return n.TransactionID + ":" + n.TransactionStatus
}

// WebhookOutcome says what happened to a notification.
type WebhookOutcome string

const (
	WebhookApplied   WebhookOutcome = "applied"
	WebhookUnchanged WebhookOutcome = "unchanged"
	WebhookDuplicate WebhookOutcome = "duplicate"
	WebhookIgnored   WebhookOutcome = "ignored"
)

// WebhookResult is returned to the gateway as the acknowledgement body.
type WebhookResult struct {
	Outcome   WebhookOutcome `json:"outcome"`
	EventID   uint           `json:"event_id,omitempty"`
	PaymentID uint           `json:"payment_id,omitempty"`
	Status    string         `json:"payment_status,omitempty"`
	Reason    string         `json:"reason,omitempty"`
}
