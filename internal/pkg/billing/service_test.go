package billing

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/SchoolPay/app/models"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/memrepo"
)

const testServerKey = "SB-Mid-server-test"

func notification(t *testing.T, orderID, status, gross string) []byte {
	t.Helper()
	n := MidtransNotification{
		TransactionStatus: status,
		TransactionID:     "tx-" + orderID,
		StatusCode:        "200",
		OrderID:           orderID,
		GrossAmount:       gross,
		PaymentType:       "bank_transfer",
	}
	n.SignatureKey = MidtransSignature(n.OrderID, n.StatusCode, n.GrossAmount, testServerKey)
	body, err := json.Marshal(n)
	require.NoError(t, err)
	return body
}

func newWebhookFixture() (*Service, *memrepo.Store, memrepo.WebhookEvents, models.Payment) {
	store := memrepo.New()
	conceptID := uint(3)
	p := models.Payment{
		ConceptName:      "Tuition",
		Amount:           decimal.RequireFromString("1000"),
		Status:           models.PaymentStatusDefault,
		UserID:           8,
		PaymentConceptID: &conceptID,
		SessionID:        "SP-8-3-abc",
	}
	p.ClaimActiveSlot()
	p = store.AddPayment(p)

	events := store.WebhookEvents()
	return NewService(events, store.Repositories().Payment, testServerKey), store, events, p
}

func TestVerifyMidtransSignature(t *testing.T) {
	n := MidtransNotification{OrderID: "o-1", StatusCode: "200", GrossAmount: "1000.00"}
	n.SignatureKey = MidtransSignature(n.OrderID, n.StatusCode, n.GrossAmount, testServerKey)

	assert.True(t, VerifyMidtransSignature(n, testServerKey))
	assert.False(t, VerifyMidtransSignature(n, "other-key"))
	assert.False(t, VerifyMidtransSignature(n, ""))

	n.GrossAmount = "1.00"
	assert.False(t, VerifyMidtransSignature(n, testServerKey))
}

func TestHandleMidtransNotification_Settlement(t *testing.T) {
	svc, store, _, p := newWebhookFixture()

	res, err := svc.HandleMidtransNotification(context.Background(), notification(t, p.SessionID, "settlement", "1000.00"))
	require.NoError(t, err)
	assert.Equal(t, WebhookApplied, res.Outcome)
	assert.Equal(t, p.ID, res.PaymentID)

	got, _ := store.Payment(p.ID)
	assert.Equal(t, models.PaymentStatusPaid, got.Status)
	assert.False(t, got.HoldsActiveSlot())
	assert.Equal(t, "tx-"+p.SessionID, got.PaymentIntentID)
}

func TestHandleMidtransNotification_Duplicate(t *testing.T) {
	svc, store, _, p := newWebhookFixture()
	body := notification(t, p.SessionID, "settlement", "400.00")

	_, err := svc.HandleMidtransNotification(context.Background(), body)
	require.NoError(t, err)
	first, _ := store.Payment(p.ID)

	res, err := svc.HandleMidtransNotification(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, WebhookDuplicate, res.Outcome)

	second, _ := store.Payment(p.ID)
	assert.Equal(t, models.PaymentStatusUnderpaid, second.Status)
	assert.True(t, first.AmountReceived.Equal(*second.AmountReceived))
}

func TestHandleMidtransNotification_BadSignature(t *testing.T) {
	svc, store, events, p := newWebhookFixture()
	body := notification(t, p.SessionID, "settlement", "1000.00")
	svc.serverKey = "rotated"

	_, err := svc.HandleMidtransNotification(context.Background(), body)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	got, _ := store.Payment(p.ID)
	assert.Equal(t, models.PaymentStatusDefault, got.Status)
	assert.Empty(t, events.Events())
}

func TestHandleMidtransNotification_UnknownOrder(t *testing.T) {
	svc, _, events, _ := newWebhookFixture()

	res, err := svc.HandleMidtransNotification(context.Background(), notification(t, "SP-unknown", "settlement", "10.00"))
	require.NoError(t, err)
	assert.Equal(t, WebhookIgnored, res.Outcome)
	require.Len(t, events.Events(), 1)
}

func TestHandleMidtransNotification_InvalidPayload(t *testing.T) {
	svc, _, _, _ := newWebhookFixture()

	_, err := svc.HandleMidtransNotification(context.Background(), []byte("{"))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = svc.HandleMidtransNotification(context.Background(), []byte(`{"order_id":"x"}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}
