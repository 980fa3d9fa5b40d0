package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentStatus_Predicates(t *testing.T) {
	tests := []struct {
		status       PaymentStatus
		nonPaid      bool
		settled      bool
		reconcilable bool
	}{
		{PaymentStatusDefault, true, false, true},
		{PaymentStatusUnpaid, true, false, true},
		{PaymentStatusRequiresAction, true, false, true},
		{PaymentStatusUnderpaid, false, false, true},
		{PaymentStatusOverpaid, false, true, true},
		{PaymentStatusPaid, false, true, true},
		{PaymentStatusSucceeded, false, true, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.True(t, tt.status.IsValid())
			assert.Equal(t, tt.nonPaid, tt.status.IsNonPaid())
			assert.Equal(t, tt.settled, tt.status.IsSettled())
			assert.Equal(t, tt.reconcilable, tt.status.IsReconcilable())
		})
	}
	assert.False(t, PaymentStatus("refunded").IsValid())
}

func TestParseAmountReceived(t *testing.T) {
	got, err := ParseAmountReceived(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	empty := ""
	got, err = ParseAmountReceived(&empty)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.IsZero())

	raw := "400.00"
	got, err = ParseAmountReceived(&raw)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("400")))

	bad := "four hundred"
	_, err = ParseAmountReceived(&bad)
	assert.Error(t, err)
}

func TestPayment_ActiveSlot(t *testing.T) {
	conceptID := uint(7)
	p := &Payment{UserID: 3, PaymentConceptID: &conceptID}

	assert.False(t, p.HoldsActiveSlot())
	p.ClaimActiveSlot()
	require.True(t, p.HoldsActiveSlot())
	assert.Equal(t, "3:7", *p.ActiveSlot)

	p.ReleaseActiveSlot()
	assert.False(t, p.HoldsActiveSlot())

	orphan := &Payment{UserID: 3}
	orphan.ClaimActiveSlot()
	assert.False(t, orphan.HoldsActiveSlot())
}

func TestPaymentConcept_DateHelpers(t *testing.T) {
	now := time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)
	end := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	c := &PaymentConcept{
		Status:    ConceptStatusActive,
		StartDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		EndDate:   &end,
	}

	assert.True(t, c.HasStarted(now))
	assert.False(t, c.IsExpired(now))
	assert.True(t, c.IsExpired(now.Add(time.Minute)))

	c.StartDate = c.StartDate.AddDate(0, 0, 1)
	assert.False(t, c.HasStarted(now))

	c.EndDate = nil
	assert.False(t, c.IsExpired(now.AddDate(10, 0, 0)))
}
