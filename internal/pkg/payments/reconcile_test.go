package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/SchoolPay/app/models"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/gateway"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/gateway/gatewaytest"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/memrepo"
)

func seedLedger(store *memrepo.Store, status models.PaymentStatus, session string) models.Payment {
	conceptID := uint(1)
	p := models.Payment{
		ConceptName:      "Lab fee",
		Amount:           amt("1000"),
		Status:           status,
		UserID:           5,
		PaymentConceptID: &conceptID,
		SessionID:        session,
		CreatedAt:        testNow,
	}
	return store.AddPayment(p)
}

func TestReconciler_Sweep(t *testing.T) {
	store := memrepo.New()
	paid := seedLedger(store, models.PaymentStatusPaid, "s-paid")
	open := seedLedger(store, models.PaymentStatusDefault, "s-open")
	partial := seedLedger(store, models.PaymentStatusDefault, "s-partial")
	done := seedLedger(store, models.PaymentStatusSucceeded, "s-done")
	broken := seedLedger(store, models.PaymentStatusUnpaid, "s-broken")
	noSession := seedLedger(store, models.PaymentStatusDefault, "")

	gw := &gatewaytest.MockGateway{}
	gw.On("GetSessionStatus", mock.Anything, "s-paid").Return(&gateway.Fact{Status: gateway.StatusComplete, AmountReceived: amtPtr("1000")}, nil)
	gw.On("GetSessionStatus", mock.Anything, "s-open").Return(&gateway.Fact{Status: gateway.StatusOpen}, nil)
	gw.On("GetSessionStatus", mock.Anything, "s-partial").Return(&gateway.Fact{Status: gateway.StatusComplete, AmountReceived: amtPtr("250")}, nil)
	gw.On("GetSessionStatus", mock.Anything, "s-broken").Return(nil, errors.New("connection reset"))

	var failed []uint
	r := NewReconciler(store.Repositories().Payment, gw, ReconcilerConfig{
		BatchSize:    2,
		Now:          func() time.Time { return testNow },
		OnRowFailure: func(p *models.Payment, _ error) { failed = append(failed, p.ID) },
	})

	report, err := r.Sweep(context.Background(), 0)
	require.NoError(t, err)

	assert.True(t, report.Completed)
	assert.Equal(t, 5, report.Scanned)
	assert.Equal(t, 2, report.Updated)
	assert.Equal(t, 1, report.Unchanged)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, noSession.ID, report.LastID)
	assert.Equal(t, []uint{broken.ID}, failed)

	got, _ := store.Payment(paid.ID)
	assert.Equal(t, models.PaymentStatusSucceeded, got.Status)
	got, _ = store.Payment(open.ID)
	assert.Equal(t, models.PaymentStatusDefault, got.Status)
	got, _ = store.Payment(partial.ID)
	assert.Equal(t, models.PaymentStatusUnderpaid, got.Status)
	assert.Equal(t, "750.00", FormatAmount(PendingAmount(&got)))

	gw.AssertNotCalled(t, "GetSessionStatus", mock.Anything, done.SessionID)
}

func TestReconciler_SweepIsIdempotent(t *testing.T) {
	store := memrepo.New()
	seedLedger(store, models.PaymentStatusDefault, "s-1")

	gw := &gatewaytest.MockGateway{}
	gw.On("GetSessionStatus", mock.Anything, "s-1").Return(&gateway.Fact{Status: gateway.StatusComplete, AmountReceived: amtPtr("400")}, nil)
	r := NewReconciler(store.Repositories().Payment, gw, ReconcilerConfig{})

	first, err := r.Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Updated)

	second, err := r.Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 1, second.Unchanged)
}

func TestReconciler_RowBudgetAndResume(t *testing.T) {
	store := memrepo.New()
	var ids []uint
	for _, s := range []string{"a", "b", "c"} {
		ids = append(ids, seedLedger(store, models.PaymentStatusDefault, s).ID)
	}

	gw := &gatewaytest.MockGateway{}
	gw.On("GetSessionStatus", mock.Anything, mock.Anything).Return(&gateway.Fact{Status: gateway.StatusOpen}, nil)
	r := NewReconciler(store.Repositories().Payment, gw, ReconcilerConfig{MaxRowsPerRun: 2})

	report, err := r.Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, report.Completed)
	assert.Equal(t, ids[1], report.LastID)

	report, err = r.Sweep(context.Background(), report.LastID)
	require.NoError(t, err)
	assert.True(t, report.Completed)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, ids[2], report.LastID)
}

func TestReconciler_CancelledContext(t *testing.T) {
	store := memrepo.New()
	seedLedger(store, models.PaymentStatusDefault, "s-1")
	r := NewReconciler(store.Repositories().Payment, &gatewaytest.MockGateway{}, ReconcilerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := r.Sweep(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, report.Completed)
}

func TestReconciler_CancelledMidBatch(t *testing.T) {
	store := memrepo.New()
	var ids []uint
	for _, s := range []string{"a", "b", "c"} {
		ids = append(ids, seedLedger(store, models.PaymentStatusDefault, s).ID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw := &gatewaytest.MockGateway{}
	gw.On("GetSessionStatus", mock.Anything, "a").Return(&gateway.Fact{Status: gateway.StatusOpen}, nil)
	gw.On("GetSessionStatus", mock.Anything, "b").Run(func(mock.Arguments) { cancel() }).Return(nil, context.Canceled)

	var failed []uint
	r := NewReconciler(store.Repositories().Payment, gw, ReconcilerConfig{
		BatchSize:    10,
		OnRowFailure: func(p *models.Payment, _ error) { failed = append(failed, p.ID) },
	})

	report, err := r.Sweep(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, report.Completed)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, ids[0], report.LastID, "the interrupted row is swept again next run")
	assert.Empty(t, failed)
	gw.AssertNotCalled(t, "GetSessionStatus", mock.Anything, "c")
}

func TestReconciler_ReconcileOne(t *testing.T) {
	store := memrepo.New()
	p := seedLedger(store, models.PaymentStatusRequiresAction, "s-1")
	done := seedLedger(store, models.PaymentStatusSucceeded, "s-2")

	gw := &gatewaytest.MockGateway{}
	gw.On("GetSessionStatus", mock.Anything, "s-1").Return(&gateway.Fact{Status: gateway.StatusExpired}, nil).Once()
	r := NewReconciler(store.Repositories().Payment, gw, ReconcilerConfig{})

	changed, err := r.ReconcileOne(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	got, _ := store.Payment(p.ID)
	assert.Equal(t, models.PaymentStatusUnpaid, got.Status)

	changed, err = r.ReconcileOne(context.Background(), done.ID)
	require.NoError(t, err)
	assert.False(t, changed)
	gw.AssertExpectations(t)
}
