package jobqueue

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/SchoolPay/app/models"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/cache"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/cache/cachetest"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/concepts"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/gateway"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/gateway/gatewaytest"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/memrepo"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/metrics/counter"
)

const isolatedManagerTestRedisDB = 15

type managerFixture struct {
	manager *Manager
	client  *redis.Client
	store   *memrepo.Store
	gw      *gatewaytest.MockGateway
}

func newManagerFixture(t *testing.T, maxRowsPerRun int) *managerFixture {
	t.Helper()

	settings := models.DefaultPaymentSettings()
	settings.ReconcileBatchSize = 2
	settings.ReconcileMaxRowsPerRun = maxRowsPerRun
	models.SetPaymentSettings(settings)
	t.Cleanup(func() { models.SetPaymentSettings(nil) })

	client := cachetest.NewIsolatedClient(t, isolatedManagerTestRedisDB)
	store := memrepo.New()
	repos := store.Repositories()
	gw := &gatewaytest.MockGateway{}

	m := NewManager(client, repos.Payment, gw, concepts.NewPurger(repos.Concept), Config{Workers: 1})
	return &managerFixture{manager: m, client: client, store: store, gw: gw}
}

func (f *managerFixture) seedOpenPayment(session string) models.Payment {
	conceptID := uint(1)
	return f.store.AddPayment(models.Payment{
		ConceptName:      "Library fee",
		Amount:           decimal.NewFromInt(500),
		Status:           models.PaymentStatusDefault,
		UserID:           8,
		PaymentConceptID: &conceptID,
		SessionID:        session,
		CreatedAt:        time.Now().Add(-2 * time.Hour),
	})
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("RECONCILE_SCHEDULE", "")
	t.Setenv("PURGE_SCHEDULE", "")
	cfg := ConfigFromEnv()
	assert.Equal(t, DefaultSweepSchedule, cfg.SweepSchedule)
	assert.Equal(t, DefaultPurgeSchedule, cfg.PurgeSchedule)
	assert.Equal(t, DefaultSweepTimeout, cfg.SweepTimeout)
}

func TestManager_SetAndGet(t *testing.T) {
	SetManager(nil)
	assert.Nil(t, GetManager())

	m := &Manager{}
	SetManager(m)
	t.Cleanup(func() { SetManager(nil) })
	assert.Same(t, m, GetManager())
}

func TestManager_RunSweepOnce_ResumesFromCursor(t *testing.T) {
	f := newManagerFixture(t, 2)
	ctx := context.Background()

	first := f.seedOpenPayment("s-1")
	second := f.seedOpenPayment("s-2")
	third := f.seedOpenPayment("s-3")
	f.gw.On("GetSessionStatus", mock.Anything, mock.Anything).Return(&gateway.Fact{Status: gateway.StatusOpen}, nil)

	report, err := f.manager.RunSweepOnce(ctx)
	require.NoError(t, err)
	assert.False(t, report.Completed)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, second.ID, report.LastID)

	stored, err := f.client.Get(ctx, SweepCursorKey).Result()
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatUint(uint64(second.ID), 10), stored)

	report, err = f.manager.RunSweepOnce(ctx)
	require.NoError(t, err)
	assert.True(t, report.Completed)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, third.ID, report.LastID)

	_, err = f.client.Get(ctx, SweepCursorKey).Result()
	assert.ErrorIs(t, err, redis.Nil, "a completed sweep clears the cursor")

	f.gw.AssertNumberOfCalls(t, "GetSessionStatus", 3)
	f.gw.AssertCalled(t, "GetSessionStatus", mock.Anything, first.SessionID)

	counters, err := f.manager.Counters().Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counters[counter.SweepRuns])
	assert.Equal(t, int64(3), counters[counter.SweepScanned])
}

func TestManager_RunSweepOnce_KeepsCursorWhenInterrupted(t *testing.T) {
	f := newManagerFixture(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := f.seedOpenPayment("s-1")
	f.seedOpenPayment("s-2")
	f.seedOpenPayment("s-3")
	f.gw.On("GetSessionStatus", mock.Anything, "s-1").Return(&gateway.Fact{Status: gateway.StatusOpen}, nil)
	f.gw.On("GetSessionStatus", mock.Anything, "s-2").Run(func(mock.Arguments) { cancel() }).Return(nil, context.Canceled)

	report, err := f.manager.RunSweepOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, first.ID, report.LastID)
	assert.Equal(t, 0, report.Failed)

	bg := context.Background()
	stored, err := f.client.Get(bg, SweepCursorKey).Result()
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatUint(uint64(first.ID), 10), stored)

	size, err := f.manager.GetQueue().GetQueueSize(bg)
	require.NoError(t, err)
	assert.Equal(t, int64(0), size, "an interrupted row is not queued for retry")

	counters, err := f.manager.Counters().Snapshot(bg)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counters[counter.SweepRuns])
}

func TestManager_RunSweepOnce_IgnoresMalformedCursor(t *testing.T) {
	f := newManagerFixture(t, 0)
	ctx := context.Background()

	f.seedOpenPayment("s-1")
	f.gw.On("GetSessionStatus", mock.Anything, "s-1").Return(&gateway.Fact{Status: gateway.StatusOpen}, nil)
	require.NoError(t, f.client.Set(ctx, SweepCursorKey, "not-a-number", 0).Err())

	report, err := f.manager.RunSweepOnce(ctx)
	require.NoError(t, err)
	assert.True(t, report.Completed)
	assert.Equal(t, 1, report.Scanned)
}

func TestManager_RunSweepOnce_SingleInstance(t *testing.T) {
	f := newManagerFixture(t, 0)
	ctx := context.Background()

	release, ok, err := cache.NewLocker(f.client).TryLock(ctx, sweepLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	defer release()

	_, err = f.manager.RunSweepOnce(ctx)
	assert.ErrorIs(t, err, ErrSweepRunning)
	f.gw.AssertNotCalled(t, "GetSessionStatus", mock.Anything, mock.Anything)
}

func TestManager_FailedRowIsRetriedThroughQueue(t *testing.T) {
	f := newManagerFixture(t, 0)
	ctx := context.Background()

	p := f.seedOpenPayment("s-flaky")
	f.gw.On("GetSessionStatus", mock.Anything, "s-flaky").Return(nil, errors.New("connection reset")).Once()
	f.gw.On("GetSessionStatus", mock.Anything, "s-flaky").
		Return(&gateway.Fact{Status: gateway.StatusComplete, AmountReceived: decimalPtr("500")}, nil).Once()

	report, err := f.manager.RunSweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	q := f.manager.GetQueue()
	size, err := q.GetQueueSize(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), size)

	job := takeJob(t, q)
	assert.Equal(t, JobTypeReconcilePayment, job.Type)
	payload, err := ReconcilePaymentJobPayloadFromMap(job.Payload)
	require.NoError(t, err)
	assert.Equal(t, p.ID, payload.PaymentID)
	assert.Contains(t, payload.Reason, "connection reset")

	q.processJob(ctx, job)

	got, ok := f.store.Payment(p.ID)
	require.True(t, ok)
	assert.Equal(t, models.PaymentStatusSucceeded, got.Status)
	f.gw.AssertExpectations(t)
}

func TestReconcilePaymentProcessor_MissingPaymentCompletes(t *testing.T) {
	f := newManagerFixture(t, 0)

	err := ReconcilePaymentProcessor(f.manager.reconciler)(context.Background(), &Job{
		Type:    JobTypeReconcilePayment,
		Payload: ReconcilePaymentJobPayload{PaymentID: 404}.ToMap(),
	})
	assert.NoError(t, err)
}

func TestReconcilePaymentProcessor_RequiresPaymentID(t *testing.T) {
	f := newManagerFixture(t, 0)

	err := ReconcilePaymentProcessor(f.manager.reconciler)(context.Background(), &Job{
		Type:    JobTypeReconcilePayment,
		Payload: map[string]interface{}{},
	})
	assert.Error(t, err)
}

func TestManager_EnqueuePurge(t *testing.T) {
	f := newManagerFixture(t, 0)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)

	longAgo := now.AddDate(0, 0, -45)
	recently := now.AddDate(0, 0, -3)
	repo := f.store.Repositories().Concept
	stale := &models.PaymentConcept{Name: "Old trip", Amount: decimal.NewFromInt(100), Status: models.ConceptStatusDeleted, StatusChangedAt: &longAgo}
	fresh := &models.PaymentConcept{Name: "New trip", Amount: decimal.NewFromInt(100), Status: models.ConceptStatusDeleted, StatusChangedAt: &recently}
	require.NoError(t, repo.Create(ctx, stale))
	require.NoError(t, repo.Create(ctx, fresh))

	_, err := f.manager.EnqueuePurge(ctx, now)
	require.NoError(t, err)

	q := f.manager.GetQueue()
	q.processJob(ctx, takeJob(t, q))

	_, err = repo.GetByID(ctx, stale.ID)
	assert.Error(t, err, "concept past retention is purged")
	_, err = repo.GetByID(ctx, fresh.ID)
	assert.NoError(t, err)

	stats, err := q.GetJobStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats[JobStatusCompleted])

	counters, err := f.manager.Counters().Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counters[counter.ConceptsPurged])
}

func TestManager_Stats(t *testing.T) {
	f := newManagerFixture(t, 0)
	ctx := context.Background()

	require.NoError(t, f.client.Set(ctx, SweepCursorKey, "17", 0).Err())
	_, err := f.manager.EnqueuePurge(ctx, time.Now())
	require.NoError(t, err)

	stats, err := f.manager.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Queued)
	assert.Equal(t, int64(0), stats.Processing)
	assert.Equal(t, int64(1), stats.ByStatus[JobStatusPending])
	assert.Equal(t, uint(17), stats.SweepFrom)
	assert.False(t, stats.Running)
	assert.NotNil(t, stats.Counters)
}

func TestManager_StartRejectsBadSchedule(t *testing.T) {
	client := cachetest.NewIsolatedClient(t, isolatedManagerTestRedisDB)
	store := memrepo.New()
	repos := store.Repositories()

	m := NewManager(client, repos.Payment, &gatewaytest.MockGateway{}, concepts.NewPurger(repos.Concept), Config{
		Workers:       1,
		SweepSchedule: "every now and then",
	})
	assert.Error(t, m.Start())
	assert.False(t, m.IsRunning())
}

func TestManager_StartStop(t *testing.T) {
	f := newManagerFixture(t, 0)

	require.NoError(t, f.manager.Start())
	assert.True(t, f.manager.IsRunning())
	require.NoError(t, f.manager.Start())

	f.manager.Stop()
	assert.False(t, f.manager.IsRunning())
	f.manager.Stop()
}

func decimalPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
