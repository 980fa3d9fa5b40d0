package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/ManuelReschke/SchoolPay/app/models"
	"github.com/ManuelReschke/SchoolPay/app/repository"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/cache"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/concepts"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/env"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/gateway"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/payments"
)

const (
	// SweepCursorKey holds the last payment id a bounded sweep reached.
	SweepCursorKey = "reconcile:cursor"
	sweepLockKey   = "lock:reconcile:sweep"

	DefaultSweepSchedule = "@every 5m"
	DefaultPurgeSchedule = "@daily"
	DefaultSweepTimeout  = 10 * time.Minute
)

// ErrSweepRunning is returned when another instance holds the sweep lock.
var ErrSweepRunning = errors.New("a reconciliation sweep is already running")

// Config tunes the manager. Zero values fall back to the defaults above.
type Config struct {
	Workers       int
	SweepSchedule string
	PurgeSchedule string
	SweepTimeout  time.Duration
}

// ConfigFromEnv reads JOB_WORKERS, RECONCILE_SCHEDULE, PURGE_SCHEDULE and
// RECONCILE_TIMEOUT.
func ConfigFromEnv() Config {
	return Config{
		Workers:       env.GetEnvInt("JOB_WORKERS", 3),
		SweepSchedule: env.GetEnv("RECONCILE_SCHEDULE", DefaultSweepSchedule),
		PurgeSchedule: env.GetEnv("PURGE_SCHEDULE", DefaultPurgeSchedule),
		SweepTimeout:  env.GetEnvDuration("RECONCILE_TIMEOUT", DefaultSweepTimeout),
	}
}

// Stats is the queue snapshot exposed to admins.
type Stats struct {
	Queued     int64               `json:"queued"`
	Processing int64               `json:"processing"`
	ByStatus   map[JobStatus]int64 `json:"by_status"`
	Running    bool                `json:"running"`
	SweepFrom  uint                `json:"sweep_resume_after_id"`
	Counters   map[string]int64    `json:"counters"`
}

// Manager owns the job queue and the scheduled background tasks.
type Manager struct {
	queue      *Queue
	client     *redis.Client
	locker     *cache.Locker
	reconciler *payments.Reconciler
	counters   *counter.Counter
	cfg        Config
	cron       *cron.Cron
	mu         sync.Mutex
	running    bool
}

// NewManager wires the reconcile and purge processors into a queue on client.
// Rows the sweep cannot reconcile are retried individually through the queue.
func NewManager(client *redis.Client, ledger repository.PaymentRepository, gw gateway.PaymentGateway, purger *concepts.Purger, cfg Config) *Manager {
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = DefaultSweepSchedule
	}
	if cfg.PurgeSchedule == "" {
		cfg.PurgeSchedule = DefaultPurgeSchedule
	}
	if cfg.SweepTimeout <= 0 {
		cfg.SweepTimeout = DefaultSweepTimeout
	}

	m := &Manager{
		queue:    NewQueueWithClient(client, cfg.Workers),
		client:   client,
		locker:   cache.NewLocker(client),
		counters: counter.New(client),
		cfg:      cfg,
	}

	settings := models.GetPaymentSettings()
	m.reconciler = payments.NewReconciler(ledger, gw, payments.ReconcilerConfig{
		BatchSize:     settings.ReconcileBatchSize,
		MaxRowsPerRun: settings.ReconcileMaxRowsPerRun,
		OnRowFailure:  m.enqueueRowRetry,
	})

	m.queue.Register(JobTypeReconcilePayment, ReconcilePaymentProcessor(m.reconciler))
	m.queue.Register(JobTypePurgeConcepts, PurgeConceptsProcessor(purger, m.counters))
	return m
}

var (
	globalManager *Manager
	managerMu     sync.RWMutex
)

// SetManager installs the process-wide manager.
func SetManager(m *Manager) {
	managerMu.Lock()
	defer managerMu.Unlock()
	globalManager = m
}

// GetManager returns the process-wide manager, or nil before SetManager.
func GetManager() *Manager {
	managerMu.RLock()
	defer managerMu.RUnlock()
	return globalManager
}

// Counters returns the shared operational counters.
func (m *Manager) Counters() *counter.Counter {
	return m.counters
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and the cron schedules
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(m.cfg.SweepSchedule, m.scheduledSweep); err != nil {
		return fmt.Errorf("schedule reconciliation %q: %w", m.cfg.SweepSchedule, err)
	}
	if _, err := c.AddFunc(m.cfg.PurgeSchedule, m.scheduledPurge); err != nil {
		return fmt.Errorf("schedule purge %q: %w", m.cfg.PurgeSchedule, err)
	}

	log.Info("[JobQueue Manager] Starting job queue and background tasks")
	m.queue.Start()
	c.Start()
	m.cron = c
	m.running = true
	log.Infof("[JobQueue Manager] Started (sweep=%q purge=%q)", m.cfg.SweepSchedule, m.cfg.PurgeSchedule)
	return nil
}

// Stop waits for running cron tasks, then stops the workers.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")
	<-m.cron.Stop().Done()
	m.cron = nil
	m.queue.Stop()
	m.running = false
	log.Info("[JobQueue Manager] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) scheduledSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.SweepTimeout)
	defer cancel()
	if _, err := m.RunSweepOnce(ctx); err != nil && !errors.Is(err, ErrSweepRunning) {
		log.Errorf("[JobQueue Manager] Reconciliation sweep error: %v", err)
	}
}

func (m *Manager) scheduledPurge() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := m.EnqueuePurge(ctx, time.Now()); err != nil {
		log.Errorf("[JobQueue Manager] Could not enqueue purge: %v", err)
	}
}

// RunSweepOnce runs one bounded sweep, resuming after the stored cursor. A
// completed sweep clears the cursor so the next one starts from the
// beginning. Only one instance sweeps at a time.
func (m *Manager) RunSweepOnce(ctx context.Context) (payments.SweepReport, error) {
	release, ok, err := m.locker.TryLock(ctx, sweepLockKey, m.cfg.SweepTimeout+time.Minute)
	if err != nil {
		return payments.SweepReport{}, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		return payments.SweepReport{}, ErrSweepRunning
	}
	defer release()

	from, err := m.sweepCursor(ctx)
	if err != nil {
		return payments.SweepReport{}, err
	}
	if from > 0 {
		log.Infof("[JobQueue Manager] Resuming reconciliation after payment %d", from)
	}

	report, sweepErr := m.reconciler.Sweep(ctx, from)
	m.recordSweep(report)
	return report, sweepErr
}

// recordSweep stores the resume position and counters. It runs on its own
// context because ctx may have expired with the sweep.
func (m *Manager) recordSweep(report payments.SweepReport) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m.counters.Incr(ctx, counter.SweepRuns)
	m.counters.Add(ctx, counter.SweepScanned, int64(report.Scanned))
	m.counters.Add(ctx, counter.SweepUpdated, int64(report.Updated))
	m.counters.Add(ctx, counter.SweepFailed, int64(report.Failed))

	var err error
	if report.Completed {
		err = m.client.Del(ctx, SweepCursorKey).Err()
	} else {
		err = m.client.Set(ctx, SweepCursorKey, strconv.FormatUint(uint64(report.LastID), 10), 0).Err()
	}
	if err != nil {
		log.Errorf("[JobQueue Manager] Could not store sweep cursor %d: %v", report.LastID, err)
	}
}

func (m *Manager) sweepCursor(ctx context.Context) (uint, error) {
	raw, err := m.client.Get(ctx, SweepCursorKey).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read sweep cursor: %w", err)
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		log.Warnf("[JobQueue Manager] Ignoring malformed sweep cursor %q", raw)
		return 0, nil
	}
	return uint(id), nil
}

// EnqueuePurge queues a retention purge relative to now.
func (m *Manager) EnqueuePurge(ctx context.Context, now time.Time) (*Job, error) {
	return m.queue.EnqueueJob(ctx, JobTypePurgeConcepts, PurgeConceptsJobPayload{RequestedAt: now}.ToMap())
}

func (m *Manager) enqueueRowRetry(p *models.Payment, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	payload := ReconcilePaymentJobPayload{PaymentID: p.ID, SessionID: p.SessionID, Reason: cause.Error()}
	if _, err := m.queue.EnqueueJob(ctx, JobTypeReconcilePayment, payload.ToMap()); err != nil {
		log.Errorf("[JobQueue Manager] Could not queue reconcile retry for payment %d: %v", p.ID, err)
		return
	}
	m.counters.Incr(ctx, counter.RowRetriesEnqueued)
}

// Stats reports queue sizes, per-status counters and the sweep position.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	queued, err := m.queue.GetQueueSize(ctx)
	if err != nil {
		return nil, err
	}
	processing, err := m.queue.GetProcessingSize(ctx)
	if err != nil {
		return nil, err
	}
	byStatus, err := m.queue.GetJobStats(ctx)
	if err != nil {
		return nil, err
	}
	from, err := m.sweepCursor(ctx)
	if err != nil {
		return nil, err
	}
	counters, err := m.counters.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Queued:     queued,
		Processing: processing,
		ByStatus:   byStatus,
		Running:    m.IsRunning(),
		SweepFrom:  from,
		Counters:   counters,
	}, nil
}
