package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/SchoolPay/app/models"
	"github.com/ManuelReschke/SchoolPay/app/repository"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/gateway"
)

const (
	DefaultSweepBatchSize = 200
	DefaultRowTimeout     = 10 * time.Second
)

// SweepReport summarizes one sweep run. LastID is the resume position for
// the next run; Completed is false when the run stopped early.
type SweepReport struct {
	Scanned   int       `json:"scanned"`
	Updated   int       `json:"updated"`
	Unchanged int       `json:"unchanged"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	LastID    uint      `json:"last_id"`
	Completed bool      `json:"completed"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
}

// ReconcilerConfig tunes a Reconciler.
type ReconcilerConfig struct {
	BatchSize int
	// MaxRowsPerRun stops a run after this many rows (0 = unbounded) so a
	// scheduled sweep finishes in bounded time and resumes next tick.
	MaxRowsPerRun int
	RowTimeout    time.Duration
	// OnRowFailure is called for every row the gateway could not answer.
	OnRowFailure func(p *models.Payment, err error)
	Now          func() time.Time
}

// Reconciler confirms ledger rows against gateway truth.
type Reconciler struct {
	payments repository.PaymentRepository
	gateway  gateway.PaymentGateway
	cfg      ReconcilerConfig
}

func NewReconciler(payments repository.PaymentRepository, gw gateway.PaymentGateway, cfg ReconcilerConfig) *Reconciler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultSweepBatchSize
	}
	if cfg.RowTimeout <= 0 {
		cfg.RowTimeout = DefaultRowTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Reconciler{payments: payments, gateway: gw, cfg: cfg}
}

// Sweep streams reconcilable payments after startAfterID and reconciles each
// in its own transaction. Gateway failures are counted and skipped; only a
// cursor failure or cancellation aborts the run. On cancellation LastID is
// the last row actually reconciled, so the interrupted row is swept again on
// the next run.
func (r *Reconciler) Sweep(ctx context.Context, startAfterID uint) (SweepReport, error) {
	report := SweepReport{StartedAt: r.cfg.Now(), LastID: startAfterID}
	defer func() { report.Duration = time.Since(report.StartedAt).String() }()

	cursor := r.payments.StreamReconcilable(ctx, startAfterID, r.cfg.BatchSize)
	for cursor.Next(ctx) {
		if ctx.Err() != nil {
			break
		}
		p := cursor.Payment()
		changed, err := r.reconcileRow(ctx, p)
		if err != nil && ctx.Err() != nil {
			break
		}
		report.Scanned++
		report.LastID = cursor.Position()

		switch {
		case errors.Is(err, errNoSession):
			report.Skipped++
		case err != nil:
			report.Failed++
			log.Warnf("[Reconcile] Payment %d (session %s) failed: %v", p.ID, p.SessionID, err)
			if r.cfg.OnRowFailure != nil {
				r.cfg.OnRowFailure(p, err)
			}
		case changed:
			report.Updated++
		default:
			report.Unchanged++
		}

		if r.cfg.MaxRowsPerRun > 0 && report.Scanned >= r.cfg.MaxRowsPerRun {
			log.Infof("[Reconcile] Row budget reached at payment %d, will resume next run", report.LastID)
			return report, nil
		}
	}
	if err := ctx.Err(); err != nil {
		log.Warnf("[Reconcile] Sweep interrupted after payment %d: %v", report.LastID, err)
		return report, fmt.Errorf("reconcile interrupted: %w", err)
	}
	if err := cursor.Err(); err != nil {
		return report, fmt.Errorf("reconcile cursor: %w", err)
	}

	report.Completed = true
	log.Infof("[Reconcile] Sweep finished: scanned=%d updated=%d unchanged=%d skipped=%d failed=%d",
		report.Scanned, report.Updated, report.Unchanged, report.Skipped, report.Failed)
	return report, nil
}

// ReconcileOne reconciles a single payment by id, e.g. from a retry job.
func (r *Reconciler) ReconcileOne(ctx context.Context, paymentID uint) (bool, error) {
	p, err := r.payments.GetByID(ctx, paymentID)
	if err != nil {
		return false, err
	}
	if !p.Status.IsReconcilable() {
		return false, nil
	}
	changed, err := r.reconcileRow(ctx, p)
	if errors.Is(err, errNoSession) {
		return false, nil
	}
	return changed, err
}

var errNoSession = errors.New("payment has no gateway session")

func (r *Reconciler) reconcileRow(ctx context.Context, p *models.Payment) (bool, error) {
	if p.SessionID == "" {
		return false, errNoSession
	}

	gctx, cancel := context.WithTimeout(ctx, r.cfg.RowTimeout)
	fact, err := r.gateway.GetSessionStatus(gctx, p.SessionID)
	cancel()
	if err != nil {
		return false, fmt.Errorf("gateway status: %w", err)
	}

	now := r.cfg.Now()
	return r.payments.ApplyGatewayFact(ctx, p.ID, func(row *models.Payment) bool {
		return ApplyFact(row, *fact, SourceSweep, now)
	})
}
