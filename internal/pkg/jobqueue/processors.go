package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/SchoolPay/internal/pkg/concepts"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/payments"
)

// ReconcilePaymentProcessor re-checks a single payment with the gateway.
// A payment that no longer exists completes the job; it was purged or never
// committed.
func ReconcilePaymentProcessor(r *payments.Reconciler) Processor {
	return func(ctx context.Context, job *Job) error {
		payload, err := ReconcilePaymentJobPayloadFromMap(job.Payload)
		if err != nil {
			return fmt.Errorf("invalid reconcile payment payload: %w", err)
		}
		if payload.PaymentID == 0 {
			return errors.New("reconcile payment job without payment_id")
		}

		changed, err := r.ReconcileOne(ctx, payload.PaymentID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[JobQueue] Payment %d vanished before reconcile retry", payload.PaymentID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("reconcile payment %d: %w", payload.PaymentID, err)
		}
		if changed {
			log.Infof("[JobQueue] Payment %d updated by reconcile retry", payload.PaymentID)
		}
		return nil
	}
}

// PurgeConceptsProcessor hard-deletes concepts past the deleted retention.
// counters may be nil.
func PurgeConceptsProcessor(p *concepts.Purger, counters *counter.Counter) Processor {
	return func(ctx context.Context, job *Job) error {
		payload, err := PurgeConceptsJobPayloadFromMap(job.Payload)
		if err != nil {
			return fmt.Errorf("invalid purge payload: %w", err)
		}
		now := payload.RequestedAt
		if now.IsZero() {
			now = time.Now()
		}
		n, err := p.PurgeDeleted(ctx, now)
		if err != nil {
			return fmt.Errorf("purge deleted concepts: %w", err)
		}
		counters.Add(ctx, counter.ConceptsPurged, n)
		log.Infof("[JobQueue] Purged %d deleted concepts", n)
		return nil
	}
}
