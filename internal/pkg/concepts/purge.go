package concepts

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/SchoolPay/app/models"
	"github.com/ManuelReschke/SchoolPay/app/repository"
)

// Purger hard-deletes concepts that have been in the deleted status longer
// than the retention period. Their payments stay in the ledger, detached.
type Purger struct {
	concepts  repository.ConceptRepository
	retention func() time.Duration
}

func NewPurger(concepts repository.ConceptRepository) *Purger {
	return &Purger{
		concepts:  concepts,
		retention: func() time.Duration { return models.GetPaymentSettings().DeletedRetention() },
	}
}

// PurgeDeleted removes concepts deleted before now minus the retention.
func (p *Purger) PurgeDeleted(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-p.retention())
	n, err := p.concepts.PurgeDeleted(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge deleted concepts: %w", err)
	}
	if n > 0 {
		log.Infof("[Concepts] Purged %d concepts deleted before %s", n, cutoff.Format(time.RFC3339))
	}
	return n, nil
}
