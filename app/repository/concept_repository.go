package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/SchoolPay/app/models"
	"gorm.io/gorm"
)

// conceptRepository implements the ConceptRepository interface
type conceptRepository struct {
	db *gorm.DB
}

// NewConceptRepository creates a new payment concept repository instance
func NewConceptRepository(db *gorm.DB) ConceptRepository {
	return &conceptRepository{db: db}
}

func (r *conceptRepository) Create(ctx context.Context, concept *models.PaymentConcept) error {
	return r.db.WithContext(ctx).Create(concept).Error
}

func (r *conceptRepository) GetByID(ctx context.Context, id uint) (*models.PaymentConcept, error) {
	var concept models.PaymentConcept
	if err := r.db.WithContext(ctx).First(&concept, id).Error; err != nil {
		return nil, err
	}
	return &concept, nil
}

func (r *conceptRepository) Update(ctx context.Context, concept *models.PaymentConcept) error {
	return r.db.WithContext(ctx).Save(concept).Error
}

func (r *conceptRepository) ListByStatus(ctx context.Context, statuses ...models.ConceptStatus) ([]models.PaymentConcept, error) {
	var concepts []models.PaymentConcept
	q := r.db.WithContext(ctx).Order("start_date ASC, id ASC")
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	err := q.Find(&concepts).Error
	return concepts, err
}

func (r *conceptRepository) PurgeDeleted(ctx context.Context, cutoff time.Time) (int64, error) {
	var purged int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Model(&models.PaymentConcept{}).
			Where("status = ? AND status_changed_at IS NOT NULL AND status_changed_at < ?", models.ConceptStatusDeleted, cutoff).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		// Ledger rows are financial records: detach, never delete.
		if err := tx.Model(&models.Payment{}).
			Where("payment_concept_id IN ?", ids).
			Updates(map[string]interface{}{"payment_concept_id": nil, "active_slot": nil}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&models.PaymentConcept{})
		if res.Error != nil {
			return res.Error
		}
		purged = res.RowsAffected
		return nil
	})
	return purged, err
}
