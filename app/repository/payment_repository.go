package repository

import (
	"context"
	"errors"

	"github.com/ManuelReschke/SchoolPay/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// paymentRepository implements the PaymentRepository interface
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment ledger repository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) GetByID(ctx context.Context, id uint) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("id DESC").First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepository) FindActivePaymentFor(ctx context.Context, userID, conceptID uint) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).
		Where("active_slot = ?", models.ActiveSlotKey(userID, conceptID)).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepository) ListForUserConcept(ctx context.Context, userID, conceptID uint) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND payment_concept_id = ?", userID, conceptID).
		Order("id ASC").
		Find(&payments).Error
	return payments, err
}

func (r *paymentRepository) ListByUser(ctx context.Context, userID uint) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&payments).Error
	return payments, err
}

// Upsert inserts new rows and fully updates existing ones. A unique violation
// on active_slot means a concurrent checkout won the pair.
func (r *paymentRepository) Upsert(ctx context.Context, payment *models.Payment) error {
	err := r.db.WithContext(ctx).Save(payment).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrActiveSlotTaken
	}
	return err
}

func (r *paymentRepository) StreamReconcilable(ctx context.Context, startAfterID uint, batchSize int) PaymentCursor {
	fetch := func(ctx context.Context, afterID uint, limit int) ([]models.Payment, error) {
		var page []models.Payment
		err := r.db.WithContext(ctx).
			Where("id > ? AND status IN ?", afterID, models.ReconcilableStatuses).
			Order("id ASC").
			Limit(limit).
			Find(&page).Error
		return page, err
	}
	return NewKeysetCursor(fetch, startAfterID, batchSize)
}

func (r *paymentRepository) ApplyGatewayFact(ctx context.Context, id uint, mutate func(p *models.Payment) bool) (bool, error) {
	changed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Payment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, id).Error; err != nil {
			return err
		}
		if !mutate(&p) {
			return nil
		}
		changed = true
		return tx.Save(&p).Error
	})
	return changed, err
}
