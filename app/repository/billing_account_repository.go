package repository

import (
	"context"

	"github.com/ManuelReschke/SchoolPay/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type billingAccountRepository struct {
	db *gorm.DB
}

// NewBillingAccountRepository creates a billing account repository backed by GORM
func NewBillingAccountRepository(db *gorm.DB) BillingAccountRepository {
	return &billingAccountRepository{db: db}
}

func (r *billingAccountRepository) Get(ctx context.Context, userID uint, provider string) (*models.BillingAccount, error) {
	var account models.BillingAccount
	err := r.db.WithContext(ctx).Where("user_id = ? AND provider = ?", userID, provider).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *billingAccountRepository) Upsert(ctx context.Context, account *models.BillingAccount) error {
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
			{Name: "provider"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"provider_account_id",
			"email",
			"updated_at",
		}),
	}).Create(account).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return db.Where("user_id = ? AND provider = ?", account.UserID, account.Provider).First(account).Error
}
