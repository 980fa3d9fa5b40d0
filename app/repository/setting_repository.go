package repository

import (
	"github.com/ManuelReschke/SchoolPay/app/models"
	"gorm.io/gorm"
)

// settingRepository implements the SettingRepository interface
type settingRepository struct {
	db *gorm.DB
}

// NewSettingRepository creates a new setting repository instance
func NewSettingRepository(db *gorm.DB) SettingRepository {
	return &settingRepository{db: db}
}

// Get returns the payment settings currently in effect
func (r *settingRepository) Get() (*models.PaymentSettings, error) {
	return models.GetPaymentSettings(), nil
}

// Save validates and persists the payment settings
func (r *settingRepository) Save(settings *models.PaymentSettings) error {
	return models.SaveSettings(r.db, settings)
}

// GetValue retrieves a single raw setting by key; missing keys yield ""
func (r *settingRepository) GetValue(key string) (string, error) {
	var setting models.Setting
	err := r.db.Where("setting_key = ?", key).First(&setting).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", nil
		}
		return "", err
	}
	return setting.Value, nil
}

// SetValue writes a single raw setting and reloads the in-memory copy
func (r *settingRepository) SetValue(key, value string) error {
	var setting models.Setting
	err := r.db.Where("setting_key = ?", key).First(&setting).Error

	switch {
	case err == gorm.ErrRecordNotFound:
		setting = models.Setting{Key: key, Value: value, Type: "string"}
		err = r.db.Create(&setting).Error
	case err == nil:
		setting.Value = value
		err = r.db.Save(&setting).Error
	}
	if err != nil {
		return err
	}
	return models.LoadSettings(r.db)
}
