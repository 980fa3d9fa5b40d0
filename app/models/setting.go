package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Setting represents a system setting
type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"column:setting_key;size:255;not null;uniqueIndex" json:"key" validate:"required,min=1,max=255"`
	Value     string    `gorm:"type:text" json:"value"`
	Type      string    `gorm:"size:50;not null" json:"type" validate:"required"` // string, integer, decimal
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PaymentSettings holds the business limits for concepts and checkout.
type PaymentSettings struct {
	MinConceptAmount       string `json:"min_concept_amount" validate:"required,numeric"`
	MaxConceptAmount       string `json:"max_concept_amount" validate:"required,numeric"`
	AmountDecimalPlaces    int    `json:"amount_decimal_places" validate:"min=0,max=2"`
	StartDatePastDays      int    `json:"start_date_past_days" validate:"min=0,max=3650"`
	StartDateFutureDays    int    `json:"start_date_future_days" validate:"min=0,max=3650"`
	EndDateMaxYears        int    `json:"end_date_max_years" validate:"min=1,max=50"`
	DeletedRetentionDays   int    `json:"deleted_retention_days" validate:"min=1,max=3650"`
	RetryWindowMinutes     int    `json:"retry_window_minutes" validate:"min=1,max=1440"`
	ReconcileBatchSize     int    `json:"reconcile_batch_size" validate:"min=1,max=1000"`
	ReconcileMaxRowsPerRun int    `json:"reconcile_max_rows_per_run" validate:"min=0"`
	mu                     sync.RWMutex
}

// Global settings instance
var (
	paymentSettings *PaymentSettings
	settingsMu      sync.RWMutex
)

// DefaultPaymentSettings returns the settings used before anything is stored.
func DefaultPaymentSettings() *PaymentSettings {
	return &PaymentSettings{
		MinConceptAmount:       "10.00",
		MaxConceptAmount:       "250000.00",
		AmountDecimalPlaces:    0,
		StartDatePastDays:      30,
		StartDateFutureDays:    365,
		EndDateMaxYears:        5,
		DeletedRetentionDays:   30,
		RetryWindowMinutes:     60,
		ReconcileBatchSize:     200,
		ReconcileMaxRowsPerRun: 5000,
	}
}

// GetPaymentSettings returns the current settings, or the defaults when
// LoadSettings has not run yet.
func GetPaymentSettings() *PaymentSettings {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	if paymentSettings == nil {
		return DefaultPaymentSettings()
	}
	return paymentSettings
}

// SetPaymentSettings replaces the in-memory settings without touching the DB.
func SetPaymentSettings(s *PaymentSettings) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	paymentSettings = s
}

// LoadSettings loads settings from database into memory
func LoadSettings(db *gorm.DB) error {
	s := DefaultPaymentSettings()

	var settings []Setting
	if err := db.Find(&settings).Error; err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	for _, setting := range settings {
		s.apply(setting.Key, setting.Value)
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("stored settings invalid: %w", err)
	}

	SetPaymentSettings(s)
	return nil
}

// SaveSettings saves current settings to database
func SaveSettings(db *gorm.DB, settings *PaymentSettings) error {
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	for key, value := range settings.toMap() {
		var setting Setting
		result := db.Where("setting_key = ?", key).First(&setting)

		if result.Error != nil {
			if result.Error != gorm.ErrRecordNotFound {
				return fmt.Errorf("failed to query setting %s: %w", key, result.Error)
			}
			setting = Setting{
				Key:   key,
				Value: value,
				Type:  getSettingType(key),
			}
			if err := db.Create(&setting).Error; err != nil {
				return fmt.Errorf("failed to create setting %s: %w", key, err)
			}
			continue
		}
		setting.Value = value
		if err := db.Save(&setting).Error; err != nil {
			return fmt.Errorf("failed to update setting %s: %w", key, err)
		}
	}

	SetPaymentSettings(settings)
	return nil
}

func (s *PaymentSettings) apply(key, value string) {
	atoi := func(dst *int) {
		if n, err := strconv.Atoi(value); err == nil {
			*dst = n
		}
	}
	switch key {
	case "min_concept_amount":
		s.MinConceptAmount = value
	case "max_concept_amount":
		s.MaxConceptAmount = value
	case "amount_decimal_places":
		atoi(&s.AmountDecimalPlaces)
	case "start_date_past_days":
		atoi(&s.StartDatePastDays)
	case "start_date_future_days":
		atoi(&s.StartDateFutureDays)
	case "end_date_max_years":
		atoi(&s.EndDateMaxYears)
	case "deleted_retention_days":
		atoi(&s.DeletedRetentionDays)
	case "retry_window_minutes":
		atoi(&s.RetryWindowMinutes)
	case "reconcile_batch_size":
		atoi(&s.ReconcileBatchSize)
	case "reconcile_max_rows_per_run":
		atoi(&s.ReconcileMaxRowsPerRun)
	}
}

func (s *PaymentSettings) toMap() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]string{
		"min_concept_amount":         s.MinConceptAmount,
		"max_concept_amount":         s.MaxConceptAmount,
		"amount_decimal_places":      strconv.Itoa(s.AmountDecimalPlaces),
		"start_date_past_days":       strconv.Itoa(s.StartDatePastDays),
		"start_date_future_days":     strconv.Itoa(s.StartDateFutureDays),
		"end_date_max_years":         strconv.Itoa(s.EndDateMaxYears),
		"deleted_retention_days":     strconv.Itoa(s.DeletedRetentionDays),
		"retry_window_minutes":       strconv.Itoa(s.RetryWindowMinutes),
		"reconcile_batch_size":       strconv.Itoa(s.ReconcileBatchSize),
		"reconcile_max_rows_per_run": strconv.Itoa(s.ReconcileMaxRowsPerRun),
	}
}

// getSettingType returns the type of a setting based on its key
func getSettingType(key string) string {
	switch key {
	case "min_concept_amount", "max_concept_amount":
		return "decimal"
	default:
		return "integer"
	}
}

// Validate validates the settings, including min <= max on the amount range.
func (s *PaymentSettings) Validate() error {
	validate := validator.New()
	if err := validate.Struct(s); err != nil {
		return err
	}
	minAmount, maxAmount := s.AmountRange()
	if minAmount.GreaterThan(maxAmount) {
		return fmt.Errorf("min_concept_amount %s exceeds max_concept_amount %s", s.MinConceptAmount, s.MaxConceptAmount)
	}
	places := int32(s.AmountPlaces())
	if !minAmount.Equal(minAmount.Truncate(places)) || !maxAmount.Equal(maxAmount.Truncate(places)) {
		return fmt.Errorf("amount range %s..%s does not fit %d decimal places", s.MinConceptAmount, s.MaxConceptAmount, places)
	}
	return nil
}

// AmountPlaces returns how many decimal places a concept amount may carry.
// Midtrans charges IDR in whole units, so the default is 0.
func (s *PaymentSettings) AmountPlaces() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.AmountDecimalPlaces
}

// AmountRange returns the configured [min, max] concept amounts.
func (s *PaymentSettings) AmountRange() (decimal.Decimal, decimal.Decimal) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	minAmount, _ := decimal.NewFromString(s.MinConceptAmount)
	maxAmount, _ := decimal.NewFromString(s.MaxConceptAmount)
	return minAmount, maxAmount
}

// RetryWindow returns how long a checkout attempt stays reusable.
func (s *PaymentSettings) RetryWindow() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Duration(s.RetryWindowMinutes) * time.Minute
}

// DeletedRetention returns how long soft-deleted concepts are kept.
func (s *PaymentSettings) DeletedRetention() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Duration(s.DeletedRetentionDays) * 24 * time.Hour
}

// ToJSON converts settings to JSON
func (s *PaymentSettings) ToJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(s)
}
