package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/SchoolPay/app/models"
	"gorm.io/gorm"
)

// ErrActiveSlotTaken is returned when another open attempt already holds the
// (user, concept) slot.
var ErrActiveSlotTaken = errors.New("an open payment attempt already exists for this user and concept")

// UserDirectory is the read-only lookup used by eligibility decisions
type UserDirectory interface {
	GetProfile(ctx context.Context, userID uint) (*models.UserProfile, error)
	GetByID(ctx context.Context, userID uint) (*models.User, error)
}

// ConceptRepository defines the interface for payment concept persistence
type ConceptRepository interface {
	Create(ctx context.Context, concept *models.PaymentConcept) error
	GetByID(ctx context.Context, id uint) (*models.PaymentConcept, error)
	Update(ctx context.Context, concept *models.PaymentConcept) error
	ListByStatus(ctx context.Context, statuses ...models.ConceptStatus) ([]models.PaymentConcept, error)
	// PurgeDeleted hard-deletes concepts soft-deleted before cutoff and
	// detaches their payments. It returns the number of concepts removed.
	PurgeDeleted(ctx context.Context, cutoff time.Time) (int64, error)
}

// PaymentRepository defines the interface for the payment ledger
type PaymentRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Payment, error)
	GetBySessionID(ctx context.Context, sessionID string) (*models.Payment, error)
	// FindActivePaymentFor returns the open attempt for the pair, or nil when
	// there is none.
	FindActivePaymentFor(ctx context.Context, userID, conceptID uint) (*models.Payment, error)
	ListForUserConcept(ctx context.Context, userID, conceptID uint) ([]models.Payment, error)
	ListByUser(ctx context.Context, userID uint) ([]models.Payment, error)
	Upsert(ctx context.Context, payment *models.Payment) error
	StreamReconcilable(ctx context.Context, startAfterID uint, batchSize int) PaymentCursor
	// ApplyGatewayFact locks the row, passes it to mutate and saves it when
	// mutate reports a change. Each call is its own transaction.
	ApplyGatewayFact(ctx context.Context, id uint, mutate func(p *models.Payment) bool) (bool, error)
}

// BillingAccountRepository maps users to gateway customers
type BillingAccountRepository interface {
	Get(ctx context.Context, userID uint, provider string) (*models.BillingAccount, error)
	Upsert(ctx context.Context, account *models.BillingAccount) error
}

// SettingRepository defines the interface for setting-related database operations
type SettingRepository interface {
	Get() (*models.PaymentSettings, error)
	Save(settings *models.PaymentSettings) error
	GetValue(key string) (string, error)
	SetValue(key, value string) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	User           UserDirectory
	Concept        ConceptRepository
	Payment        PaymentRepository
	BillingAccount BillingAccountRepository
	Setting        SettingRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:           NewUserRepository(db),
		Concept:        NewConceptRepository(db),
		Payment:        NewPaymentRepository(db),
		BillingAccount: NewBillingAccountRepository(db),
		Setting:        NewSettingRepository(db),
	}
}
