package concepts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/SchoolPay/app/models"
	"github.com/ManuelReschke/SchoolPay/app/repository"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/apperror"
)

const (
	CodeConceptNotFound = "ConceptNotFound"
	CodeUserNotFound    = "UserNotFound"
)

// Service owns concept CRUD and lifecycle changes.
type Service struct {
	concepts repository.ConceptRepository
	users    repository.UserDirectory
	resolver Resolver
	settings func() *models.PaymentSettings
	now      func() time.Time
}

func NewService(concepts repository.ConceptRepository, users repository.UserDirectory) *Service {
	return &Service{
		concepts: concepts,
		users:    users,
		resolver: NewResolver(),
		settings: models.GetPaymentSettings,
		now:      time.Now,
	}
}

func (s *Service) limits() Limits {
	return LimitsFromSettings(s.settings())
}

// Create validates and stores a new concept. New concepts always start
// active.
func (s *Service) Create(ctx context.Context, c *models.PaymentConcept) error {
	now := s.now()
	c.Name = strings.TrimSpace(c.Name)
	if c.AppliesTo == "" {
		c.AppliesTo = models.AppliesToAll
	}
	if err := ValidateForCreate(c, s.limits(), now); err != nil {
		return err
	}
	c.Status = models.ConceptStatusActive
	c.StatusChangedAt = &now

	if err := s.concepts.Create(ctx, c); err != nil {
		return fmt.Errorf("create concept: %w", err)
	}
	log.Infof("[Concepts] Created concept %d (%s, %s, applies_to=%s)", c.ID, c.Name, c.Amount.StringFixed(2), c.AppliesTo)
	return nil
}

func (s *Service) Get(ctx context.Context, id uint) (*models.PaymentConcept, error) {
	c, err := s.concepts.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, CodeConceptNotFound, "payment concept not found")
	}
	return c, nil
}

// Update applies a partial edit to an active concept.
func (s *Service) Update(ctx context.Context, id uint, patch Patch) (*models.PaymentConcept, error) {
	original, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, err := ValidateForUpdate(original, patch, s.limits(), s.now())
	if err != nil {
		return nil, err
	}
	if err := s.concepts.Update(ctx, updated); err != nil {
		return nil, fmt.Errorf("update concept %d: %w", id, err)
	}
	return updated, nil
}

// ChangeStatus moves a concept through its lifecycle.
func (s *Service) ChangeStatus(ctx context.Context, id uint, to models.ConceptStatus) (*models.PaymentConcept, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := c.Status
	if err := Transition(c, to, s.now()); err != nil {
		return nil, err
	}
	if err := s.concepts.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("update concept %d status: %w", id, err)
	}
	log.Infof("[Concepts] Concept %d moved %s -> %s", id, from, to)
	return c, nil
}

// Eligibility resolves concept id for user id.
func (s *Service) Eligibility(ctx context.Context, conceptID, userID uint) (Decision, error) {
	c, err := s.Get(ctx, conceptID)
	if err != nil {
		return Decision{}, err
	}
	profile, err := s.users.GetProfile(ctx, userID)
	if err != nil {
		return Decision{}, notFound(err, CodeUserNotFound, "user not found")
	}
	return s.resolver.Resolve(c, *profile, s.now()), nil
}

func notFound(err error, code, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.Wrap(apperror.KindNotFound, code, message, err)
	}
	return err
}
