package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/SchoolPay/app/models"
	"github.com/ManuelReschke/SchoolPay/app/repository"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/apperror"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/concepts"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/gateway"
)

const (
	CodeConceptAlreadyPaid = "ConceptAlreadyPaid"
	CodeCheckoutInProgress = "CheckoutInProgress"
	CodeConceptNotFound    = "ConceptNotFound"
	CodeUserNotFound       = "UserNotFound"
	DefaultGatewayTimeout  = 15 * time.Second
	checkoutLockTTL        = 30 * time.Second
)

// Locker serializes checkouts per (user, concept). acquired is false when
// another holder owns the key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

// CheckoutResult is the session a payer should be sent to.
type CheckoutResult struct {
	Payment *models.Payment `json:"payment"`
	Amount  string          `json:"amount"`
	Reused  bool            `json:"reused"`
}

// CheckoutDeps wires a CheckoutService.
type CheckoutDeps struct {
	Concepts       repository.ConceptRepository
	Payments       repository.PaymentRepository
	Users          repository.UserDirectory
	Accounts       repository.BillingAccountRepository
	Gateway        gateway.PaymentGateway
	Locker         Locker
	Policy         RetryPolicy
	GatewayTimeout time.Duration
	Now            func() time.Time
}

// CheckoutService issues gateway checkout sessions and records them in the
// ledger.
type CheckoutService struct {
	deps     CheckoutDeps
	resolver concepts.Resolver
}

func NewCheckoutService(deps CheckoutDeps) *CheckoutService {
	if deps.GatewayTimeout <= 0 {
		deps.GatewayTimeout = DefaultGatewayTimeout
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Policy.Window <= 0 {
		deps.Policy = NewRetryPolicy(0)
	}
	return &CheckoutService{deps: deps, resolver: concepts.NewResolver()}
}

func checkoutLockKey(userID, conceptID uint) string {
	return fmt.Sprintf("lock:payment:%d:%d", userID, conceptID)
}

// Checkout runs eligibility, payability, the retry policy and then either
// reuses the open attempt or creates a new session and ledger row.
func (s *CheckoutService) Checkout(ctx context.Context, userID, conceptID uint) (*CheckoutResult, error) {
	now := s.deps.Now()

	concept, err := s.deps.Concepts.GetByID(ctx, conceptID)
	if err != nil {
		return nil, notFoundOr(err, CodeConceptNotFound, "payment concept not found")
	}
	profile, err := s.deps.Users.GetProfile(ctx, userID)
	if err != nil {
		return nil, notFoundOr(err, CodeUserNotFound, "user not found")
	}

	if err := s.resolver.Resolve(concept, *profile, now).Err(); err != nil {
		return nil, err
	}
	if err := concepts.EnsurePayable(concept, now); err != nil {
		return nil, err
	}

	if s.deps.Locker != nil {
		release, acquired, err := s.deps.Locker.TryLock(ctx, checkoutLockKey(userID, conceptID), checkoutLockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire checkout lock: %w", err)
		}
		if !acquired {
			return nil, apperror.Conflict(CodeCheckoutInProgress, "another checkout for this concept is in progress")
		}
		defer release()
	}

	history, err := s.deps.Payments.ListForUserConcept(ctx, userID, conceptID)
	if err != nil {
		return nil, fmt.Errorf("load payment history: %w", err)
	}
	for i := range history {
		if history[i].Status.IsSettled() {
			return nil, apperror.Conflict(CodeConceptAlreadyPaid, "this concept is already paid")
		}
	}

	active, err := s.deps.Payments.FindActivePaymentFor(ctx, userID, conceptID)
	if err != nil {
		return nil, fmt.Errorf("find active payment: %w", err)
	}
	if active != nil {
		reused, err := s.resolveActive(ctx, active, now)
		if err != nil {
			return nil, err
		}
		if reused {
			return &CheckoutResult{Payment: active, Amount: FormatAmount(active.Amount), Reused: true}, nil
		}
	}

	amount := CheckoutAmount(concept, history)
	customerID, err := s.customerFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	gctx, cancel := context.WithTimeout(ctx, s.deps.GatewayTimeout)
	session, err := s.deps.Gateway.CreateCheckoutSession(gctx, customerID, concept, amount, userID)
	cancel()
	if err != nil {
		log.Errorf("[Checkout] Session creation failed for user %d concept %d: %v", userID, conceptID, err)
		return nil, apperror.Gateway("could not create checkout session", err)
	}

	payment := &models.Payment{
		ConceptName:      concept.Name,
		Amount:           amount,
		Status:           models.PaymentStatusDefault,
		UserID:           userID,
		PaymentConceptID: &concept.ID,
		URL:              session.URL,
		SessionID:        session.ID,
	}
	payment.ClaimActiveSlot()
	if err := s.deps.Payments.Upsert(ctx, payment); err != nil {
		if errors.Is(err, repository.ErrActiveSlotTaken) {
			s.abandonSession(ctx, session.ID)
			return nil, apperror.Conflict(CodeCheckoutInProgress, "another checkout for this concept is in progress")
		}
		return nil, fmt.Errorf("save payment: %w", err)
	}

	log.Infof("[Checkout] Created payment %d (session %s, amount %s) for user %d concept %d",
		payment.ID, session.ID, FormatAmount(amount), userID, conceptID)
	return &CheckoutResult{Payment: payment, Amount: FormatAmount(amount)}, nil
}

// resolveActive reuses the open attempt when the retry policy allows it.
// Otherwise the old session must be expired before a new one is issued; if
// the gateway refuses, the retry is rejected.
func (s *CheckoutService) resolveActive(ctx context.Context, active *models.Payment, now time.Time) (bool, error) {
	policyErr := s.deps.Policy.EnsureValidToRepay(active, now)
	if policyErr == nil {
		if err := s.deps.Payments.Upsert(ctx, active); err != nil {
			return false, fmt.Errorf("touch payment %d: %w", active.ID, err)
		}
		log.Infof("[Checkout] Reusing payment %d (session %s)", active.ID, active.SessionID)
		return true, nil
	}

	expired, err := s.expireSession(ctx, active.SessionID)
	if err != nil {
		return false, apperror.Gateway("could not expire previous checkout session", err)
	}
	if !expired {
		var re *RetryNotAllowedError
		if errors.As(policyErr, &re) {
			return false, re.AppError()
		}
		return false, policyErr
	}

	active.ReleaseActiveSlot()
	if active.Status.IsNonPaid() {
		active.Status = models.PaymentStatusUnpaid
	}
	if err := s.deps.Payments.Upsert(ctx, active); err != nil {
		return false, fmt.Errorf("supersede payment %d: %w", active.ID, err)
	}
	log.Infof("[Checkout] Superseded payment %d after expiring session %s", active.ID, active.SessionID)
	return false, nil
}

func (s *CheckoutService) expireSession(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return true, nil
	}
	gctx, cancel := context.WithTimeout(ctx, s.deps.GatewayTimeout)
	defer cancel()
	return s.deps.Gateway.ExpireSessionIfPending(gctx, sessionID)
}

// abandonSession best-effort expires a session whose ledger row lost the race.
func (s *CheckoutService) abandonSession(ctx context.Context, sessionID string) {
	if _, err := s.expireSession(ctx, sessionID); err != nil {
		log.Warnf("[Checkout] Could not expire abandoned session %s: %v", sessionID, err)
	}
}

// customerFor returns the stored gateway customer or registers a new one.
func (s *CheckoutService) customerFor(ctx context.Context, userID uint) (string, error) {
	provider := s.deps.Gateway.Provider()
	account, err := s.deps.Accounts.Get(ctx, userID, provider)
	if err == nil && account.ProviderAccountID != "" {
		return account.ProviderAccountID, nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("load billing account: %w", err)
	}

	user, err := s.deps.Users.GetByID(ctx, userID)
	if err != nil {
		return "", notFoundOr(err, CodeUserNotFound, "user not found")
	}
	gctx, cancel := context.WithTimeout(ctx, s.deps.GatewayTimeout)
	customerID, err := s.deps.Gateway.CreateCustomer(gctx, gateway.Customer{UserID: user.ID, Name: user.Name, Email: user.Email})
	cancel()
	if err != nil {
		return "", apperror.Gateway("could not create gateway customer", err)
	}

	if err := s.deps.Accounts.Upsert(ctx, &models.BillingAccount{
		UserID:            userID,
		Provider:          provider,
		ProviderAccountID: customerID,
		Email:             user.Email,
	}); err != nil {
		return "", fmt.Errorf("save billing account: %w", err)
	}
	return customerID, nil
}

func notFoundOr(err error, code, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.Wrap(apperror.KindNotFound, code, message, err)
	}
	return err
}
