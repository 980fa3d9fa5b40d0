// Package memrepo provides in-memory repositories for tests. They follow the
// GORM implementations' contracts, including gorm.ErrRecordNotFound for
// missing rows and the unique active slot on payments.
package memrepo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/SchoolPay/app/models"
	"github.com/ManuelReschke/SchoolPay/app/repository"
)

// Store holds all tables behind one mutex.
type Store struct {
	mu       sync.Mutex
	nextID   uint
	concepts map[uint]models.PaymentConcept
	payments map[uint]models.Payment
	users    map[uint]models.User
	accounts map[string]models.BillingAccount
	events   map[string]models.BillingWebhookEvent
}

func New() *Store {
	return &Store{
		concepts: map[uint]models.PaymentConcept{},
		payments: map[uint]models.Payment{},
		users:    map[uint]models.User{},
		accounts: map[string]models.BillingAccount{},
		events:   map[string]models.BillingWebhookEvent{},
	}
}

func (s *Store) id() uint {
	s.nextID++
	return s.nextID
}

// Repositories exposes the store through the repository interfaces.
func (s *Store) Repositories() *repository.Repositories {
	return &repository.Repositories{
		User:           Users{s},
		Concept:        Concepts{s},
		Payment:        Payments{s},
		BillingAccount: Accounts{s},
	}
}

// AddUser seeds a user; ID is assigned when zero.
func (s *Store) AddUser(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.id()
	} else if u.ID > s.nextID {
		s.nextID = u.ID
	}
	s.users[u.ID] = u
	return u
}

// AddPayment seeds a ledger row verbatim, keeping CreatedAt as given.
func (s *Store) AddPayment(p models.Payment) models.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.id()
	}
	s.payments[p.ID] = p
	return p
}

// Payment returns a copy of the stored row.
func (s *Store) Payment(id uint) (models.Payment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	return p, ok
}

// AllPayments returns every row ordered by id.
func (s *Store) AllPayments() []models.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type Users struct{ s *Store }

func (r Users) GetByID(_ context.Context, userID uint) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (r Users) GetProfile(ctx context.Context, userID uint) (*models.UserProfile, error) {
	u, err := r.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	p := u.Profile()
	return &p, nil
}

type Concepts struct{ s *Store }

func (r Concepts) Create(_ context.Context, c *models.PaymentConcept) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c.ID = r.s.id()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	r.s.concepts[c.ID] = *c
	return nil
}

func (r Concepts) GetByID(_ context.Context, id uint) (*models.PaymentConcept, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.concepts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (r Concepts) Update(_ context.Context, c *models.PaymentConcept) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.concepts[c.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	c.UpdatedAt = time.Now()
	r.s.concepts[c.ID] = *c
	return nil
}

func (r Concepts) ListByStatus(_ context.Context, statuses ...models.ConceptStatus) ([]models.PaymentConcept, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.PaymentConcept
	for _, c := range r.s.concepts {
		if len(statuses) == 0 || containsStatus(statuses, c.Status) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r Concepts) PurgeDeleted(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var purged int64
	for id, c := range r.s.concepts {
		if c.Status != models.ConceptStatusDeleted || c.StatusChangedAt == nil || !c.StatusChangedAt.Before(cutoff) {
			continue
		}
		for pid, p := range r.s.payments {
			if p.PaymentConceptID != nil && *p.PaymentConceptID == id {
				p.PaymentConceptID = nil
				p.ActiveSlot = nil
				r.s.payments[pid] = p
			}
		}
		delete(r.s.concepts, id)
		purged++
	}
	return purged, nil
}

func containsStatus(set []models.ConceptStatus, s models.ConceptStatus) bool {
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}

type Payments struct{ s *Store }

func (r Payments) GetByID(_ context.Context, id uint) (*models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (r Payments) GetBySessionID(_ context.Context, sessionID string) (*models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var found *models.Payment
	for _, p := range r.s.payments {
		if p.SessionID == sessionID && (found == nil || p.ID > found.ID) {
			cp := p
			found = &cp
		}
	}
	if found == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return found, nil
}

func (r Payments) FindActivePaymentFor(_ context.Context, userID, conceptID uint) (*models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := models.ActiveSlotKey(userID, conceptID)
	for _, p := range r.s.payments {
		if p.ActiveSlot != nil && *p.ActiveSlot == key {
			return &p, nil
		}
	}
	return nil, nil
}

func (r Payments) ListForUserConcept(_ context.Context, userID, conceptID uint) ([]models.Payment, error) {
	return r.filter(func(p models.Payment) bool {
		return p.UserID == userID && p.PaymentConceptID != nil && *p.PaymentConceptID == conceptID
	}), nil
}

func (r Payments) ListByUser(_ context.Context, userID uint) ([]models.Payment, error) {
	return r.filter(func(p models.Payment) bool { return p.UserID == userID }), nil
}

func (r Payments) filter(keep func(models.Payment) bool) []models.Payment {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Payment
	for _, p := range r.s.payments {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r Payments) Upsert(_ context.Context, p *models.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p.ActiveSlot != nil {
		for id, other := range r.s.payments {
			if id != p.ID && other.ActiveSlot != nil && *other.ActiveSlot == *p.ActiveSlot {
				return repository.ErrActiveSlotTaken
			}
		}
	}
	now := time.Now()
	if p.ID == 0 {
		p.ID = r.s.id()
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
	}
	p.UpdatedAt = now
	r.s.payments[p.ID] = *p
	return nil
}

func (r Payments) StreamReconcilable(_ context.Context, startAfterID uint, batchSize int) repository.PaymentCursor {
	fetch := func(_ context.Context, afterID uint, limit int) ([]models.Payment, error) {
		rows := r.filter(func(p models.Payment) bool { return p.ID > afterID && p.Status.IsReconcilable() })
		if len(rows) > limit {
			rows = rows[:limit]
		}
		return rows, nil
	}
	return repository.NewKeysetCursor(fetch, startAfterID, batchSize)
}

func (r Payments) ApplyGatewayFact(_ context.Context, id uint, mutate func(p *models.Payment) bool) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if !mutate(&p) {
		return false, nil
	}
	p.UpdatedAt = time.Now()
	r.s.payments[id] = p
	return true, nil
}

type Accounts struct{ s *Store }

func accountKey(userID uint, provider string) string {
	return fmt.Sprintf("%s:%d", provider, userID)
}

func (r Accounts) Get(_ context.Context, userID uint, provider string) (*models.BillingAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[accountKey(userID, provider)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &a, nil
}

func (r Accounts) Upsert(_ context.Context, a *models.BillingAccount) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := accountKey(a.UserID, a.Provider)
	if existing, ok := r.s.accounts[key]; ok {
		a.ID = existing.ID
	} else {
		a.ID = r.s.id()
	}
	r.s.accounts[key] = *a
	return nil
}

// WebhookEvents is the deduplicated gateway notification log, keyed by
// provider and event id.
type WebhookEvents struct{ s *Store }

// WebhookEvents exposes the notification log of the store.
func (s *Store) WebhookEvents() WebhookEvents { return WebhookEvents{s} }

// Events returns a copy of every stored notification.
func (r WebhookEvents) Events() []models.BillingWebhookEvent {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]models.BillingWebhookEvent, 0, len(r.s.events))
	for _, e := range r.s.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r WebhookEvents) CreateWebhookEventIfNotExists(_ context.Context, e *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := e.Provider + "|" + e.ProviderEventID
	if stored, ok := r.s.events[key]; ok {
		return false, &stored, nil
	}
	e.ID = r.s.id()
	e.CreatedAt = time.Now()
	r.s.events[key] = *e
	return true, e, nil
}

func (r WebhookEvents) MarkWebhookProcessed(_ context.Context, id uint, paymentID *uint, processingError string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for key, e := range r.s.events {
		if e.ID == id {
			now := time.Now()
			e.ProcessedAt = &now
			e.ProcessingError = processingError
			e.PaymentID = paymentID
			r.s.events[key] = e
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}
