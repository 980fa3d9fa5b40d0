package payments

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/SchoolPay/app/models"
	"github.com/ManuelReschke/SchoolPay/app/repository"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/concepts"
)

// SummaryState classifies one concept for one user.
type SummaryState string

const (
	SummaryPending       SummaryState = "pending"
	SummaryUpcoming      SummaryState = "upcoming"
	SummaryOverdue       SummaryState = "overdue"
	SummaryPaid          SummaryState = "paid"
	SummaryExcluded      SummaryState = "excluded"
	SummaryNotApplicable SummaryState = "not_applicable"
)

// SummaryLine is one concept in a user's billing summary.
type SummaryLine struct {
	ConceptID      uint            `json:"concept_id"`
	ConceptName    string          `json:"concept_name"`
	ConceptStatus  string          `json:"concept_status"`
	State          SummaryState    `json:"state"`
	Reason         concepts.Reason `json:"reason,omitempty"`
	Amount         string          `json:"amount"`
	AmountReceived string          `json:"amount_received"`
	PendingAmount  string          `json:"pending_amount"`
	EndDate        *time.Time      `json:"end_date,omitempty"`

	pending  decimal.Decimal
	received decimal.Decimal
}

// Summary is the billing overview of a user.
type Summary struct {
	UserID       uint          `json:"user_id"`
	TotalPending string        `json:"total_pending"`
	TotalPaid    string        `json:"total_paid"`
	Lines        []SummaryLine `json:"lines"`
}

// SummaryService builds billing summaries.
type SummaryService struct {
	concepts repository.ConceptRepository
	payments repository.PaymentRepository
	users    repository.UserDirectory
	resolver concepts.Resolver
	now      func() time.Time
}

func NewSummaryService(c repository.ConceptRepository, p repository.PaymentRepository, u repository.UserDirectory) *SummaryService {
	return &SummaryService{concepts: c, payments: p, users: u, resolver: concepts.NewResolver(), now: time.Now}
}

// ForUser lists every active or finalized concept with the user's state.
// Excluded and not-applicable concepts are listed with their reason so the
// two can be told apart.
func (s *SummaryService) ForUser(ctx context.Context, userID uint) (*Summary, error) {
	profile, err := s.users.GetProfile(ctx, userID)
	if err != nil {
		return nil, notFoundOr(err, CodeUserNotFound, "user not found")
	}
	list, err := s.concepts.ListByStatus(ctx, models.ConceptStatusActive, models.ConceptStatusFinalized)
	if err != nil {
		return nil, fmt.Errorf("list concepts: %w", err)
	}
	rows, err := s.payments.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	byConcept := make(map[uint][]models.Payment)
	for _, p := range rows {
		if p.PaymentConceptID != nil {
			byConcept[*p.PaymentConceptID] = append(byConcept[*p.PaymentConceptID], p)
		}
	}

	now := s.now()
	totalPending, totalPaid := decimal.Zero, decimal.Zero
	out := &Summary{UserID: userID, Lines: make([]SummaryLine, 0, len(list))}
	for i := range list {
		c := &list[i]
		line := s.lineFor(c, *profile, byConcept[c.ID], now)
		switch line.State {
		case SummaryPending, SummaryOverdue:
			totalPending = totalPending.Add(line.pending)
		}
		totalPaid = totalPaid.Add(line.received)
		out.Lines = append(out.Lines, line)
	}
	sort.SliceStable(out.Lines, func(a, b int) bool { return out.Lines[a].ConceptID < out.Lines[b].ConceptID })

	out.TotalPending = FormatAmount(totalPending)
	out.TotalPaid = FormatAmount(totalPaid)
	return out, nil
}

func (s *SummaryService) lineFor(c *models.PaymentConcept, user models.UserProfile, history []models.Payment, now time.Time) SummaryLine {
	got := decimal.Zero
	settled := false
	for i := range history {
		got = got.Add(received(&history[i]))
		if history[i].Status.IsSettled() {
			settled = true
		}
	}
	pending := c.Amount.Sub(got)
	if pending.IsNegative() || settled {
		pending = decimal.Zero
	}

	line := SummaryLine{
		ConceptID:      c.ID,
		ConceptName:    c.Name,
		ConceptStatus:  string(c.Status),
		Amount:         FormatAmount(c.Amount),
		AmountReceived: FormatAmount(got),
		PendingAmount:  FormatAmount(pending),
		EndDate:        c.EndDate,
		pending:        pending,
		received:       got,
	}

	if settled {
		line.State = SummaryPaid
		return line
	}
	if d := s.resolver.Applies(c, user); !d.Allowed {
		line.Reason = d.Reason
		line.pending = decimal.Zero
		line.PendingAmount = FormatAmount(line.pending)
		if d.Reason == concepts.ReasonUserExplicitlyExcluded {
			line.State = SummaryExcluded
		} else {
			line.State = SummaryNotApplicable
		}
		return line
	}

	switch {
	case !c.IsActive():
		line.State = SummaryOverdue
		line.Reason = concepts.ReasonConceptInactive
	case !c.HasStarted(now):
		line.State = SummaryUpcoming
		line.Reason = concepts.ReasonConceptNotStarted
	case c.IsExpired(now):
		line.State = SummaryOverdue
		line.Reason = concepts.ReasonConceptExpired
	default:
		line.State = SummaryPending
	}
	return line
}
