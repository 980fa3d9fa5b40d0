package concepts

import (
	"strings"
	"time"

	"github.com/ManuelReschke/SchoolPay/app/models"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/apperror"
)

// Reason is the denial reason of an eligibility decision.
type Reason string

const (
	ReasonNone                   Reason = ""
	ReasonConceptInactive        Reason = "ConceptInactive"
	ReasonConceptNotStarted      Reason = "ConceptNotStarted"
	ReasonConceptExpired         Reason = "ConceptExpired"
	ReasonUserExplicitlyExcluded Reason = "UserExplicitlyExcluded"
	ReasonUserNotAllowed         Reason = "UserNotAllowed"
)

// Decision is the outcome of resolving a concept against a user.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
}

// Err returns nil for an allowed decision, otherwise a NotAllowed error
// carrying the reason as code.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return apperror.NotAllowed(string(d.Reason), reasonMessages[d.Reason])
}

var reasonMessages = map[Reason]string{
	ReasonConceptInactive:        "the payment concept is not active",
	ReasonConceptNotStarted:      "the payment concept has not started yet",
	ReasonConceptExpired:         "the payment concept has expired",
	ReasonUserExplicitlyExcluded: "the user is explicitly excluded from this concept",
	ReasonUserNotAllowed:         "the concept does not apply to this user",
}

func allow() Decision        { return Decision{Allowed: true} }
func deny(r Reason) Decision { return Decision{Reason: r} }

// Resolver decides whether a concept applies to a user. It holds no state and
// is safe for concurrent use.
type Resolver struct{}

func NewResolver() Resolver { return Resolver{} }

// Resolve runs the checks in order and returns the first failure:
// status, start date, end date, exceptions, then targeting.
func (Resolver) Resolve(concept *models.PaymentConcept, user models.UserProfile, now time.Time) Decision {
	if !concept.IsActive() {
		return deny(ReasonConceptInactive)
	}
	if !concept.HasStarted(now) {
		return deny(ReasonConceptNotStarted)
	}
	if concept.IsExpired(now) {
		return deny(ReasonConceptExpired)
	}
	return Resolver{}.Applies(concept, user)
}

// Applies evaluates only the exception list and the targeting rules, ignoring
// status and dates. Billing summaries use it to classify overdue concepts.
func (Resolver) Applies(concept *models.PaymentConcept, user models.UserProfile) Decision {
	if containsUint(concept.ExceptionUserIDs, user.ID) {
		return deny(ReasonUserExplicitlyExcluded)
	}
	if matchesTarget(concept, user) {
		return allow()
	}
	return deny(ReasonUserNotAllowed)
}

func matchesTarget(concept *models.PaymentConcept, user models.UserProfile) bool {
	switch concept.AppliesTo {
	case models.AppliesToAll:
		return user.HasRole(models.ROLE_STUDENT) || user.HasRole(models.ROLE_APPLICANT)
	case models.AppliesToCareer:
		return matchesCareer(concept, user)
	case models.AppliesToSemester:
		return matchesSemester(concept, user)
	case models.AppliesToCareerSemester:
		return matchesCareer(concept, user) && matchesSemester(concept, user)
	case models.AppliesToStudents:
		return containsUint(concept.UserIDs, user.ID)
	case models.AppliesToTag:
		tag := strings.TrimSpace(user.ApplicantTag)
		if tag == "" {
			return false
		}
		for _, t := range concept.ApplicantTags {
			if strings.EqualFold(strings.TrimSpace(t), tag) {
				return true
			}
		}
	}
	return false
}

func matchesCareer(concept *models.PaymentConcept, user models.UserProfile) bool {
	return user.CareerID != nil && containsUint(concept.CareerIDs, *user.CareerID)
}

func matchesSemester(concept *models.PaymentConcept, user models.UserProfile) bool {
	if user.Semester == nil {
		return false
	}
	for _, s := range concept.Semesters {
		if s == *user.Semester {
			return true
		}
	}
	return false
}

func containsUint(set []uint, v uint) bool {
	for _, x := range set {
		if x == v {
			return true
		}
	}
	return false
}
