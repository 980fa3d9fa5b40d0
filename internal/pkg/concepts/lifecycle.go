package concepts

import (
	"time"

	"github.com/ManuelReschke/SchoolPay/app/models"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/apperror"
)

// Error codes raised by the concept lifecycle.
const (
	CodeConceptAlreadyActive     = "ConceptAlreadyActive"
	CodeConceptAlreadyFinalized  = "ConceptAlreadyFinalized"
	CodeConceptAlreadyDisabled   = "ConceptAlreadyDisabled"
	CodeConceptAlreadyDeleted    = "ConceptAlreadyDeleted"
	CodeConceptCannotBeActivated = "ConceptCannotBeActivated"
	CodeConceptCannotBeFinalized = "ConceptCannotBeFinalized"
	CodeConceptCannotBeDisabled  = "ConceptCannotBeDisabled"
	CodeConceptCannotBeDeleted   = "ConceptCannotBeDeleted"
	CodeConceptNotStarted        = "ConceptNotStarted"
	CodeConceptNotEditable       = "ConceptNotEditable"
	CodeConceptInactive          = "ConceptInactive"
	CodeConceptExpired           = "ConceptExpired"
	CodeConceptUnknownStatus     = "ConceptUnknownStatus"
)

// transitions is the complete adjacency table. Anything not listed is rejected.
var transitions = map[models.ConceptStatus][]models.ConceptStatus{
	models.ConceptStatusActive: {
		models.ConceptStatusFinalized,
		models.ConceptStatusDisabled,
		models.ConceptStatusDeleted,
	},
}

// CanTransition reports whether from -> to is an allowed lifecycle move.
func CanTransition(from, to models.ConceptStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// EnsureTransition validates moving concept to the target status at now.
func EnsureTransition(concept *models.PaymentConcept, to models.ConceptStatus, now time.Time) error {
	if !to.IsValid() {
		return apperror.Validation(CodeConceptUnknownStatus, "unknown concept status "+string(to))
	}
	if concept.Status == to {
		return alreadyInStatus(to)
	}
	if !CanTransition(concept.Status, to) {
		return cannotMoveTo(concept.Status, to)
	}
	if to == models.ConceptStatusFinalized && !concept.HasStarted(now) {
		return apperror.Conflict(CodeConceptNotStarted, "a concept cannot be finalized before its start date")
	}
	return nil
}

// Transition applies a validated status change and stamps StatusChangedAt.
func Transition(concept *models.PaymentConcept, to models.ConceptStatus, now time.Time) error {
	if err := EnsureTransition(concept, to, now); err != nil {
		return err
	}
	concept.Status = to
	stamp := now
	concept.StatusChangedAt = &stamp
	return nil
}

// EnsureValidToUpdate rejects field edits unless the concept is active.
func EnsureValidToUpdate(concept *models.PaymentConcept) error {
	if concept.IsActive() {
		return nil
	}
	return apperror.Conflict(CodeConceptNotEditable, "only active concepts can be modified; current status is "+string(concept.Status))
}

// EnsurePayable checks the concept accepts payments at now.
func EnsurePayable(concept *models.PaymentConcept, now time.Time) error {
	switch {
	case !concept.IsActive():
		return apperror.NotAllowed(CodeConceptInactive, "concept is not active")
	case !concept.HasStarted(now):
		return apperror.NotAllowed(CodeConceptNotStarted, "concept has not started yet")
	case concept.IsExpired(now):
		return apperror.NotAllowed(CodeConceptExpired, "concept has expired")
	}
	return nil
}

func alreadyInStatus(s models.ConceptStatus) error {
	switch s {
	case models.ConceptStatusActive:
		return apperror.Conflict(CodeConceptAlreadyActive, "concept is already active")
	case models.ConceptStatusFinalized:
		return apperror.Conflict(CodeConceptAlreadyFinalized, "concept is already finalized")
	case models.ConceptStatusDisabled:
		return apperror.Conflict(CodeConceptAlreadyDisabled, "concept is already disabled")
	default:
		return apperror.Conflict(CodeConceptAlreadyDeleted, "concept is already deleted")
	}
}

func cannotMoveTo(from, to models.ConceptStatus) error {
	msg := "concept in status " + string(from) + " cannot move to " + string(to)
	switch to {
	case models.ConceptStatusActive:
		return apperror.Conflict(CodeConceptCannotBeActivated, msg)
	case models.ConceptStatusFinalized:
		return apperror.Conflict(CodeConceptCannotBeFinalized, msg)
	case models.ConceptStatusDisabled:
		return apperror.Conflict(CodeConceptCannotBeDisabled, msg)
	default:
		return apperror.Conflict(CodeConceptCannotBeDeleted, msg)
	}
}
