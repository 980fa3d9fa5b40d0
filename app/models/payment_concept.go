package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ConceptStatus is the lifecycle status of a payment concept.
type ConceptStatus string

const (
	ConceptStatusActive    ConceptStatus = "active"
	ConceptStatusFinalized ConceptStatus = "finalized"
	ConceptStatusDisabled  ConceptStatus = "disabled"
	ConceptStatusDeleted   ConceptStatus = "deleted"
)

// IsValid reports whether s is one of the known concept statuses.
func (s ConceptStatus) IsValid() bool {
	switch s {
	case ConceptStatusActive, ConceptStatusFinalized, ConceptStatusDisabled, ConceptStatusDeleted:
		return true
	}
	return false
}

// AppliesTo is the targeting mode of a payment concept.
type AppliesTo string

const (
	AppliesToAll            AppliesTo = "all"
	AppliesToCareer         AppliesTo = "career"
	AppliesToSemester       AppliesTo = "semester"
	AppliesToCareerSemester AppliesTo = "career_semester"
	AppliesToStudents       AppliesTo = "students"
	AppliesToTag            AppliesTo = "tag"
)

func (a AppliesTo) IsValid() bool {
	switch a {
	case AppliesToAll, AppliesToCareer, AppliesToSemester, AppliesToCareerSemester, AppliesToStudents, AppliesToTag:
		return true
	}
	return false
}

// PaymentConcept is a chargeable item (tuition, registration fee, ...) with
// targeting rules. Target sets are owned by the concept and stored as JSON.
type PaymentConcept struct {
	ID               uint                        `gorm:"primaryKey" json:"id"`
	Name             string                      `gorm:"type:varchar(150);not null" json:"name"`
	Description      string                      `gorm:"type:text" json:"description"`
	Amount           decimal.Decimal             `gorm:"type:decimal(12,2);not null" json:"amount"`
	Status           ConceptStatus               `gorm:"type:varchar(20);not null;default:'active';index:idx_payment_concepts_status_changed,priority:1" json:"status"`
	AppliesTo        AppliesTo                   `gorm:"type:varchar(30);not null;default:'all'" json:"applies_to"`
	StartDate        time.Time                   `gorm:"type:date;not null" json:"start_date"`
	EndDate          *time.Time                  `gorm:"type:date;default:null" json:"end_date,omitempty"`
	UserIDs          datatypes.JSONSlice[uint]   `gorm:"type:json" json:"user_ids"`
	CareerIDs        datatypes.JSONSlice[uint]   `gorm:"type:json" json:"career_ids"`
	Semesters        datatypes.JSONSlice[int]    `gorm:"type:json" json:"semesters"`
	ExceptionUserIDs datatypes.JSONSlice[uint]   `gorm:"type:json" json:"exception_user_ids"`
	ApplicantTags    datatypes.JSONSlice[string] `gorm:"type:json" json:"applicant_tags"`
	StatusChangedAt  *time.Time                  `gorm:"type:timestamp;default:null;index:idx_payment_concepts_status_changed,priority:2" json:"status_changed_at,omitempty"`
	CreatedAt        time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsActive reports whether the concept accepts payments and edits.
func (c *PaymentConcept) IsActive() bool {
	return c.Status == ConceptStatusActive
}

// HasStarted compares at day granularity, so a concept starting today has started.
func (c *PaymentConcept) HasStarted(now time.Time) bool {
	return !CivilDate(c.StartDate).After(CivilDate(now))
}

// IsExpired is true once today is past the end date. Concepts without an end
// date never expire.
func (c *PaymentConcept) IsExpired(now time.Time) bool {
	if c.EndDate == nil {
		return false
	}
	return CivilDate(now).After(CivilDate(*c.EndDate))
}

// CivilDate drops the clock part of t, keeping the calendar day in t's location.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
