package concepts

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/SchoolPay/app/models"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/apperror"
)

// Validation error codes.
const (
	CodeNameRequired         = "NameRequired"
	CodeAmountOutOfRange     = "AmountOutOfRange"
	CodeAmountPrecision      = "AmountPrecision"
	CodeStartDateRequired    = "StartDateRequired"
	CodeStartDateOutOfWindow = "StartDateOutOfWindow"
	CodeEndDateBeforeToday   = "EndDateBeforeToday"
	CodeEndDateBeforeStart   = "EndDateBeforeStart"
	CodeEndDateTooFar        = "EndDateTooFar"
	CodeAppliesToInvalid     = "AppliesToInvalid"
	CodeRequiredForAppliesTo = "RequiredForAppliesTo"
	CodeTargetNotAllowed     = "TargetNotAllowedForAppliesTo"
	CodeInvalidSemester      = "InvalidSemester"
	CodeExceptionOverlap     = "ExceptionOverlapsStudents"
)

// Limits are the configured bounds for concept fields.
type Limits struct {
	MinAmount           decimal.Decimal
	MaxAmount           decimal.Decimal
	AmountPlaces        int
	StartDatePastDays   int
	StartDateFutureDays int
	EndDateMaxYears     int
}

// LimitsFromSettings builds Limits from the loaded payment settings.
func LimitsFromSettings(s *models.PaymentSettings) Limits {
	minAmount, maxAmount := s.AmountRange()
	return Limits{
		MinAmount:           minAmount,
		MaxAmount:           maxAmount,
		AmountPlaces:        s.AmountPlaces(),
		StartDatePastDays:   s.StartDatePastDays,
		StartDateFutureDays: s.StartDateFutureDays,
		EndDateMaxYears:     s.EndDateMaxYears,
	}
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Name             *string
	Description      *string
	Amount           *decimal.Decimal
	StartDate        *time.Time
	EndDate          *time.Time
	AppliesTo        *models.AppliesTo
	UserIDs          *[]uint
	CareerIDs        *[]uint
	Semesters        *[]int
	ExceptionUserIDs *[]uint
	ApplicantTags    *[]string
}

func (p Patch) touchesTargeting() bool {
	return p.AppliesTo != nil || p.UserIDs != nil || p.CareerIDs != nil || p.Semesters != nil ||
		p.ExceptionUserIDs != nil || p.ApplicantTags != nil
}

// ValidateForCreate checks every field of a new concept. Nothing is persisted
// when it returns an error.
func ValidateForCreate(c *models.PaymentConcept, limits Limits, now time.Time) error {
	if strings.TrimSpace(c.Name) == "" {
		return apperror.Validation(CodeNameRequired, "name is required")
	}
	if err := validateAmount(c.Amount, limits); err != nil {
		return err
	}
	if c.StartDate.IsZero() {
		return apperror.Validation(CodeStartDateRequired, "start_date is required")
	}
	if err := validateStartDate(c.StartDate, limits, now); err != nil {
		return err
	}
	if c.EndDate != nil {
		if err := validateEndDate(*c.EndDate, c.StartDate, limits, now); err != nil {
			return err
		}
	}
	return validateTargeting(c)
}

// ValidateForUpdate applies patch onto a copy of original, validates the
// result and returns it. End dates are checked against the effective start
// date, i.e. the original one when the patch leaves start_date alone.
func ValidateForUpdate(original *models.PaymentConcept, patch Patch, limits Limits, now time.Time) (*models.PaymentConcept, error) {
	if err := EnsureValidToUpdate(original); err != nil {
		return nil, err
	}

	merged := *original
	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return nil, apperror.Validation(CodeNameRequired, "name is required")
		}
		merged.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		merged.Description = *patch.Description
	}
	if patch.Amount != nil {
		if err := validateAmount(*patch.Amount, limits); err != nil {
			return nil, err
		}
		merged.Amount = *patch.Amount
	}
	if patch.StartDate != nil {
		if err := validateStartDate(*patch.StartDate, limits, now); err != nil {
			return nil, err
		}
		merged.StartDate = *patch.StartDate
	}
	if patch.EndDate != nil {
		end := *patch.EndDate
		merged.EndDate = &end
	}
	if merged.EndDate != nil && (patch.EndDate != nil || patch.StartDate != nil) {
		if err := validateEndDate(*merged.EndDate, merged.StartDate, limits, now); err != nil {
			return nil, err
		}
	}

	if patch.touchesTargeting() {
		if patch.AppliesTo != nil {
			merged.AppliesTo = *patch.AppliesTo
		}
		if patch.UserIDs != nil {
			merged.UserIDs = append(merged.UserIDs[:0:0], (*patch.UserIDs)...)
		}
		if patch.CareerIDs != nil {
			merged.CareerIDs = append(merged.CareerIDs[:0:0], (*patch.CareerIDs)...)
		}
		if patch.Semesters != nil {
			merged.Semesters = append(merged.Semesters[:0:0], (*patch.Semesters)...)
		}
		if patch.ExceptionUserIDs != nil {
			merged.ExceptionUserIDs = append(merged.ExceptionUserIDs[:0:0], (*patch.ExceptionUserIDs)...)
		}
		if patch.ApplicantTags != nil {
			merged.ApplicantTags = append(merged.ApplicantTags[:0:0], (*patch.ApplicantTags)...)
		}
		if err := validateTargeting(&merged); err != nil {
			return nil, err
		}
	}
	return &merged, nil
}

func validateAmount(amount decimal.Decimal, limits Limits) error {
	if amount.LessThan(limits.MinAmount) || amount.GreaterThan(limits.MaxAmount) {
		return apperror.Validation(CodeAmountOutOfRange, fmt.Sprintf("amount must be between %s and %s",
			limits.MinAmount.StringFixed(2), limits.MaxAmount.StringFixed(2)))
	}
	if !amount.Equal(amount.Truncate(int32(limits.AmountPlaces))) {
		if limits.AmountPlaces == 0 {
			return apperror.Validation(CodeAmountPrecision, "amount must be a whole number")
		}
		return apperror.Validation(CodeAmountPrecision, fmt.Sprintf("amount supports at most %d decimal places", limits.AmountPlaces))
	}
	return nil
}

func validateStartDate(start time.Time, limits Limits, now time.Time) error {
	today := models.CivilDate(now)
	earliest := today.AddDate(0, 0, -limits.StartDatePastDays)
	latest := today.AddDate(0, 0, limits.StartDateFutureDays)
	day := models.CivilDate(start)
	if day.Before(earliest) || day.After(latest) {
		return apperror.Validation(CodeStartDateOutOfWindow, fmt.Sprintf("start_date must be between %s and %s",
			earliest.Format(time.DateOnly), latest.Format(time.DateOnly)))
	}
	return nil
}

func validateEndDate(end, start time.Time, limits Limits, now time.Time) error {
	today := models.CivilDate(now)
	day := models.CivilDate(end)
	if day.Before(today) {
		return apperror.Validation(CodeEndDateBeforeToday, "end_date cannot be in the past")
	}
	if day.Before(models.CivilDate(start)) {
		return apperror.Validation(CodeEndDateBeforeStart, "end_date must be on or after start_date")
	}
	if day.After(today.AddDate(limits.EndDateMaxYears, 0, 0)) {
		return apperror.Validation(CodeEndDateTooFar, fmt.Sprintf("end_date cannot be more than %d years ahead", limits.EndDateMaxYears))
	}
	return nil
}

// targetRule names the sets an applies_to mode requires and forbids.
type targetRule struct {
	required  []string
	forbidden []string
}

var targetRules = map[models.AppliesTo]targetRule{
	models.AppliesToAll:            {forbidden: []string{"user_ids", "career_ids", "semesters", "applicant_tags"}},
	models.AppliesToCareer:         {required: []string{"career_ids"}, forbidden: []string{"user_ids", "semesters", "applicant_tags"}},
	models.AppliesToSemester:       {required: []string{"semesters"}, forbidden: []string{"user_ids", "career_ids", "applicant_tags"}},
	models.AppliesToCareerSemester: {required: []string{"career_ids", "semesters"}, forbidden: []string{"user_ids", "applicant_tags"}},
	models.AppliesToStudents:       {required: []string{"user_ids"}, forbidden: []string{"career_ids", "semesters", "applicant_tags"}},
	models.AppliesToTag:            {required: []string{"applicant_tags"}, forbidden: []string{"user_ids", "career_ids", "semesters"}},
}

func validateTargeting(c *models.PaymentConcept) error {
	rule, ok := targetRules[c.AppliesTo]
	if !ok {
		return apperror.Validation(CodeAppliesToInvalid, "unknown applies_to "+string(c.AppliesTo))
	}

	sizes := map[string]int{
		"user_ids":       len(c.UserIDs),
		"career_ids":     len(c.CareerIDs),
		"semesters":      len(c.Semesters),
		"applicant_tags": len(nonBlank(c.ApplicantTags)),
	}
	for _, set := range rule.required {
		if sizes[set] == 0 {
			return apperror.Validation(CodeRequiredForAppliesTo,
				fmt.Sprintf("%s is required when applies_to is %s", set, c.AppliesTo))
		}
	}
	for _, set := range rule.forbidden {
		if sizes[set] > 0 {
			return apperror.Conflict(CodeTargetNotAllowed,
				fmt.Sprintf("%s must be empty when applies_to is %s", set, c.AppliesTo))
		}
	}
	for _, s := range c.Semesters {
		if s < 1 {
			return apperror.Validation(CodeInvalidSemester, fmt.Sprintf("semester %d is not valid", s))
		}
	}

	if len(c.UserIDs) > 0 && len(c.ExceptionUserIDs) > 0 {
		students := make(map[uint]struct{}, len(c.UserIDs))
		for _, id := range c.UserIDs {
			students[id] = struct{}{}
		}
		for _, id := range c.ExceptionUserIDs {
			if _, clash := students[id]; clash {
				return apperror.Conflict(CodeExceptionOverlap,
					fmt.Sprintf("user %d is both a target student and an exception", id))
			}
		}
	}
	return nil
}

func nonBlank(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if strings.TrimSpace(t) != "" {
			out = append(out, t)
		}
	}
	return out
}
