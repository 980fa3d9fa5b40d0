package concepts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ManuelReschke/SchoolPay/app/models"
	"github.com/ManuelReschke/SchoolPay/internal/pkg/apperror"
)

func uintPtr(v uint) *uint { return &v }
func intPtr(v int) *int    { return &v }

func TestResolve_Order(t *testing.T) {
	r := NewResolver()
	student := models.UserProfile{ID: 4, Roles: []string{models.ROLE_STUDENT}}

	c := activeConcept()
	c.StartDate = testNow.AddDate(0, 0, 1)
	c.ExceptionUserIDs = []uint{4}
	assert.Equal(t, ReasonConceptNotStarted, r.Resolve(c, student, testNow).Reason)

	c.Status = models.ConceptStatusDisabled
	assert.Equal(t, ReasonConceptInactive, r.Resolve(c, student, testNow).Reason)

	c = activeConcept()
	end := testNow.AddDate(0, 0, -1)
	c.EndDate = &end
	c.ExceptionUserIDs = []uint{4}
	assert.Equal(t, ReasonConceptExpired, r.Resolve(c, student, testNow).Reason)

	c.EndDate = nil
	d := r.Resolve(c, student, testNow)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonUserExplicitlyExcluded, d.Reason)
	assert.Equal(t, apperror.KindNotAllowed, apperror.KindOf(d.Err()))
	assert.Equal(t, "UserExplicitlyExcluded", apperror.CodeOf(d.Err()))
}

func TestResolve_StartsToday(t *testing.T) {
	c := activeConcept()
	c.StartDate = testNow.Add(3 * time.Hour)
	d := NewResolver().Resolve(c, models.UserProfile{ID: 1, Roles: []string{models.ROLE_APPLICANT}}, testNow)
	assert.True(t, d.Allowed)
	assert.NoError(t, d.Err())
}

func TestApplies_Targeting(t *testing.T) {
	career, semester := uint(7), 3
	student := models.UserProfile{ID: 4, Roles: []string{models.ROLE_STUDENT}, CareerID: &career, Semester: &semester}
	applicant := models.UserProfile{ID: 5, Roles: []string{models.ROLE_APPLICANT}, ApplicantTag: "Medicine-2026"}
	parent := models.UserProfile{ID: 6, Roles: []string{models.ROLE_PARENT}}

	tests := []struct {
		name    string
		concept models.PaymentConcept
		user    models.UserProfile
		allowed bool
	}{
		{"all student", models.PaymentConcept{AppliesTo: models.AppliesToAll}, student, true},
		{"all applicant", models.PaymentConcept{AppliesTo: models.AppliesToAll}, applicant, true},
		{"all parent", models.PaymentConcept{AppliesTo: models.AppliesToAll}, parent, false},
		{"career match", models.PaymentConcept{AppliesTo: models.AppliesToCareer, CareerIDs: []uint{7}}, student, true},
		{"career miss", models.PaymentConcept{AppliesTo: models.AppliesToCareer, CareerIDs: []uint{8}}, student, false},
		{"career without detail", models.PaymentConcept{AppliesTo: models.AppliesToCareer, CareerIDs: []uint{7}}, applicant, false},
		{"semester match", models.PaymentConcept{AppliesTo: models.AppliesToSemester, Semesters: []int{1, 3}}, student, true},
		{"career_semester both", models.PaymentConcept{AppliesTo: models.AppliesToCareerSemester, CareerIDs: []uint{7}, Semesters: []int{3}}, student, true},
		{"career_semester one", models.PaymentConcept{AppliesTo: models.AppliesToCareerSemester, CareerIDs: []uint{7}, Semesters: []int{4}}, student, false},
		{"students listed", models.PaymentConcept{AppliesTo: models.AppliesToStudents, UserIDs: []uint{4, 9}}, student, true},
		{"students unlisted", models.PaymentConcept{AppliesTo: models.AppliesToStudents, UserIDs: []uint{9}}, student, false},
		{"tag case-insensitive", models.PaymentConcept{AppliesTo: models.AppliesToTag, ApplicantTags: []string{"medicine-2026"}}, applicant, true},
		{"tag miss", models.PaymentConcept{AppliesTo: models.AppliesToTag, ApplicantTags: []string{"law-2026"}}, applicant, false},
		{"tag without tag", models.PaymentConcept{AppliesTo: models.AppliesToTag, ApplicantTags: []string{"law-2026"}}, student, false},
	}

	r := NewResolver()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.concept
			d := r.Applies(&c, tt.user)
			assert.Equal(t, tt.allowed, d.Allowed)
			if !tt.allowed {
				assert.Equal(t, ReasonUserNotAllowed, d.Reason)
			}
		})
	}
}

func TestApplies_ExceptionBeatsTargeting(t *testing.T) {
	c := &models.PaymentConcept{AppliesTo: models.AppliesToCareer, CareerIDs: []uint{7}, ExceptionUserIDs: []uint{4}}
	user := models.UserProfile{ID: 4, Roles: []string{models.ROLE_STUDENT}, CareerID: uintPtr(7), Semester: intPtr(2)}

	assert.Equal(t, ReasonUserExplicitlyExcluded, NewResolver().Applies(c, user).Reason)
}
