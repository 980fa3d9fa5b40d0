package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ROLE_STUDENT      = "student"
	ROLE_APPLICANT    = "applicant"
	ROLE_PARENT       = "parent"
	ROLE_FINANCE      = "finance"
	ROLE_ADMIN        = "admin"
	STATUS_ACTIVE     = "active"
	STATUS_INACTIVE   = "inactive"
	STATUS_DISABLED   = "disabled"
	STATUS_GRADUATED  = "graduated"
	STATUS_SUSPENDED  = "suspended"
	STATUS_WITHDRAWED = "withdrawed"
)

type User struct {
	ID        uint                       `gorm:"primaryKey" json:"id"`
	Name      string                     `gorm:"type:varchar(150)" json:"name" validate:"required,min=3,max=150"`
	Email     string                     `gorm:"uniqueIndex;type:varchar(200) CHARACTER SET utf8 COLLATE utf8_bin" json:"email" validate:"required,email,min=5,max=200"`
	Roles     datatypes.JSONSlice[string] `gorm:"type:json" json:"roles" validate:"required,min=1,dive,oneof=student applicant parent finance admin"`
	Status    string                     `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active inactive disabled graduated suspended withdrawed"`
	Student   *StudentDetail             `gorm:"foreignKey:UserID" json:"student,omitempty"`
	CreatedAt time.Time                  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time                  `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt             `gorm:"index" json:"-"`
}

// StudentDetail holds the academic placement used for concept targeting.
// Applicants carry a tag (e.g. "new-2026") instead of a career placement.
type StudentDetail struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"not null;uniqueIndex" json:"user_id"`
	CareerID     *uint     `gorm:"index" json:"career_id,omitempty"`
	Semester     *int      `gorm:"index" json:"semester,omitempty" validate:"omitempty,min=1,max=20"`
	ApplicantTag string    `gorm:"type:varchar(100);default:'';index" json:"applicant_tag"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// UserProfile is the read-only view of a user that eligibility decisions need.
type UserProfile struct {
	ID           uint
	Roles        []string
	CareerID     *uint
	Semester     *int
	ApplicantTag string
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// IsActive reports whether the user status is active
func (u *User) IsActive() bool {
	return u.Status == STATUS_ACTIVE
}

// HasRole reports whether the user holds the given role (case-insensitive).
func (u *User) HasRole(role string) bool {
	return hasRole(u.Roles, role)
}

// Profile flattens the user and its student detail into a UserProfile.
func (u *User) Profile() UserProfile {
	p := UserProfile{
		ID:    u.ID,
		Roles: append([]string(nil), u.Roles...),
	}
	if u.Student != nil {
		p.CareerID = u.Student.CareerID
		p.Semester = u.Student.Semester
		p.ApplicantTag = strings.TrimSpace(u.Student.ApplicantTag)
	}
	return p
}

// HasRole reports whether the profile holds the given role.
func (p UserProfile) HasRole(role string) bool {
	return hasRole(p.Roles, role)
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if strings.EqualFold(strings.TrimSpace(r), role) {
			return true
		}
	}
	return false
}
