package repository

import (
	"context"

	"github.com/ManuelReschke/SchoolPay/app/models"
	"gorm.io/gorm"
)

// userRepository implements the UserDirectory interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user directory backed by GORM
func NewUserRepository(db *gorm.DB) UserDirectory {
	return &userRepository{db: db}
}

// GetByID retrieves a user together with its student detail
func (r *userRepository) GetByID(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Preload("Student").First(&user, userID).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetProfile returns the eligibility view of a user
func (r *userRepository) GetProfile(ctx context.Context, userID uint) (*models.UserProfile, error) {
	user, err := r.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	p := user.Profile()
	return &p, nil
}
