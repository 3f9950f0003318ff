package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/quayside/tradeledger/internal/models"
)

// ErrUserNotFound is returned when a user lookup misses.
var ErrUserNotFound = errors.New("user service: user not found")

// ProfileUpdateInput lists the editable profile fields. Nil pointers
// leave the stored value untouched.
type ProfileUpdateInput struct {
	FirstName *string
	LastName  *string
	Phone     *string
	Company   *string
	Position  *string
	Timezone  *string
	Language  *string
}

// UserService reads and mutates user accounts and their profiles.
type UserService struct {
	db *gorm.DB
}

// NewUserService constructs a UserService.
func NewUserService(db *gorm.DB) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db}, nil
}

// Get loads a user with its profile.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Preload("Profile").Take(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: load user: %w", err)
	}
	return &user, nil
}

// UpdateProfile applies the supplied changes and reports a field-level
// diff of what actually changed, keyed by field name with old and new
// values, suitable for the audit trail.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, input ProfileUpdateInput) (*models.User, map[string]any, error) {
	ctx = ensureContext(ctx)

	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if user.Profile == nil {
		return nil, nil, fmt.Errorf("user service: user %s has no profile", userID)
	}

	changes := map[string]any{}
	userUpdates := map[string]any{}
	profileUpdates := map[string]any{}

	apply := func(field string, target map[string]any, current string, next *string) string {
		if next == nil {
			return current
		}
		value := strings.TrimSpace(*next)
		if value == current {
			return current
		}
		target[field] = value
		changes[field] = map[string]string{"old": current, "new": value}
		return value
	}

	user.FirstName = apply("first_name", userUpdates, user.FirstName, input.FirstName)
	user.LastName = apply("last_name", userUpdates, user.LastName, input.LastName)
	user.Profile.Phone = apply("phone", profileUpdates, user.Profile.Phone, input.Phone)
	user.Profile.Company = apply("company", profileUpdates, user.Profile.Company, input.Company)
	user.Profile.Position = apply("position", profileUpdates, user.Profile.Position, input.Position)
	user.Profile.Timezone = apply("timezone", profileUpdates, user.Profile.Timezone, input.Timezone)
	user.Profile.Language = apply("language", profileUpdates, user.Profile.Language, input.Language)

	if len(changes) == 0 {
		return user, changes, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(userUpdates) > 0 {
			if err := tx.Model(user).Updates(userUpdates).Error; err != nil {
				return err
			}
		}
		if len(profileUpdates) > 0 {
			if err := tx.Model(user.Profile).Updates(profileUpdates).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("user service: update profile: %w", err)
	}

	return user, changes, nil
}

// TouchActivity stamps the profile's last activity time.
func (s *UserService) TouchActivity(ctx context.Context, userID string) error {
	ctx = ensureContext(ctx)

	return s.db.WithContext(ctx).
		Model(&models.UserProfile{}).
		Where("user_id = ?", userID).
		Update("last_activity_at", gorm.Expr("CURRENT_TIMESTAMP")).Error
}
