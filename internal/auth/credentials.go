package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/quayside/tradeledger/internal/models"
	"github.com/quayside/tradeledger/pkg/crypto"
)

var (
	// ErrInvalidCredentials is returned when the identity/password pair
	// is wrong. It never discloses which half failed.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrAccountLocked signals that the user exceeded the permitted
	// failed attempts and the lockout has not yet elapsed.
	ErrAccountLocked = errors.New("auth: account locked")
	// ErrAccountDisabled signals a deactivated account.
	ErrAccountDisabled = errors.New("auth: account disabled")
	// ErrIdentifierTaken is returned when registration collides with an
	// existing username or email.
	ErrIdentifierTaken = errors.New("auth: username or email already taken")
)

// CredentialConfig defines lockout behaviour for the credential service.
type CredentialConfig struct {
	LockoutThreshold int
	LockoutDuration  time.Duration
	Clock            func() time.Time
}

// AuthenticateInput contains the submitted credentials plus client metadata.
type AuthenticateInput struct {
	Identifier string // username or email
	Password   string
	IPAddress  string
}

// RegisterInput captures the details required to register a new user.
type RegisterInput struct {
	Username         string
	Email            string
	Password         string
	FirstName        string
	LastName         string
	Phone            string
	Company          string
	Position         string
	MarketingConsent bool
	IPAddress        string
	UserAgent        string
}

// CredentialService verifies passwords and maintains per-identity
// lockout state.
type CredentialService struct {
	db        *gorm.DB
	clock     func() time.Time
	threshold int
	duration  time.Duration
}

// NewCredentialService builds a credential service with sane defaults.
func NewCredentialService(db *gorm.DB, cfg CredentialConfig) (*CredentialService, error) {
	if db == nil {
		return nil, errors.New("credential service: db is required")
	}

	threshold := cfg.LockoutThreshold
	if threshold <= 0 {
		threshold = 5
	}

	duration := cfg.LockoutDuration
	if duration <= 0 {
		duration = 30 * time.Minute
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &CredentialService{
		db:        db,
		clock:     clock,
		threshold: threshold,
		duration:  duration,
	}, nil
}

// Authenticate verifies the supplied credentials and returns the user
// when successful. Lockout takes precedence over password correctness.
func (s *CredentialService) Authenticate(input AuthenticateInput) (*models.User, error) {
	identity := strings.TrimSpace(input.Identifier)
	if identity == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	var user models.User
	err := s.db.Preload("Profile").
		Where("LOWER(username) = LOWER(?) OR LOWER(email) = LOWER(?)", identity, identity).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("credential service: query user: %w", err)
	}
	if user.Profile == nil {
		return nil, fmt.Errorf("credential service: user %s has no profile", user.ID)
	}

	now := s.clock()

	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	if user.Profile.LockedUntil != nil && user.Profile.LockedUntil.After(now) {
		return nil, ErrAccountLocked
	}

	// Lockout has elapsed; reset the stale state before checking the password.
	if user.Profile.LockedUntil != nil {
		if err := s.db.Model(user.Profile).Updates(map[string]any{
			"locked_until":    nil,
			"failed_attempts": 0,
		}).Error; err != nil {
			return nil, fmt.Errorf("credential service: reset lock state: %w", err)
		}
		user.Profile.LockedUntil = nil
		user.Profile.FailedAttempts = 0
	}

	if !crypto.VerifyPassword(user.Password, input.Password) {
		return nil, s.recordFailure(&user, now)
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&user).Update("last_login_at", now).Error; err != nil {
			return err
		}
		return tx.Model(user.Profile).Updates(map[string]any{
			"failed_attempts":  0,
			"locked_until":     nil,
			"last_login_ip":    strings.TrimSpace(input.IPAddress),
			"last_activity_at": now,
		}).Error
	}); err != nil {
		return nil, fmt.Errorf("credential service: record login: %w", err)
	}

	user.LastLoginAt = &now
	user.Profile.FailedAttempts = 0
	user.Profile.LockedUntil = nil

	return &user, nil
}

// recordFailure increments the failed-attempt counter with a SQL-level
// increment so concurrent failures cannot undercount, then applies the
// lockout when the new count reaches the threshold.
func (s *CredentialService) recordFailure(user *models.User, now time.Time) error {
	if err := s.db.Model(user.Profile).
		UpdateColumn("failed_attempts", gorm.Expr("failed_attempts + ?", 1)).Error; err != nil {
		return fmt.Errorf("credential service: count failure: %w", err)
	}

	var profile models.UserProfile
	if err := s.db.Take(&profile, "user_id = ?", user.ID).Error; err != nil {
		return fmt.Errorf("credential service: reload profile: %w", err)
	}

	if profile.FailedAttempts >= s.threshold {
		lockUntil := now.Add(s.duration)
		if err := s.db.Model(&profile).Update("locked_until", lockUntil).Error; err != nil {
			return fmt.Errorf("credential service: apply lockout: %w", err)
		}
		return ErrAccountLocked
	}

	return ErrInvalidCredentials
}

// Register creates the user, its profile, and the initial registration
// consent record as one transaction. There is no implicit profile
// creation hook anywhere else; this is the single place a profile is born.
func (s *CredentialService) Register(input RegisterInput) (*models.User, error) {
	if strings.TrimSpace(input.Username) == "" || strings.TrimSpace(input.Email) == "" || input.Password == "" {
		return nil, errors.New("credential service: username, email and password are required")
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("credential service: hash password: %w", err)
	}

	now := s.clock()

	user := &models.User{
		Username:  strings.TrimSpace(input.Username),
		Email:     strings.ToLower(strings.TrimSpace(input.Email)),
		Password:  hashed,
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		IsActive:  true,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}

		profile := &models.UserProfile{
			UserID:           user.ID,
			Phone:            strings.TrimSpace(input.Phone),
			Company:          strings.TrimSpace(input.Company),
			Position:         strings.TrimSpace(input.Position),
			Timezone:         "UTC",
			Language:         "en",
			GDPRConsent:      true,
			GDPRConsentAt:    &now,
			MarketingConsent: input.MarketingConsent,
		}
		if err := tx.Create(profile).Error; err != nil {
			return err
		}
		user.Profile = profile

		consent := &models.ConsentRecord{
			UserID:      user.ID,
			ConsentType: "registration",
			Given:       true,
			IPAddress:   strings.TrimSpace(input.IPAddress),
			UserAgent:   input.UserAgent,
			DecidedAt:   now,
		}
		return tx.Create(consent).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrIdentifierTaken
		}
		return nil, fmt.Errorf("credential service: create user: %w", err)
	}

	return user, nil
}

// ChangePassword updates a user's password after verifying the current one.
func (s *CredentialService) ChangePassword(userID, currentPassword, newPassword string) error {
	if strings.TrimSpace(userID) == "" || newPassword == "" {
		return errors.New("credential service: user id and new password are required")
	}

	var user models.User
	if err := s.db.Take(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("credential service: find user: %w", err)
	}

	if !crypto.VerifyPassword(user.Password, currentPassword) {
		return ErrInvalidCredentials
	}

	hashed, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("credential service: hash password: %w", err)
	}

	if err := s.db.Model(&user).Update("password", hashed).Error; err != nil {
		return fmt.Errorf("credential service: update password: %w", err)
	}

	return nil
}
