package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/quayside/tradeledger/internal/database/testutil"
	"github.com/quayside/tradeledger/internal/models"
	"github.com/quayside/tradeledger/pkg/crypto"
)

func newTestCredentialService(t *testing.T) (*CredentialService, *gorm.DB, *fakeClock) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	svc, err := NewCredentialService(db, CredentialConfig{Clock: clock.Now})
	require.NoError(t, err)
	return svc, db, clock
}

func seedUser(t *testing.T, db *gorm.DB, username, password string) *models.User {
	t.Helper()

	hashed, err := crypto.HashPassword(password)
	require.NoError(t, err)

	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: hashed,
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	require.NoError(t, db.Create(&models.UserProfile{
		UserID:   user.ID,
		Timezone: "UTC",
		Language: "en",
	}).Error)
	return user
}

func TestAuthenticateByUsernameAndEmail(t *testing.T) {
	svc, db, _ := newTestCredentialService(t)
	seedUser(t, db, "trader", "open-sesame")

	byName, err := svc.Authenticate(AuthenticateInput{Identifier: "trader", Password: "open-sesame"})
	require.NoError(t, err)
	require.Equal(t, "trader", byName.Username)
	require.NotNil(t, byName.LastLoginAt)

	byEmail, err := svc.Authenticate(AuthenticateInput{Identifier: "TRADER@example.com", Password: "open-sesame"})
	require.NoError(t, err)
	require.Equal(t, byName.ID, byEmail.ID)
}

func TestAuthenticateUnknownIdentity(t *testing.T) {
	svc, _, _ := newTestCredentialService(t)

	_, err := svc.Authenticate(AuthenticateInput{Identifier: "nobody", Password: "whatever"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateDisabledAccount(t *testing.T) {
	svc, db, _ := newTestCredentialService(t)
	user := seedUser(t, db, "trader", "open-sesame")
	require.NoError(t, db.Model(user).Update("is_active", false).Error)

	_, err := svc.Authenticate(AuthenticateInput{Identifier: "trader", Password: "open-sesame"})
	require.ErrorIs(t, err, ErrAccountDisabled)
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	svc, db, _ := newTestCredentialService(t)
	user := seedUser(t, db, "trader", "open-sesame")

	for i := 0; i < 4; i++ {
		_, err := svc.Authenticate(AuthenticateInput{Identifier: "trader", Password: "wrong"})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// Fifth failure trips the lock.
	_, err := svc.Authenticate(AuthenticateInput{Identifier: "trader", Password: "wrong"})
	require.ErrorIs(t, err, ErrAccountLocked)

	// Even the correct password is rejected while locked.
	_, err = svc.Authenticate(AuthenticateInput{Identifier: "trader", Password: "open-sesame"})
	require.ErrorIs(t, err, ErrAccountLocked)

	var profile models.UserProfile
	require.NoError(t, db.Take(&profile, "user_id = ?", user.ID).Error)
	require.Equal(t, 5, profile.FailedAttempts)
	require.NotNil(t, profile.LockedUntil)
}

func TestLockExpiryRestoresAccess(t *testing.T) {
	svc, db, clock := newTestCredentialService(t)
	user := seedUser(t, db, "trader", "open-sesame")

	for i := 0; i < 5; i++ {
		_, _ = svc.Authenticate(AuthenticateInput{Identifier: "trader", Password: "wrong"})
	}
	_, err := svc.Authenticate(AuthenticateInput{Identifier: "trader", Password: "open-sesame"})
	require.ErrorIs(t, err, ErrAccountLocked)

	clock.Advance(31 * time.Minute)

	got, err := svc.Authenticate(AuthenticateInput{Identifier: "trader", Password: "open-sesame"})
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)

	var profile models.UserProfile
	require.NoError(t, db.Take(&profile, "user_id = ?", user.ID).Error)
	require.Zero(t, profile.FailedAttempts)
	require.Nil(t, profile.LockedUntil)
}

func TestSuccessResetsFailureCounter(t *testing.T) {
	svc, db, _ := newTestCredentialService(t)
	user := seedUser(t, db, "trader", "open-sesame")

	for i := 0; i < 3; i++ {
		_, _ = svc.Authenticate(AuthenticateInput{Identifier: "trader", Password: "wrong"})
	}

	_, err := svc.Authenticate(AuthenticateInput{
		Identifier: "trader",
		Password:   "open-sesame",
		IPAddress:  "203.0.113.9",
	})
	require.NoError(t, err)

	var profile models.UserProfile
	require.NoError(t, db.Take(&profile, "user_id = ?", user.ID).Error)
	require.Zero(t, profile.FailedAttempts)
	require.Equal(t, "203.0.113.9", profile.LastLoginIP)
	require.NotNil(t, profile.LastActivityAt)
}

func TestRegisterCreatesProfileAndConsent(t *testing.T) {
	svc, db, _ := newTestCredentialService(t)

	user, err := svc.Register(RegisterInput{
		Username:  "newtrader",
		Email:     "NewTrader@Example.com",
		Password:  "long-enough-secret",
		FirstName: "Nia",
		Company:   "Quayside Commodities",
		IPAddress: "198.51.100.4",
		UserAgent: "test-agent",
	})
	require.NoError(t, err)
	require.Equal(t, "newtrader@example.com", user.Email)
	require.NotNil(t, user.Profile)
	require.True(t, user.Profile.GDPRConsent)
	require.Equal(t, "UTC", user.Profile.Timezone)

	var consent models.ConsentRecord
	require.NoError(t, db.Take(&consent, "user_id = ?", user.ID).Error)
	require.Equal(t, "registration", consent.ConsentType)
	require.True(t, consent.Given)
	require.Equal(t, "198.51.100.4", consent.IPAddress)

	// Stored password is hashed, never the plaintext.
	var stored models.User
	require.NoError(t, db.Take(&stored, "id = ?", user.ID).Error)
	require.NotEqual(t, "long-enough-secret", stored.Password)
	require.True(t, crypto.VerifyPassword(stored.Password, "long-enough-secret"))
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	svc, db, _ := newTestCredentialService(t)
	seedUser(t, db, "trader", "open-sesame")

	_, err := svc.Register(RegisterInput{
		Username: "trader",
		Email:    "other@example.com",
		Password: "long-enough-secret",
	})
	require.ErrorIs(t, err, ErrIdentifierTaken)

	// The failed transaction must not leave a partial profile behind.
	var count int64
	require.NoError(t, db.Model(&models.UserProfile{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestChangePassword(t *testing.T) {
	svc, db, _ := newTestCredentialService(t)
	user := seedUser(t, db, "trader", "open-sesame")

	err := svc.ChangePassword(user.ID, "not-the-password", "brand-new-secret")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, svc.ChangePassword(user.ID, "open-sesame", "brand-new-secret"))

	_, err = svc.Authenticate(AuthenticateInput{Identifier: "trader", Password: "open-sesame"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	got, err := svc.Authenticate(AuthenticateInput{Identifier: "trader", Password: "brand-new-secret"})
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)
}
