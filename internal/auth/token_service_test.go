package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quayside/tradeledger/internal/database/testutil"
	"github.com/quayside/tradeledger/internal/models"
)

func newTestTokenService(t *testing.T, mutate func(*TokenConfig)) (*TokenService, *fakeClock) {
	t.Helper()

	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	cfg := TokenConfig{
		Secret: "test-secret-please-rotate",
		Issuer: "tradeledger-test",
		Rotate: true,
		Clock:  clock.Now,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewTokenService(db, cfg)
	require.NoError(t, err)
	return svc, clock
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestIssuePairRoundTrip(t *testing.T) {
	svc, _ := newTestTokenService(t, nil)

	pair, err := svc.IssuePair("user-1")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	access, err := svc.Verify(pair.AccessToken, TokenTypeAccess)
	require.NoError(t, err)
	require.Equal(t, "user-1", access.UserID)
	require.Equal(t, TokenTypeAccess, access.TokenType)
	require.NotEmpty(t, access.ID)

	refresh, err := svc.Verify(pair.RefreshToken, TokenTypeRefresh)
	require.NoError(t, err)
	require.Equal(t, "user-1", refresh.UserID)
	require.NotEqual(t, access.ID, refresh.ID)
}

func TestVerifyRejectsWrongType(t *testing.T) {
	svc, _ := newTestTokenService(t, nil)

	pair, err := svc.IssuePair("user-1")
	require.NoError(t, err)

	_, err = svc.Verify(pair.AccessToken, TokenTypeRefresh)
	require.ErrorIs(t, err, ErrTokenInvalid)

	_, err = svc.Verify(pair.RefreshToken, TokenTypeAccess)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	svc, _ := newTestTokenService(t, nil)
	other, _ := newTestTokenService(t, func(cfg *TokenConfig) {
		cfg.Secret = "a-completely-different-secret"
	})

	pair, err := svc.IssuePair("user-1")
	require.NoError(t, err)

	_, err = other.Verify(pair.AccessToken, TokenTypeAccess)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyRejectsExpiredAccessToken(t *testing.T) {
	svc, clock := newTestTokenService(t, nil)

	pair, err := svc.IssuePair("user-1")
	require.NoError(t, err)

	clock.Advance(DefaultAccessTokenTTL + time.Minute)

	_, err = svc.Verify(pair.AccessToken, TokenTypeAccess)
	require.ErrorIs(t, err, ErrTokenInvalid)

	// Refresh tokens outlive access tokens.
	_, err = svc.Verify(pair.RefreshToken, TokenTypeRefresh)
	require.NoError(t, err)
}

func TestRotateInvalidatesOldRefreshToken(t *testing.T) {
	svc, _ := newTestTokenService(t, nil)
	ctx := context.Background()

	pair, err := svc.IssuePair("user-1")
	require.NoError(t, err)

	next, err := svc.Rotate(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	_, err = svc.Verify(next.AccessToken, TokenTypeAccess)
	require.NoError(t, err)

	// Replaying the consumed refresh token must fail.
	_, err = svc.Rotate(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRotateWithRotationDisabledKeepsRefreshToken(t *testing.T) {
	svc, _ := newTestTokenService(t, func(cfg *TokenConfig) {
		cfg.Rotate = false
	})
	ctx := context.Background()

	pair, err := svc.IssuePair("user-1")
	require.NoError(t, err)

	first, err := svc.Rotate(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, pair.RefreshToken, first.RefreshToken)

	// The same refresh token keeps working until revoked.
	second, err := svc.Rotate(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, pair.RefreshToken, second.RefreshToken)

	require.NoError(t, svc.Revoke(ctx, pair.RefreshToken))

	_, err = svc.Rotate(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRevokeIsIdempotent(t *testing.T) {
	svc, _ := newTestTokenService(t, nil)
	ctx := context.Background()

	pair, err := svc.IssuePair("user-1")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, pair.RefreshToken))
	require.NoError(t, svc.Revoke(ctx, pair.RefreshToken))
	require.NoError(t, svc.Revoke(ctx, "not-even-a-token"))

	_, err = svc.Rotate(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestPurgeExpiredRemovesOnlyStaleEntries(t *testing.T) {
	svc, clock := newTestTokenService(t, nil)
	ctx := context.Background()

	pair, err := svc.IssuePair("user-1")
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, pair.RefreshToken))

	removed, err := svc.PurgeExpired(ctx, clock.Now())
	require.NoError(t, err)
	require.Zero(t, removed)

	clock.Advance(DefaultRefreshTokenTTL + time.Hour)

	removed, err = svc.PurgeExpired(ctx, clock.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	var count int64
	require.NoError(t, svc.db.Model(&models.RevokedToken{}).Count(&count).Error)
	require.Zero(t, count)
}
