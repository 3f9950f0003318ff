package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quayside/tradeledger/internal/models"
	"github.com/quayside/tradeledger/pkg/metrics"
)

// Token kinds carried in the typ claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Default token lifetimes applied when configuration leaves them unset.
const (
	DefaultAccessTokenTTL  = 10 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// ErrTokenInvalid covers every verification failure: bad signature,
// malformed structure, expiry, wrong type, and denylisted identifiers.
// Callers must not learn which check failed.
var ErrTokenInvalid = errors.New("token: invalid")

// TokenConfig bundles the configuration required to build a TokenService.
type TokenConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Rotate controls whether a consumed refresh token is denylisted
	// and replaced on every refresh.
	Rotate bool
	Clock  func() time.Time
}

// Claims represents the custom claims embedded in issued JWTs.
type Claims struct {
	UserID    string `json:"uid"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenPair represents an access token and refresh token pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenService issues, verifies, and rotates signed token pairs backed
// by a denylist table for refresh revocation.
type TokenService struct {
	db         *gorm.DB
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	rotate     bool
	now        func() time.Time
}

// NewTokenService constructs a TokenService from the provided configuration.
func NewTokenService(db *gorm.DB, cfg TokenConfig) (*TokenService, error) {
	if db == nil {
		return nil, errors.New("token service: db is required")
	}
	if cfg.Secret == "" {
		return nil, errors.New("token service: secret must be provided")
	}

	accessTTL := cfg.AccessTTL
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTokenTTL
	}
	refreshTTL := cfg.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTokenTTL
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &TokenService{
		db:         db,
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		rotate:     cfg.Rotate,
		now:        now,
	}, nil
}

// AccessTTL reports the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL reports the configured refresh token lifetime.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// IssuePair mints a fresh access and refresh token for the given user.
func (s *TokenService) IssuePair(userID string) (TokenPair, error) {
	if userID == "" {
		return TokenPair{}, errors.New("token service: user id is required")
	}

	access, err := s.sign(userID, TokenTypeAccess, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}

	refresh, err := s.sign(userID, TokenTypeRefresh, s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *TokenService) sign(userID, tokenType string, ttl time.Duration) (string, error) {
	now := s.now()

	claims := &Claims{
		UserID:    userID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("token service: sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// Verify parses and validates a signed token of the expected type. Any
// failure yields ErrTokenInvalid without a partial identity.
func (s *TokenService) Verify(tokenString, expectedType string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrTokenInvalid
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != expectedType {
		return nil, ErrTokenInvalid
	}
	if claims.UserID == "" || claims.ID == "" {
		return nil, ErrTokenInvalid
	}

	return &claims, nil
}

// Rotate exchanges a valid refresh token for a new token pair. With
// rotation enabled the consumed token is denylisted in the same step
// that checks it, so a concurrent second use of the same token fails at
// the storage layer. With rotation disabled the refresh token is
// returned unchanged alongside the new access token.
func (s *TokenService) Rotate(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.Verify(refreshToken, TokenTypeRefresh)
	if err != nil {
		return TokenPair{}, err
	}

	if s.rotate {
		if err := s.denylist(ctx, claims); err != nil {
			return TokenPair{}, err
		}

		pair, err := s.IssuePair(claims.UserID)
		if err != nil {
			return TokenPair{}, err
		}
		return pair, nil
	}

	// Rotation disabled: the denylist check still applies (logout
	// revocations must be honoured) but the token is not consumed.
	revoked, err := s.isDenylisted(ctx, claims.ID)
	if err != nil {
		return TokenPair{}, err
	}
	if revoked {
		return TokenPair{}, ErrTokenInvalid
	}

	access, err := s.sign(claims.UserID, TokenTypeAccess, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refreshToken}, nil
}

// denylist inserts the token identifier, treating an existing row as a
// replay of an already-consumed token.
func (s *TokenService) denylist(ctx context.Context, claims *Claims) error {
	entry := models.RevokedToken{
		JTI:       claims.ID,
		UserID:    claims.UserID,
		ExpiresAt: claims.ExpiresAt.Time,
	}

	err := s.db.WithContext(ctx).Create(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("token service: denylist insert: %w", err)
	}

	metrics.RevokedTokens.Inc()
	return nil
}

func (s *TokenService) isDenylisted(ctx context.Context, jti string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.RevokedToken{}).
		Where("jti = ?", jti).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("token service: denylist lookup: %w", err)
	}
	return count > 0, nil
}

// Revoke denylists a refresh token so it can never mint again. Invalid
// tokens and repeated revocations are not errors; logout must always
// succeed from the caller's point of view.
func (s *TokenService) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := s.Verify(refreshToken, TokenTypeRefresh)
	if err != nil {
		return nil
	}

	if err := s.denylist(ctx, claims); err != nil {
		if errors.Is(err, ErrTokenInvalid) {
			return nil
		}
		return err
	}
	return nil
}

// PurgeExpired removes denylist entries whose natural expiry has passed;
// an expired token fails signature-window verification anyway.
func (s *TokenService) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&models.RevokedToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("token service: purge denylist: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		metrics.RevokedTokens.Sub(float64(result.RowsAffected))
	}
	return result.RowsAffected, nil
}
