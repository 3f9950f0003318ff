package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quayside/tradeledger/internal/auth"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.True(t, cfg.Database.Postgres.Enabled)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)

	require.Equal(t, "tradeledger-file", cfg.Auth.JWT.Issuer)
	require.Equal(t, 5*time.Minute, cfg.Auth.JWT.AccessTTL)
	require.Equal(t, 72*time.Hour, cfg.Auth.Refresh.TTL)
	require.False(t, cfg.Auth.Refresh.Rotate)
	require.True(t, cfg.Auth.Cookies.Secure)
	require.Equal(t, "strict", cfg.Auth.Cookies.SameSite)

	require.Equal(t, 3, cfg.Auth.Lockout.Threshold)
	require.Equal(t, 10*time.Minute, cfg.Auth.Lockout.Duration)
	require.Equal(t, 2, cfg.Auth.RateLimit.Login.Limit)
	require.Equal(t, time.Minute, cfg.Auth.RateLimit.Login.Window)
	// Untouched sections keep their defaults.
	require.Equal(t, 3, cfg.Auth.RateLimit.Register.Limit)
	require.Equal(t, time.Hour, cfg.Auth.RateLimit.Register.Window)

	require.Equal(t, 30, cfg.Audit.RetentionDays)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, 10*time.Minute, cfg.Auth.JWT.AccessTTL)
	require.Equal(t, 168*time.Hour, cfg.Auth.Refresh.TTL)
	require.True(t, cfg.Auth.Refresh.Rotate)
	require.Equal(t, "lax", cfg.Auth.Cookies.SameSite)
	require.Equal(t, 5, cfg.Auth.Lockout.Threshold)
	require.Equal(t, 30*time.Minute, cfg.Auth.Lockout.Duration)
	require.Equal(t, 180, cfg.Audit.RetentionDays)
}

func TestTokenServiceConfigFallsBackToDefaults(t *testing.T) {
	cfg := AuthConfig{}
	converted := cfg.TokenServiceConfig()
	require.Equal(t, auth.DefaultAccessTokenTTL, converted.AccessTTL)
	require.Equal(t, auth.DefaultRefreshTokenTTL, converted.RefreshTTL)
}

func TestCookieManagerConfigMirrorsTokenTTLs(t *testing.T) {
	cfg := AuthConfig{}
	cfg.JWT.AccessTTL = 2 * time.Minute
	cfg.Refresh.TTL = 48 * time.Hour
	cfg.Cookies.SameSite = "strict"

	converted := cfg.CookieManagerConfig()
	require.Equal(t, 2*time.Minute, converted.AccessMaxAge)
	require.Equal(t, 48*time.Hour, converted.RefreshMaxAge)
	require.Equal(t, "strict", converted.SameSite)
}
