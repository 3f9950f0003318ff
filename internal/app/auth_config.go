package app

import (
	"github.com/quayside/tradeledger/internal/auth"
	"github.com/quayside/tradeledger/internal/database"
)

// TokenServiceConfig converts AuthConfig into TokenService parameters.
func (c AuthConfig) TokenServiceConfig() auth.TokenConfig {
	accessTTL := c.JWT.AccessTTL
	if accessTTL <= 0 {
		accessTTL = auth.DefaultAccessTokenTTL
	}
	refreshTTL := c.Refresh.TTL
	if refreshTTL <= 0 {
		refreshTTL = auth.DefaultRefreshTokenTTL
	}

	return auth.TokenConfig{
		Secret:     c.JWT.Secret,
		Issuer:     c.JWT.Issuer,
		AccessTTL:  accessTTL,
		RefreshTTL: refreshTTL,
		Rotate:     c.Refresh.Rotate,
	}
}

// CookieManagerConfig converts AuthConfig into CookieManager parameters.
// Cookie lifetimes follow the token lifetimes.
func (c AuthConfig) CookieManagerConfig() auth.CookieConfig {
	tokens := c.TokenServiceConfig()
	return auth.CookieConfig{
		Domain:        c.Cookies.Domain,
		Secure:        c.Cookies.Secure,
		SameSite:      c.Cookies.SameSite,
		AccessMaxAge:  tokens.AccessTTL,
		RefreshMaxAge: tokens.RefreshTTL,
	}
}

// CredentialServiceConfig converts AuthConfig into CredentialService parameters.
func (c AuthConfig) CredentialServiceConfig() auth.CredentialConfig {
	return auth.CredentialConfig{
		LockoutThreshold: c.Lockout.Threshold,
		LockoutDuration:  c.Lockout.Duration,
	}
}

// DatabaseConnectionConfig converts DatabaseConfig into the parameters
// expected by the database package.
func (c DatabaseConfig) DatabaseConnectionConfig() database.Config {
	cfg := database.Config{
		Driver: c.Driver,
		Path:   c.Path,
		DSN:    c.DSN,
	}

	switch {
	case c.Postgres.Enabled:
		cfg.Host = c.Postgres.Host
		cfg.Port = c.Postgres.Port
		cfg.Name = c.Postgres.Database
		cfg.User = c.Postgres.Username
		cfg.Password = c.Postgres.Password
	case c.MySQL.Enabled:
		cfg.Host = c.MySQL.Host
		cfg.Port = c.MySQL.Port
		cfg.Name = c.MySQL.Database
		cfg.User = c.MySQL.Username
		cfg.Password = c.MySQL.Password
	}

	return cfg
}
