package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the trade ledger backend.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Audit    AuditConfig    `mapstructure:"audit"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT       JWTSettings       `mapstructure:"jwt"`
	Refresh   RefreshSettings   `mapstructure:"refresh"`
	Cookies   CookieSettings    `mapstructure:"cookies"`
	Lockout   LockoutSettings   `mapstructure:"lockout"`
	RateLimit RateLimitSettings `mapstructure:"ratelimit"`
}

// JWTSettings configures signed access tokens.
type JWTSettings struct {
	Secret    string        `mapstructure:"secret"`
	Issuer    string        `mapstructure:"issuer"`
	AccessTTL time.Duration `mapstructure:"access_token_ttl"`
}

// RefreshSettings configures refresh tokens and rotation.
type RefreshSettings struct {
	TTL    time.Duration `mapstructure:"refresh_token_ttl"`
	Rotate bool          `mapstructure:"rotate"`
}

// CookieSettings controls how token cookies are written.
type CookieSettings struct {
	Domain   string `mapstructure:"domain"`
	Secure   bool   `mapstructure:"secure"`
	SameSite string `mapstructure:"same_site"`
}

// LockoutSettings defines failed-login lockout behaviour.
type LockoutSettings struct {
	Threshold int           `mapstructure:"threshold"`
	Duration  time.Duration `mapstructure:"duration"`
}

// RateLimitSettings bounds sensitive endpoints per client IP.
type RateLimitSettings struct {
	Login    WindowLimit `mapstructure:"login"`
	Register WindowLimit `mapstructure:"register"`
}

// WindowLimit is a fixed-window request allowance.
type WindowLimit struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// AuditConfig controls the audit trail retention.
type AuditConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("TRADELEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/tradeledger.sqlite")

	v.SetDefault("auth.jwt.issuer", "tradeledger")
	v.SetDefault("auth.jwt.access_token_ttl", "10m")
	v.SetDefault("auth.refresh.refresh_token_ttl", "168h") // 7 days
	v.SetDefault("auth.refresh.rotate", true)

	v.SetDefault("auth.cookies.secure", false)
	v.SetDefault("auth.cookies.same_site", "lax")

	v.SetDefault("auth.lockout.threshold", 5)
	v.SetDefault("auth.lockout.duration", "30m")

	v.SetDefault("auth.ratelimit.login.limit", 5)
	v.SetDefault("auth.ratelimit.login.window", "5m")
	v.SetDefault("auth.ratelimit.register.limit", 3)
	v.SetDefault("auth.ratelimit.register.window", "1h")

	v.SetDefault("audit.retention_days", 180)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
