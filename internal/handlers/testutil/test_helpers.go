package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/quayside/tradeledger/internal/api"
	"github.com/quayside/tradeledger/internal/app"
	iauth "github.com/quayside/tradeledger/internal/auth"
	"github.com/quayside/tradeledger/internal/cache"
	sharedtestutil "github.com/quayside/tradeledger/internal/database/testutil"
	"github.com/quayside/tradeledger/internal/models"
	"github.com/quayside/tradeledger/internal/services"
	"github.com/quayside/tradeledger/pkg/crypto"
)

// Env encapsulates a fully-wired API instance backed by an in-memory
// database for handler tests. It behaves like a browser: cookies set by
// responses are remembered and replayed, and the CSRF token is echoed
// automatically on mutating requests.
type Env struct {
	T       *testing.T
	DB      *gorm.DB
	Router  *gin.Engine
	Tokens  *iauth.TokenService
	Cookies *iauth.CookieManager

	jar map[string]*http.Cookie
}

// EnvOption tweaks the configuration the environment is built with.
type EnvOption func(*app.Config)

// WithRotationDisabled turns off refresh token rotation.
func WithRotationDisabled() EnvOption {
	return func(cfg *app.Config) {
		cfg.Auth.Refresh.Rotate = false
	}
}

// WithLoginRateLimit overrides the login rate limit.
func WithLoginRateLimit(limit int, window time.Duration) EnvOption {
	return func(cfg *app.Config) {
		cfg.Auth.RateLimit.Login.Limit = limit
		cfg.Auth.RateLimit.Login.Window = window
	}
}

// NewEnv provisions a fresh handler test environment with migrations and seed data applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())

	cfg := &app.Config{}
	cfg.Auth.JWT.Secret = "test-suite-super-secret-key-32-bytes!!"
	cfg.Auth.JWT.Issuer = "test-suite"
	cfg.Auth.JWT.AccessTTL = time.Hour
	cfg.Auth.Refresh.TTL = 24 * time.Hour
	cfg.Auth.Refresh.Rotate = true
	cfg.Auth.Cookies.SameSite = "lax"
	cfg.Auth.RateLimit.Login.Limit = 100
	cfg.Auth.RateLimit.Login.Window = time.Minute
	cfg.Auth.RateLimit.Register.Limit = 100
	cfg.Auth.RateLimit.Register.Window = time.Minute
	cfg.Audit.RetentionDays = 180

	for _, opt := range opts {
		opt(cfg)
	}

	tokens, err := iauth.NewTokenService(db, cfg.Auth.TokenServiceConfig())
	require.NoError(t, err)
	cookies, err := iauth.NewCookieManager(cfg.Auth.CookieManagerConfig())
	require.NoError(t, err)
	credentials, err := iauth.NewCredentialService(db, cfg.Auth.CredentialServiceConfig())
	require.NoError(t, err)

	audit, err := services.NewAuditService(db)
	require.NoError(t, err)
	users, err := services.NewUserService(db)
	require.NoError(t, err)
	gdpr, err := services.NewGDPRService(db, audit)
	require.NoError(t, err)
	ledger, err := services.NewLedgerService(db, audit)
	require.NoError(t, err)

	router, err := api.NewRouter(cfg, api.Dependencies{
		DB:          db,
		Tokens:      tokens,
		Cookies:     cookies,
		Credentials: credentials,
		Counters:    cache.NewMemoryStore(),
		Audit:       audit,
		Users:       users,
		GDPR:        gdpr,
		Ledger:      ledger,
	})
	require.NoError(t, err)

	return &Env{
		T:       t,
		DB:      db,
		Router:  router,
		Tokens:  tokens,
		Cookies: cookies,
		jar:     map[string]*http.Cookie{},
	}
}

// CreateUser inserts an active user with a profile and returns the record.
func (e *Env) CreateUser(password string) *models.User {
	e.T.Helper()

	username := "trader-" + uuid.NewString()[:8]
	hashed, err := crypto.HashPassword(password)
	require.NoError(e.T, err)

	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: hashed,
		IsActive: true,
	}
	require.NoError(e.T, e.DB.Create(user).Error)

	profile := &models.UserProfile{UserID: user.ID, Timezone: "UTC", Language: "en"}
	require.NoError(e.T, e.DB.Create(profile).Error)
	user.Profile = profile
	return user
}

// CreateStaffUser inserts an active staff user.
func (e *Env) CreateStaffUser(password string) *models.User {
	e.T.Helper()

	user := e.CreateUser(password)
	require.NoError(e.T, e.DB.Model(user).Update("is_staff", true).Error)
	user.IsStaff = true
	return user
}

// Do performs a request through the router, replaying remembered cookies
// and the CSRF header, then absorbs any cookies the response sets.
func (e *Env) Do(method, path string, body any) *httptest.ResponseRecorder {
	e.T.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(e.T, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for _, cookie := range e.jar {
		req.AddCookie(cookie)
	}
	if csrf, ok := e.jar["csrf_token"]; ok {
		req.Header.Set("X-CSRF-Token", csrf.Value)
	}

	rec := httptest.NewRecorder()
	e.Router.ServeHTTP(rec, req)

	for _, cookie := range rec.Result().Cookies() {
		if cookie.MaxAge < 0 || cookie.Value == "" {
			delete(e.jar, cookie.Name)
			continue
		}
		e.jar[cookie.Name] = cookie
	}

	return rec
}

// PrimeCSRF performs a safe request so the jar holds a CSRF token.
func (e *Env) PrimeCSRF() {
	e.T.Helper()
	rec := e.Do(http.MethodGet, "/health", nil)
	require.Equal(e.T, http.StatusOK, rec.Code)
}

// Login authenticates through the login endpoint, leaving the token
// cookies in the jar.
func (e *Env) Login(identifier, password string) *httptest.ResponseRecorder {
	e.T.Helper()
	e.PrimeCSRF()
	return e.Do(http.MethodPost, "/api/auth/login", map[string]any{
		"identifier": identifier,
		"password":   password,
	})
}

// Cookie returns the remembered cookie with the given name, or nil.
func (e *Env) Cookie(name string) *http.Cookie {
	return e.jar[name]
}

// ForgetCookie drops a cookie from the jar, simulating expiry on the client.
func (e *Env) ForgetCookie(name string) {
	delete(e.jar, name)
}

// DecodeBody unmarshals the recorded response body into dest.
func (e *Env) DecodeBody(rec *httptest.ResponseRecorder, dest any) {
	e.T.Helper()
	require.NoError(e.T, json.Unmarshal(rec.Body.Bytes(), dest))
}
