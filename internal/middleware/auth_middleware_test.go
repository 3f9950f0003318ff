package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/quayside/tradeledger/internal/auth"
	"github.com/quayside/tradeledger/internal/database/testutil"
	"github.com/quayside/tradeledger/internal/models"
	"github.com/quayside/tradeledger/internal/services"
)

type authFixture struct {
	db      *gorm.DB
	tokens  *iauth.TokenService
	cookies *iauth.CookieManager
	router  *gin.Engine
	user    *models.User
	clock   *testClock
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	tokens, err := iauth.NewTokenService(db, iauth.TokenConfig{
		Secret: "middleware-test-secret",
		Issuer: "tradeledger-test",
		Rotate: true,
		Clock:  clock.Now,
	})
	require.NoError(t, err)

	cookies, err := iauth.NewCookieManager(iauth.CookieConfig{})
	require.NoError(t, err)

	user := &models.User{
		Username: "trader",
		Email:    "trader@example.com",
		Password: "irrelevant-hash",
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	require.NoError(t, db.Create(&models.UserProfile{UserID: user.ID}).Error)

	users, err := services.NewUserService(db)
	require.NoError(t, err)
	audit, err := services.NewAuditService(db)
	require.NoError(t, err)

	router := gin.New()
	router.GET("/me", Authenticate(tokens, cookies, users, audit), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": CurrentUserID(c)})
	})
	router.GET("/admin", Authenticate(tokens, cookies, users, audit), RequireStaff(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	return &authFixture{db: db, tokens: tokens, cookies: cookies, router: router, user: user, clock: clock}
}

func (f *authFixture) request(t *testing.T, path string, pair iauth.TokenPair) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if pair.AccessToken != "" {
		req.AddCookie(&http.Cookie{Name: iauth.AccessCookieName, Value: pair.AccessToken})
	}
	if pair.RefreshToken != "" {
		req.AddCookie(&http.Cookie{Name: iauth.RefreshCookieName, Value: pair.RefreshToken})
	}
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticateWithAccessCookie(t *testing.T) {
	f := newAuthFixture(t)

	pair, err := f.tokens.IssuePair(f.user.ID)
	require.NoError(t, err)

	rec := f.request(t, "/me", pair)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), f.user.ID)
	// A healthy access cookie does not trigger a refresh.
	require.Empty(t, rec.Result().Cookies())
}

func TestAuthenticateMissingCookies(t *testing.T) {
	f := newAuthFixture(t)

	rec := f.request(t, "/me", iauth.TokenPair{})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateRefreshFallback(t *testing.T) {
	f := newAuthFixture(t)

	pair, err := f.tokens.IssuePair(f.user.ID)
	require.NoError(t, err)

	f.clock.Advance(iauth.DefaultAccessTokenTTL + time.Minute)

	rec := f.request(t, "/me", pair)
	require.Equal(t, http.StatusOK, rec.Code)

	// The rotated pair is staged on this response.
	var gotAccess, gotRefresh string
	for _, c := range rec.Result().Cookies() {
		switch c.Name {
		case iauth.AccessCookieName:
			gotAccess = c.Value
		case iauth.RefreshCookieName:
			gotRefresh = c.Value
		}
	}
	require.NotEmpty(t, gotAccess)
	require.NotEmpty(t, gotRefresh)
	require.NotEqual(t, pair.RefreshToken, gotRefresh)

	// The consumed refresh token no longer authenticates.
	rec = f.request(t, "/me", iauth.TokenPair{RefreshToken: pair.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// The rotated one does.
	rec = f.request(t, "/me", iauth.TokenPair{AccessToken: gotAccess, RefreshToken: gotRefresh})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRefreshFallbackIsAudited(t *testing.T) {
	f := newAuthFixture(t)

	pair, err := f.tokens.IssuePair(f.user.ID)
	require.NoError(t, err)

	f.clock.Advance(iauth.DefaultAccessTokenTTL + time.Minute)

	rec := f.request(t, "/me", pair)
	require.Equal(t, http.StatusOK, rec.Code)

	var entry models.AuditLog
	require.NoError(t, f.db.Take(&entry, "action = ?", services.AuditActionTokenRefresh).Error)
	require.NotNil(t, entry.UserID)
	require.Equal(t, f.user.ID, *entry.UserID)
	require.Equal(t, "trader", entry.Username)
}

func TestAuthenticateStampsActivity(t *testing.T) {
	f := newAuthFixture(t)

	pair, err := f.tokens.IssuePair(f.user.ID)
	require.NoError(t, err)

	rec := f.request(t, "/me", pair)
	require.Equal(t, http.StatusOK, rec.Code)

	var profile models.UserProfile
	require.NoError(t, f.db.Take(&profile, "user_id = ?", f.user.ID).Error)
	require.NotNil(t, profile.LastActivityAt)
}

func TestAuthenticateGarbageCookiesAreCleared(t *testing.T) {
	f := newAuthFixture(t)

	rec := f.request(t, "/me", iauth.TokenPair{AccessToken: "garbage", RefreshToken: "garbage"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 2)
	for _, c := range cleared {
		require.Empty(t, c.Value)
		require.Equal(t, -1, c.MaxAge)
	}
}

func TestAuthenticateDeactivatedUser(t *testing.T) {
	f := newAuthFixture(t)

	pair, err := f.tokens.IssuePair(f.user.ID)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(f.user).Update("is_active", false).Error)

	rec := f.request(t, "/me", pair)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireStaff(t *testing.T) {
	f := newAuthFixture(t)

	pair, err := f.tokens.IssuePair(f.user.ID)
	require.NoError(t, err)

	rec := f.request(t, "/admin", pair)
	require.Equal(t, http.StatusForbidden, rec.Code)

	require.NoError(t, f.db.Model(f.user).Update("is_staff", true).Error)

	rec = f.request(t, "/admin", pair)
	require.Equal(t, http.StatusOK, rec.Code)
}
