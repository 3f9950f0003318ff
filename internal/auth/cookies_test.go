package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCookieManagerAttachExtractRoundTrip(t *testing.T) {
	mgr, err := NewCookieManager(CookieConfig{
		AccessMaxAge:  10 * time.Minute,
		RefreshMaxAge: 7 * 24 * time.Hour,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	mgr.Attach(rec, TokenPair{AccessToken: "access-value", RefreshToken: "refresh-value"})

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)

	byName := map[string]*http.Cookie{}
	for _, c := range cookies {
		byName[c.Name] = c
	}

	access := byName[AccessCookieName]
	require.NotNil(t, access)
	require.True(t, access.HttpOnly)
	require.Equal(t, http.SameSiteLaxMode, access.SameSite)
	require.Equal(t, int((10 * time.Minute).Seconds()), access.MaxAge)

	refresh := byName[RefreshCookieName]
	require.NotNil(t, refresh)
	require.True(t, refresh.HttpOnly)
	require.Equal(t, int((7 * 24 * time.Hour).Seconds()), refresh.MaxAge)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}

	gotAccess, gotRefresh := mgr.Extract(req)
	require.Equal(t, "access-value", gotAccess)
	require.Equal(t, "refresh-value", gotRefresh)
}

func TestCookieManagerExtractMissingCookies(t *testing.T) {
	mgr, err := NewCookieManager(CookieConfig{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	access, refresh := mgr.Extract(req)
	require.Empty(t, access)
	require.Empty(t, refresh)
}

func TestCookieManagerClearExpiresBothCookies(t *testing.T) {
	mgr, err := NewCookieManager(CookieConfig{})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	mgr.Clear(rec)
	// Clearing an already-clear response stays harmless.
	mgr.Clear(rec)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 4)
	for _, c := range cookies {
		require.Empty(t, c.Value)
		require.Equal(t, -1, c.MaxAge)
	}
}

func TestCookieManagerRejectsInsecureSameSiteNone(t *testing.T) {
	_, err := NewCookieManager(CookieConfig{SameSite: "none"})
	require.Error(t, err)

	mgr, err := NewCookieManager(CookieConfig{SameSite: "none", Secure: true})
	require.NoError(t, err)
	require.NotNil(t, mgr)
}

func TestCookieManagerRejectsUnknownSameSite(t *testing.T) {
	_, err := NewCookieManager(CookieConfig{SameSite: "sideways"})
	require.Error(t, err)
}
