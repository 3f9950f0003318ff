package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// Cookie names used for token transport. Both are HttpOnly; clients
// never read them from script.
const (
	AccessCookieName  = "access_token"
	RefreshCookieName = "refresh_token"
)

// CookieConfig controls how token cookies are written.
type CookieConfig struct {
	Path   string
	Domain string
	// Secure is forced on when SameSite is none.
	Secure   bool
	SameSite string // lax, strict, or none
	// Cookie lifetimes; expected to mirror the token TTLs.
	AccessMaxAge  time.Duration
	RefreshMaxAge time.Duration
}

// CookieManager serialises token pairs into HttpOnly cookies and back.
type CookieManager struct {
	path          string
	domain        string
	secure        bool
	sameSite      http.SameSite
	accessMaxAge  int
	refreshMaxAge int
}

// NewCookieManager validates the configuration and builds a manager.
func NewCookieManager(cfg CookieConfig) (*CookieManager, error) {
	path := cfg.Path
	if path == "" {
		path = "/"
	}

	sameSite := http.SameSiteLaxMode
	switch strings.ToLower(strings.TrimSpace(cfg.SameSite)) {
	case "", "lax":
	case "strict":
		sameSite = http.SameSiteStrictMode
	case "none":
		if !cfg.Secure {
			return nil, errors.New("cookies: SameSite=None requires the Secure flag")
		}
		sameSite = http.SameSiteNoneMode
	default:
		return nil, errors.New("cookies: same_site must be lax, strict, or none")
	}

	accessMaxAge := cfg.AccessMaxAge
	if accessMaxAge <= 0 {
		accessMaxAge = DefaultAccessTokenTTL
	}
	refreshMaxAge := cfg.RefreshMaxAge
	if refreshMaxAge <= 0 {
		refreshMaxAge = DefaultRefreshTokenTTL
	}

	return &CookieManager{
		path:          path,
		domain:        cfg.Domain,
		secure:        cfg.Secure,
		sameSite:      sameSite,
		accessMaxAge:  int(accessMaxAge.Seconds()),
		refreshMaxAge: int(refreshMaxAge.Seconds()),
	}, nil
}

// Attach writes both token cookies onto the response.
func (m *CookieManager) Attach(w http.ResponseWriter, pair TokenPair) {
	http.SetCookie(w, m.cookie(AccessCookieName, pair.AccessToken, m.accessMaxAge))
	http.SetCookie(w, m.cookie(RefreshCookieName, pair.RefreshToken, m.refreshMaxAge))
}

// Extract reads the token cookies from a request. Missing cookies yield
// empty strings rather than errors.
func (m *CookieManager) Extract(r *http.Request) (accessToken, refreshToken string) {
	if c, err := r.Cookie(AccessCookieName); err == nil {
		accessToken = c.Value
	}
	if c, err := r.Cookie(RefreshCookieName); err == nil {
		refreshToken = c.Value
	}
	return accessToken, refreshToken
}

// Clear expires both token cookies. Safe to call regardless of whether
// the cookies are present or valid.
func (m *CookieManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, m.cookie(AccessCookieName, "", -1))
	http.SetCookie(w, m.cookie(RefreshCookieName, "", -1))
}

func (m *CookieManager) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     m.path,
		Domain:   m.domain,
		MaxAge:   maxAge,
		Secure:   m.secure,
		HttpOnly: true,
		SameSite: m.sameSite,
	}
}
