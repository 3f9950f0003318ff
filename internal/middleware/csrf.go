package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quayside/tradeledger/pkg/crypto"
	"github.com/quayside/tradeledger/pkg/errors"
	"github.com/quayside/tradeledger/pkg/logger"
	"github.com/quayside/tradeledger/pkg/response"
)

const (
	// CSRFCookieName transports the token to clients. The cookie is
	// readable by scripts on purpose; the protection comes from the
	// header echo, not from secrecy.
	CSRFCookieName = "csrf_token"
	// CSRFHeaderName is the header clients must present for unsafe
	// HTTP methods.
	CSRFHeaderName = "X-CSRF-Token"

	csrfTokenLength  = 48
	csrfCookieMaxAge = 12 * 60 * 60 // 12 hours
)

var unsafeMethods = map[string]struct{}{
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodPatch:  {},
	http.MethodDelete: {},
}

// CSRF implements the double-submit-cookie pattern for the cookie
// authenticated API. Safe methods receive a token via cookie and
// header; mutating requests must echo it in X-CSRF-Token.
func CSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method == http.MethodOptions {
			c.Next()
			return
		}

		token, err := ensureCSRFCookie(c)
		if err != nil {
			response.Error(c, errors.ErrInternalServer)
			c.Abort()
			return
		}

		if isUnsafeMethod(method) {
			headerToken := strings.TrimSpace(c.GetHeader(CSRFHeaderName))
			if !constantTimeEqual(token, headerToken) {
				logger.WithModule("csrf").Warn("csrf validation failed",
					// Token contents stay out of the log
					zap.String("method", method),
					zap.String("path", c.FullPath()),
				)
				response.Error(c, errors.ErrCSRFInvalid)
				c.Abort()
				return
			}
		} else {
			c.Header(CSRFHeaderName, token)
		}

		c.Next()
	}
}

func ensureCSRFCookie(c *gin.Context) (string, error) {
	if existing, err := c.Cookie(CSRFCookieName); err == nil && existing != "" {
		setCSRFCookie(c, existing)
		return existing, nil
	}

	token, err := crypto.GenerateToken(csrfTokenLength)
	if err != nil {
		return "", err
	}
	setCSRFCookie(c, token)
	return token, nil
}

func setCSRFCookie(c *gin.Context, token string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		Secure:   isSecureRequest(c.Request),
		HttpOnly: false,
		MaxAge:   csrfCookieMaxAge,
		SameSite: http.SameSiteStrictMode,
	})
}

func isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func isUnsafeMethod(method string) bool {
	_, ok := unsafeMethods[method]
	return ok
}

func constantTimeEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
