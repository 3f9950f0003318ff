package middleware

import (
	"github.com/gin-gonic/gin"

	iauth "github.com/quayside/tradeledger/internal/auth"
	"github.com/quayside/tradeledger/internal/models"
	"github.com/quayside/tradeledger/internal/services"
	"github.com/quayside/tradeledger/pkg/errors"
	"github.com/quayside/tradeledger/pkg/response"
)

const (
	CtxClaimsKey = "authClaims"
	CtxUserIDKey = "userID"
	CtxUserKey   = "authUser"
)

// Authenticate resolves the request identity from the token cookies.
// A valid access cookie is enough on its own. When it is absent or
// stale, a valid refresh cookie mints a replacement pair which is
// attached to this same response, so browsers recover without a
// dedicated refresh round-trip. Any failure clears both cookies and
// ends the request with 401.
func Authenticate(tokens *iauth.TokenService, cookies *iauth.CookieManager, users *services.UserService, audit *services.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		accessToken, refreshToken := cookies.Extract(c.Request)
		if accessToken == "" && refreshToken == "" {
			response.Error(c, errors.ErrTokenMissing)
			c.Abort()
			return
		}

		refreshed := false
		claims, err := tokens.Verify(accessToken, iauth.TokenTypeAccess)
		if err != nil {
			claims, err = refreshIdentity(c, tokens, cookies, refreshToken)
			refreshed = err == nil
		}
		if err != nil {
			cookies.Clear(c.Writer)
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		user, lookupErr := users.Get(c.Request.Context(), claims.UserID)
		if lookupErr != nil || !user.IsActive {
			cookies.Clear(c.Writer)
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		if refreshed {
			audit.Record(c.Request.Context(), services.AuditEntry{
				UserID:     &user.ID,
				Username:   user.Username,
				Action:     services.AuditActionTokenRefresh,
				TargetKind: "user",
				TargetID:   user.ID,
				Summary:    "token pair rotated",
				IPAddress:  c.ClientIP(),
				UserAgent:  c.Request.UserAgent(),
			})
		}

		// Best effort; a failed stamp must not fail the request.
		_ = users.TouchActivity(c.Request.Context(), user.ID)

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		c.Set(CtxUserKey, user)

		c.Next()
	}
}

// refreshIdentity exchanges the refresh cookie for a fresh pair and
// stages the new cookies on the in-flight response.
func refreshIdentity(c *gin.Context, tokens *iauth.TokenService, cookies *iauth.CookieManager, refreshToken string) (*iauth.Claims, error) {
	if refreshToken == "" {
		return nil, iauth.ErrTokenInvalid
	}

	pair, err := tokens.Rotate(c.Request.Context(), refreshToken)
	if err != nil {
		return nil, err
	}

	claims, err := tokens.Verify(pair.AccessToken, iauth.TokenTypeAccess)
	if err != nil {
		return nil, err
	}

	cookies.Attach(c.Writer, pair)
	return claims, nil
}

// RequireStaff gates an endpoint to staff accounts. It must run after
// Authenticate.
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil || (!user.IsStaff && !user.IsSuperuser) {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user stored by Authenticate,
// or nil on unauthenticated requests.
func CurrentUser(c *gin.Context) *models.User {
	value, ok := c.Get(CtxUserKey)
	if !ok {
		return nil
	}
	user, _ := value.(*models.User)
	return user
}

// CurrentUserID returns the authenticated user id, or an empty string.
func CurrentUserID(c *gin.Context) string {
	return c.GetString(CtxUserIDKey)
}
