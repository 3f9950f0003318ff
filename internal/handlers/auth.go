package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/quayside/tradeledger/internal/auth"
	"github.com/quayside/tradeledger/internal/middleware"
	"github.com/quayside/tradeledger/internal/models"
	"github.com/quayside/tradeledger/internal/services"
	appErrors "github.com/quayside/tradeledger/pkg/errors"
	"github.com/quayside/tradeledger/pkg/metrics"
	"github.com/quayside/tradeledger/pkg/response"
)

// AuthHandler manages the authentication flows: register, login,
// refresh, logout, and the current-identity endpoint. Tokens travel in
// HttpOnly cookies; response bodies never contain them.
type AuthHandler struct {
	tokens      *iauth.TokenService
	cookies     *iauth.CookieManager
	credentials *iauth.CredentialService
	audit       *services.AuditService
}

func NewAuthHandler(tokens *iauth.TokenService, cookies *iauth.CookieManager, credentials *iauth.CredentialService, audit *services.AuditService) *AuthHandler {
	return &AuthHandler{tokens: tokens, cookies: cookies, credentials: credentials, audit: audit}
}

type registerRequest struct {
	Username         string `json:"username" validate:"required,min=3,max=64"`
	Email            string `json:"email" validate:"required,email"`
	Password         string `json:"password" validate:"required,min=10,max=128"`
	FirstName        string `json:"first_name" validate:"max=64"`
	LastName         string `json:"last_name" validate:"max=64"`
	Phone            string `json:"phone" validate:"max=32"`
	Company          string `json:"company" validate:"max=128"`
	Position         string `json:"position" validate:"max=128"`
	MarketingConsent bool   `json:"marketing_consent"`
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.credentials.Register(iauth.RegisterInput{
		Username:         req.Username,
		Email:            req.Email,
		Password:         req.Password,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		Phone:            req.Phone,
		Company:          req.Company,
		Position:         req.Position,
		MarketingConsent: req.MarketingConsent,
		IPAddress:        c.ClientIP(),
		UserAgent:        c.Request.UserAgent(),
	})
	if err != nil {
		if errors.Is(err, iauth.ErrIdentifierTaken) {
			response.Error(c, appErrors.NewBadRequest("registration failed: username or email already taken"))
			return
		}
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	h.audit.Record(c.Request.Context(), services.AuditEntry{
		UserID:     &user.ID,
		Username:   user.Username,
		Action:     services.AuditActionRegister,
		TargetKind: "user",
		TargetID:   user.ID,
		Summary:    "account registered",
		IPAddress:  c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})

	pair, err := h.tokens.IssuePair(user.ID)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}
	h.cookies.Attach(c.Writer, pair)

	response.Success(c, http.StatusCreated, userPayload(user))
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.credentials.Authenticate(iauth.AuthenticateInput{
		Identifier: req.Identifier,
		Password:   req.Password,
		IPAddress:  c.ClientIP(),
	})
	if err != nil {
		h.recordLoginFailure(c, req.Identifier, err)
		switch {
		case errors.Is(err, iauth.ErrAccountLocked):
			metrics.AuthAttempts.WithLabelValues("locked").Inc()
			response.Error(c, appErrors.ErrAccountLocked)
		default:
			// Disabled accounts and bad passwords look identical.
			metrics.AuthAttempts.WithLabelValues("failure").Inc()
			response.Error(c, appErrors.ErrInvalidCredentials)
		}
		return
	}

	pair, err := h.tokens.IssuePair(user.ID)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}
	h.cookies.Attach(c.Writer, pair)

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	h.audit.Record(c.Request.Context(), services.AuditEntry{
		UserID:     &user.ID,
		Username:   user.Username,
		Action:     services.AuditActionLogin,
		TargetKind: "user",
		TargetID:   user.ID,
		Summary:    "successful login",
		IPAddress:  c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})

	response.Success(c, http.StatusOK, userPayload(user))
}

func (h *AuthHandler) recordLoginFailure(c *gin.Context, identifier string, cause error) {
	summary := "login rejected"
	if errors.Is(cause, iauth.ErrAccountLocked) {
		summary = "login rejected: account locked"
	}
	h.audit.Record(c.Request.Context(), services.AuditEntry{
		Username:  identifier,
		Action:    services.AuditActionLoginFailed,
		Summary:   summary,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
}

// POST /api/auth/token/refresh
//
// The refresh token comes exclusively from its cookie. On success the
// new pair is attached as cookies; on failure both cookies are cleared
// so stale clients stop retrying.
func (h *AuthHandler) Refresh(c *gin.Context) {
	_, refreshToken := h.cookies.Extract(c.Request)
	if refreshToken == "" {
		response.Error(c, appErrors.ErrTokenMissing)
		return
	}

	pair, err := h.tokens.Rotate(c.Request.Context(), refreshToken)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("failure").Inc()
		h.cookies.Clear(c.Writer)
		response.Error(c, appErrors.ErrTokenInvalid)
		return
	}

	metrics.TokenRefreshes.WithLabelValues("success").Inc()
	if claims, verifyErr := h.tokens.Verify(pair.AccessToken, iauth.TokenTypeAccess); verifyErr == nil {
		uid := claims.UserID
		h.audit.Record(c.Request.Context(), services.AuditEntry{
			UserID:     &uid,
			Action:     services.AuditActionTokenRefresh,
			TargetKind: "user",
			TargetID:   uid,
			Summary:    "token pair rotated",
			IPAddress:  c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
		})
	}
	h.cookies.Attach(c.Writer, pair)
	response.Success(c, http.StatusOK, gin.H{"refreshed": true})
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	_, refreshToken := h.cookies.Extract(c.Request)
	if refreshToken != "" {
		if err := h.tokens.Revoke(c.Request.Context(), refreshToken); err != nil {
			response.Error(c, appErrors.ErrInternalServer)
			return
		}
	}

	if user := middleware.CurrentUser(c); user != nil {
		h.audit.Record(c.Request.Context(), services.AuditEntry{
			UserID:     &user.ID,
			Username:   user.Username,
			Action:     services.AuditActionLogout,
			TargetKind: "user",
			TargetID:   user.ID,
			Summary:    "logged out",
			IPAddress:  c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
		})
	}

	h.cookies.Clear(c.Writer)
	response.Success(c, http.StatusOK, gin.H{"logged_out": true})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	response.Success(c, http.StatusOK, userPayload(user))
}

// GET /api/auth/permissions
func (h *AuthHandler) Permissions(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"is_staff":     user.IsStaff,
		"is_superuser": user.IsSuperuser,
	})
}

func userPayload(user *models.User) gin.H {
	payload := gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"email":      user.Email,
		"first_name": user.FirstName,
		"last_name":  user.LastName,
		"is_active":  user.IsActive,
		"is_staff":   user.IsStaff,
	}
	if user.Profile != nil {
		payload["profile"] = user.Profile
	}
	return payload
}
