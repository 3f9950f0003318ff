package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/quayside/tradeledger/internal/auth"
	"github.com/quayside/tradeledger/internal/middleware"
	"github.com/quayside/tradeledger/internal/services"
	appErrors "github.com/quayside/tradeledger/pkg/errors"
	"github.com/quayside/tradeledger/pkg/response"
)

// ProfileHandler serves the authenticated user's own profile surface.
type ProfileHandler struct {
	users       *services.UserService
	credentials *iauth.CredentialService
	tokens      *iauth.TokenService
	cookies     *iauth.CookieManager
	audit       *services.AuditService
}

func NewProfileHandler(users *services.UserService, credentials *iauth.CredentialService, tokens *iauth.TokenService, cookies *iauth.CookieManager, audit *services.AuditService) *ProfileHandler {
	return &ProfileHandler{users: users, credentials: credentials, tokens: tokens, cookies: cookies, audit: audit}
}

// GET /api/profile
func (h *ProfileHandler) Get(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	response.Success(c, http.StatusOK, userPayload(user))
}

type profileUpdateRequest struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=64"`
	LastName  *string `json:"last_name" validate:"omitempty,max=64"`
	Phone     *string `json:"phone" validate:"omitempty,max=32"`
	Company   *string `json:"company" validate:"omitempty,max=128"`
	Position  *string `json:"position" validate:"omitempty,max=128"`
	Timezone  *string `json:"timezone" validate:"omitempty,max=64"`
	Language  *string `json:"language" validate:"omitempty,max=8"`
}

// PUT /api/profile
func (h *ProfileHandler) Update(c *gin.Context) {
	var req profileUpdateRequest
	if !bindAndValidate(c, &req) {
		return
	}

	userID := middleware.CurrentUserID(c)
	user, changes, err := h.users.UpdateProfile(c.Request.Context(), userID, services.ProfileUpdateInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Company:   req.Company,
		Position:  req.Position,
		Timezone:  req.Timezone,
		Language:  req.Language,
	})
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	if len(changes) > 0 {
		h.audit.Record(c.Request.Context(), services.AuditEntry{
			UserID:     &user.ID,
			Username:   user.Username,
			Action:     services.AuditActionProfileUpdate,
			TargetKind: "user",
			TargetID:   user.ID,
			Summary:    "profile updated",
			Changes:    changes,
			IPAddress:  c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
		})
	}

	response.Success(c, http.StatusOK, userPayload(user))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=10,max=128"`
}

// POST /api/profile/change-password
//
// A successful change revokes the presented refresh token and issues a
// fresh pair, so sessions stolen before the change die with the old
// credentials.
func (h *ProfileHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user := middleware.CurrentUser(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.credentials.ChangePassword(user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, iauth.ErrInvalidCredentials) {
			response.Error(c, appErrors.NewBadRequest("current password is incorrect"))
			return
		}
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	if _, refreshToken := h.cookies.Extract(c.Request); refreshToken != "" {
		_ = h.tokens.Revoke(c.Request.Context(), refreshToken)
	}
	pair, err := h.tokens.IssuePair(user.ID)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}
	h.cookies.Attach(c.Writer, pair)

	h.audit.Record(c.Request.Context(), services.AuditEntry{
		UserID:     &user.ID,
		Username:   user.Username,
		Action:     services.AuditActionPasswordChange,
		TargetKind: "user",
		TargetID:   user.ID,
		Summary:    "password changed",
		IPAddress:  c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})

	response.Success(c, http.StatusOK, gin.H{"changed": true})
}
