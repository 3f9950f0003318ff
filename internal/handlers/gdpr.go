package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quayside/tradeledger/internal/middleware"
	"github.com/quayside/tradeledger/internal/services"
	appErrors "github.com/quayside/tradeledger/pkg/errors"
	"github.com/quayside/tradeledger/pkg/response"
)

// GDPRHandler exposes consent management and the personal data export.
type GDPRHandler struct {
	gdpr *services.GDPRService
}

func NewGDPRHandler(gdpr *services.GDPRService) *GDPRHandler {
	return &GDPRHandler{gdpr: gdpr}
}

// GET /api/gdpr/consents
func (h *GDPRHandler) ListConsents(c *gin.Context) {
	records, err := h.gdpr.ListForUser(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}
	response.Success(c, http.StatusOK, records)
}

type consentRequest struct {
	ConsentType string `json:"consent_type" validate:"required,oneof=registration marketing analytics"`
	Given       *bool  `json:"given" validate:"required"`
}

// POST /api/gdpr/consents
func (h *GDPRHandler) Decide(c *gin.Context) {
	var req consentRequest
	if !bindAndValidate(c, &req) {
		return
	}

	record, err := h.gdpr.Decide(c.Request.Context(), services.ConsentDecision{
		UserID:      middleware.CurrentUserID(c),
		ConsentType: req.ConsentType,
		Given:       *req.Given,
		IPAddress:   c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, appErrors.NewBadRequest("could not record consent decision"))
		return
	}

	response.Success(c, http.StatusOK, record)
}

// GET /api/gdpr/export
func (h *GDPRHandler) Export(c *gin.Context) {
	export, err := h.gdpr.Export(c.Request.Context(), middleware.CurrentUserID(c), c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}
	response.Success(c, http.StatusOK, export)
}
