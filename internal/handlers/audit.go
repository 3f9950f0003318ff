package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quayside/tradeledger/internal/services"
	appErrors "github.com/quayside/tradeledger/pkg/errors"
	"github.com/quayside/tradeledger/pkg/response"
)

// AuditHandler exposes the audit trail to staff accounts.
type AuditHandler struct {
	audit *services.AuditService
}

func NewAuditHandler(audit *services.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// GET /api/audit
func (h *AuditHandler) List(c *gin.Context) {
	opts := services.AuditListOptions{
		Page:     parseIntQuery(c, "page", 1),
		PageSize: parseIntQuery(c, "per_page", 50),
		Filters: services.AuditFilters{
			UserID:     c.Query("user_id"),
			Action:     c.Query("action"),
			TargetKind: c.Query("target_kind"),
		},
	}

	if since := parseTimeQuery(c, "since"); since != nil {
		opts.Filters.Since = since
	}
	if until := parseTimeQuery(c, "until"); until != nil {
		opts.Filters.Until = until
	}

	logs, total, err := h.audit.List(c.Request.Context(), opts)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}
	totalPages := int(total) / perPage
	if int(total)%perPage != 0 {
		totalPages++
	}

	response.SuccessWithMeta(c, http.StatusOK, logs, &response.Meta{
		Page:       opts.Page,
		PerPage:    perPage,
		Total:      int(total),
		TotalPages: totalPages,
	})
}

func parseTimeQuery(c *gin.Context, key string) *time.Time {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	return &parsed
}
