package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/quayside/tradeledger/internal/models"
	"github.com/quayside/tradeledger/pkg/logger"
)

// Audit action names recorded by the authentication and ledger flows.
const (
	AuditActionLogin          = "LOGIN"
	AuditActionLoginFailed    = "LOGIN_FAILED"
	AuditActionLogout         = "LOGOUT"
	AuditActionTokenRefresh   = "TOKEN_REFRESH"
	AuditActionRegister       = "REGISTER"
	AuditActionProfileUpdate  = "PROFILE_UPDATE"
	AuditActionPasswordChange = "PASSWORD_CHANGE"
	AuditActionConsentUpdate  = "CONSENT_UPDATE"
	AuditActionDataExport     = "DATA_EXPORT"
	AuditActionCreate         = "CREATE"
	AuditActionUpdate         = "UPDATE"
	AuditActionDelete         = "DELETE"
)

// AuditEntry captures a single audit event to persist.
type AuditEntry struct {
	UserID     *string
	Username   string
	Action     string
	TargetKind string
	TargetID   string
	Summary    string
	Changes    map[string]any
	IPAddress  string
	UserAgent  string
}

// AuditFilters encapsulates optional filters when querying audit logs.
type AuditFilters struct {
	UserID     string
	Action     string
	TargetKind string
	Since      *time.Time
	Until      *time.Time
}

// AuditListOptions controls pagination and filtering for audit queries.
type AuditListOptions struct {
	Page     int
	PageSize int
	Filters  AuditFilters
}

// AuditService persists and retrieves append-only audit log entries.
type AuditService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewAuditService constructs an AuditService using the provided database handle.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db, now: time.Now}, nil
}

// WithClock overrides the time source, for tests.
func (s *AuditService) WithClock(now func() time.Time) *AuditService {
	s.now = now
	return s
}

// Record stores an audit entry. Persistence failures are logged and
// swallowed; an audit outage must never abort the request it describes.
func (s *AuditService) Record(ctx context.Context, entry AuditEntry) {
	if err := s.persist(ctx, entry); err != nil {
		logger.WithModule("audit").Error("audit write failed",
			zap.String("action", entry.Action),
			zap.Error(err),
		)
	}
}

func (s *AuditService) persist(ctx context.Context, entry AuditEntry) error {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(entry.Action) == "" {
		return errors.New("audit service: action is required")
	}

	log := models.AuditLog{
		Action:     strings.TrimSpace(entry.Action),
		Username:   strings.TrimSpace(entry.Username),
		TargetKind: strings.TrimSpace(entry.TargetKind),
		TargetID:   strings.TrimSpace(entry.TargetID),
		Summary:    strings.TrimSpace(entry.Summary),
		IPAddress:  strings.TrimSpace(entry.IPAddress),
		UserAgent:  entry.UserAgent,
	}

	if entry.Changes != nil {
		encoded, err := json.Marshal(entry.Changes)
		if err != nil {
			return fmt.Errorf("audit service: marshal changes: %w", err)
		}
		log.Changes = encoded
	}

	if entry.UserID != nil && strings.TrimSpace(*entry.UserID) != "" {
		id := strings.TrimSpace(*entry.UserID)
		log.UserID = &id
	}

	return s.db.WithContext(ctx).Create(&log).Error
}

// List returns paginated audit logs ordered by creation time descending.
func (s *AuditService) List(ctx context.Context, opts AuditListOptions) ([]models.AuditLog, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	var (
		results []models.AuditLog
		total   int64
	)

	query := applyAuditFilters(s.db.WithContext(ctx).Model(&models.AuditLog{}), opts.Filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: count logs: %w", err)
	}

	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&results).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: list logs: %w", err)
	}

	return results, total, nil
}

// RecentForUser returns the newest entries attributed to a user, capped
// at limit. Used by the personal data export.
func (s *AuditService) RecentForUser(ctx context.Context, userID string, limit int) ([]models.AuditLog, error) {
	ctx = ensureContext(ctx)

	if limit <= 0 {
		limit = 100
	}

	var logs []models.AuditLog
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("audit service: recent logs: %w", err)
	}
	return logs, nil
}

// CleanupOlderThan removes audit logs past the retention window in days
// and reports how many rows were dropped.
func (s *AuditService) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	ctx = ensureContext(ctx)

	if retentionDays <= 0 {
		return 0, errors.New("audit service: retentionDays must be positive")
	}

	cutoff := s.now().AddDate(0, 0, -retentionDays)
	result := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("audit service: cleanup: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func applyAuditFilters(query *gorm.DB, filters AuditFilters) *gorm.DB {
	if v := strings.TrimSpace(filters.UserID); v != "" {
		query = query.Where("user_id = ?", v)
	}
	if v := strings.TrimSpace(filters.Action); v != "" {
		query = query.Where("action = ?", v)
	}
	if v := strings.TrimSpace(filters.TargetKind); v != "" {
		query = query.Where("target_kind = ?", v)
	}
	if filters.Since != nil {
		query = query.Where("created_at >= ?", *filters.Since)
	}
	if filters.Until != nil {
		query = query.Where("created_at <= ?", *filters.Until)
	}
	return query
}
