package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/quayside/tradeledger/internal/models"
)

// Consent types the API accepts.
const (
	ConsentTypeRegistration = "registration"
	ConsentTypeMarketing    = "marketing"
	ConsentTypeAnalytics    = "analytics"
)

const exportAuditLimit = 100

// ConsentDecision is a single submitted consent choice.
type ConsentDecision struct {
	UserID      string
	ConsentType string
	Given       bool
	IPAddress   string
	UserAgent   string
}

// DataExport bundles everything stored about one user.
type DataExport struct {
	ExportedAt time.Time              `json:"exported_at"`
	User       *models.User           `json:"user"`
	Consents   []models.ConsentRecord `json:"consents"`
	AuditTrail []models.AuditLog      `json:"audit_trail"`
}

// GDPRService manages consent records and personal data exports.
type GDPRService struct {
	db    *gorm.DB
	audit *AuditService
	now   func() time.Time
}

// NewGDPRService constructs a GDPRService.
func NewGDPRService(db *gorm.DB, audit *AuditService) (*GDPRService, error) {
	if db == nil {
		return nil, errors.New("gdpr service: db is required")
	}
	if audit == nil {
		return nil, errors.New("gdpr service: audit service is required")
	}
	return &GDPRService{db: db, audit: audit, now: time.Now}, nil
}

// WithClock overrides the time source, for tests.
func (s *GDPRService) WithClock(now func() time.Time) *GDPRService {
	s.now = now
	return s
}

// Decide records a consent choice. One row exists per (user, consent
// type); repeating a decision updates that row in place.
func (s *GDPRService) Decide(ctx context.Context, decision ConsentDecision) (*models.ConsentRecord, error) {
	ctx = ensureContext(ctx)

	consentType := strings.ToLower(strings.TrimSpace(decision.ConsentType))
	switch consentType {
	case ConsentTypeRegistration, ConsentTypeMarketing, ConsentTypeAnalytics:
	default:
		return nil, fmt.Errorf("gdpr service: unknown consent type %q", decision.ConsentType)
	}
	if strings.TrimSpace(decision.UserID) == "" {
		return nil, errors.New("gdpr service: user id is required")
	}

	now := s.now()
	record := models.ConsentRecord{
		UserID:      decision.UserID,
		ConsentType: consentType,
		Given:       decision.Given,
		IPAddress:   strings.TrimSpace(decision.IPAddress),
		UserAgent:   decision.UserAgent,
		DecidedAt:   now,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "consent_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"given", "ip_address", "user_agent", "decided_at", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return nil, fmt.Errorf("gdpr service: save consent: %w", err)
	}

	if consentType == ConsentTypeMarketing {
		if err := s.db.WithContext(ctx).
			Model(&models.UserProfile{}).
			Where("user_id = ?", decision.UserID).
			Update("marketing_consent", decision.Given).Error; err != nil {
			return nil, fmt.Errorf("gdpr service: sync profile consent: %w", err)
		}
	}

	s.audit.Record(ctx, AuditEntry{
		UserID:     &record.UserID,
		Action:     AuditActionConsentUpdate,
		TargetKind: "consent",
		TargetID:   consentType,
		Summary:    fmt.Sprintf("consent %s set to %t", consentType, decision.Given),
		IPAddress:  decision.IPAddress,
		UserAgent:  decision.UserAgent,
	})

	// Reload so callers see the merged row, not just the insert payload.
	var stored models.ConsentRecord
	if err := s.db.WithContext(ctx).
		Take(&stored, "user_id = ? AND consent_type = ?", decision.UserID, consentType).Error; err != nil {
		return nil, fmt.Errorf("gdpr service: reload consent: %w", err)
	}
	return &stored, nil
}

// ListForUser returns all consent decisions a user has made.
func (s *GDPRService) ListForUser(ctx context.Context, userID string) ([]models.ConsentRecord, error) {
	ctx = ensureContext(ctx)

	var records []models.ConsentRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("consent_type").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("gdpr service: list consents: %w", err)
	}
	return records, nil
}

// Export assembles the full personal data package for a user and leaves
// an audit entry for the export itself.
func (s *GDPRService) Export(ctx context.Context, userID, ipAddress, userAgent string) (*DataExport, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).
		Preload("Profile").
		Take(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("gdpr service: user %s not found", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("gdpr service: load user: %w", err)
	}

	consents, err := s.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	trail, err := s.audit.RecentForUser(ctx, userID, exportAuditLimit)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEntry{
		UserID:    &user.ID,
		Username:  user.Username,
		Action:    AuditActionDataExport,
		Summary:   "personal data export generated",
		IPAddress: ipAddress,
		UserAgent: userAgent,
	})

	return &DataExport{
		ExportedAt: s.now(),
		User:       &user,
		Consents:   consents,
		AuditTrail: trail,
	}, nil
}
