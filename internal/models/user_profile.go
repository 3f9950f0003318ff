package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserProfile carries contact details, consent bookkeeping, and the
// per-identity lockout state. Exactly one profile exists per user.
type UserProfile struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"type:uuid;uniqueIndex;not null" json:"-"`

	Phone    string `json:"phone"`
	Company  string `json:"company"`
	Position string `json:"position"`
	Timezone string `gorm:"default:UTC" json:"timezone"`
	Language string `gorm:"default:en" json:"language"`

	GDPRConsent      bool       `gorm:"default:false" json:"gdpr_consent"`
	GDPRConsentAt    *time.Time `json:"gdpr_consent_at"`
	MarketingConsent bool       `gorm:"default:false" json:"marketing_consent"`

	MFAEnabled bool `gorm:"default:false" json:"mfa_enabled"`

	// Lockout state. FailedAttempts resets to zero on any successful
	// authentication; LockedUntil blocks logins while in the future.
	FailedAttempts int        `gorm:"default:0" json:"-"`
	LockedUntil    *time.Time `json:"-"`

	LastLoginIP    string     `json:"last_login_ip"`
	LastActivityAt *time.Time `json:"last_activity_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *UserProfile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
