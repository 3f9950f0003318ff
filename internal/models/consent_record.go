package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConsentRecord tracks a single consent decision per (user, consent type).
// Re-submitting the same consent type updates the existing row.
type ConsentRecord struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"type:uuid;not null;uniqueIndex:idx_consent_user_type" json:"-"`

	ConsentType string `gorm:"not null;uniqueIndex:idx_consent_user_type" json:"consent_type"`
	Given       bool   `gorm:"default:false" json:"given"`

	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	DecidedAt time.Time `json:"decided_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *ConsentRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
