package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog is an append-only record of a security-relevant action. The
// actor reference is nullable so entries outlive deleted users.
type AuditLog struct {
	ID string `gorm:"primaryKey;type:uuid" json:"id"`

	// UserID is a weak reference: no foreign key, so entries keep their
	// actor id after the user row is gone. Username is denormalised for
	// the same reason.
	UserID   *string `gorm:"type:uuid;index:idx_audit_user_time" json:"user_id"`
	Username string  `json:"username"`

	Action     string `gorm:"not null;index:idx_audit_action_time" json:"action"`
	TargetKind string `gorm:"index:idx_audit_target" json:"target_kind"`
	TargetID   string `gorm:"index:idx_audit_target" json:"target_id"`
	Summary    string `json:"summary"`

	Changes datatypes.JSON `json:"changes,omitempty"`

	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`

	CreatedAt time.Time `gorm:"index:idx_audit_user_time;index:idx_audit_action_time" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
