package models

import "time"

// RevokedToken is a denylist entry for a refresh token identifier. The
// jti is the primary key so a concurrent second insert of the same token
// fails at the storage layer, which is what makes rotation atomic.
type RevokedToken struct {
	JTI       string    `gorm:"primaryKey" json:"jti"`
	UserID    string    `gorm:"type:uuid;index" json:"user_id"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
