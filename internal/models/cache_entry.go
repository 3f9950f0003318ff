package models

import "time"

// CacheEntry backs the database-backed counter store used for shared
// rate limiting when no external cache is deployed.
type CacheEntry struct {
	Key       string    `gorm:"primaryKey;column:key"`
	Value     []byte    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
