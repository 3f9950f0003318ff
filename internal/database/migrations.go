package database

import (
	"errors"

	"gorm.io/gorm"

	"github.com/quayside/tradeledger/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.UserProfile{},
		&models.ConsentRecord{},
		&models.AuditLog{},
		&models.RevokedToken{},
		&models.CacheEntry{},
		&models.Counterparty{},
		&models.Commodity{},
		&models.Currency{},
		&models.Contract{},
	)
}

// SeedData inserts reference data required on a fresh installation.
func SeedData(db *gorm.DB) error {
	currencies := []models.Currency{
		{Code: "USD", Name: "US Dollar", Symbol: "$"},
		{Code: "EUR", Name: "Euro", Symbol: "€"},
		{Code: "GBP", Name: "Pound Sterling", Symbol: "£"},
	}

	for _, currency := range currencies {
		if err := db.Where(models.Currency{Code: currency.Code}).
			Attrs(currency).
			FirstOrCreate(&models.Currency{}).Error; err != nil {
			return err
		}
	}

	return nil
}

// AutoMigrateAndSeed convenience helper used during application start-up.
func AutoMigrateAndSeed(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	if err := AutoMigrate(db); err != nil {
		return err
	}

	return SeedData(db)
}
