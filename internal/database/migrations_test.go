package database

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quayside/tradeledger/internal/models"
)

func TestAutoMigrateAndSeed(t *testing.T) {
	db, err := Open(Config{Driver: "sqlite"})
	require.NoError(t, err)

	require.NoError(t, AutoMigrateAndSeed(db))

	var count int64
	require.NoError(t, db.Model(&models.Currency{}).Count(&count).Error)
	require.EqualValues(t, 3, count)

	// Seeding is idempotent.
	require.NoError(t, SeedData(db))
	require.NoError(t, db.Model(&models.Currency{}).Count(&count).Error)
	require.EqualValues(t, 3, count)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
}
