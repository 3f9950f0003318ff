package services

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/quayside/tradeledger/internal/database/testutil"
	"github.com/quayside/tradeledger/internal/models"
)

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.MustOpenTestDB(t, testutil.WithAutoMigrate(), testutil.WithSeedData())
}

func createTestUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()

	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: "hashed",
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)

	profile := &models.UserProfile{UserID: user.ID, Timezone: "UTC", Language: "en"}
	require.NoError(t, db.Create(profile).Error)
	user.Profile = profile
	return user
}

func createTestCounterparty(t *testing.T, db *gorm.DB, code string) *models.Counterparty {
	t.Helper()

	cp := &models.Counterparty{Name: "Acme Trading " + code, Code: code, IsActive: true, IsCustomer: true}
	require.NoError(t, db.Create(cp).Error)
	return cp
}

func createTestCommodity(t *testing.T, db *gorm.DB, name string) *models.Commodity {
	t.Helper()

	commodity := &models.Commodity{ShortName: name, FullName: name + " (bulk)", Group: "grain", IsActive: true}
	require.NoError(t, db.Create(commodity).Error)
	return commodity
}

func firstCurrency(t *testing.T, db *gorm.DB) *models.Currency {
	t.Helper()

	var currency models.Currency
	require.NoError(t, db.Order("code").Take(&currency).Error)
	return &currency
}
