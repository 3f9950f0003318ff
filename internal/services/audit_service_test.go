package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/quayside/tradeledger/internal/database/testutil"
	"github.com/quayside/tradeledger/internal/models"
)

func newAuditFixture(t *testing.T) (*AuditService, *gorm.DB) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewAuditService(db)
	require.NoError(t, err)
	return svc, db
}

func TestAuditRecordPersistsEntry(t *testing.T) {
	svc, db := newAuditFixture(t)
	ctx := context.Background()

	actor := "11111111-1111-1111-1111-111111111111"
	svc.Record(ctx, AuditEntry{
		UserID:     &actor,
		Username:   "trader",
		Action:     AuditActionLogin,
		TargetKind: "user",
		TargetID:   actor,
		Summary:    "successful login",
		Changes:    map[string]any{"ip": "203.0.113.9"},
		IPAddress:  "203.0.113.9",
		UserAgent:  "test-agent",
	})

	var stored models.AuditLog
	require.NoError(t, db.Take(&stored).Error)
	require.Equal(t, AuditActionLogin, stored.Action)
	require.NotNil(t, stored.UserID)
	require.Equal(t, actor, *stored.UserID)
	require.NotEmpty(t, stored.Changes)
}

func TestAuditEntrySurvivesActorDeletion(t *testing.T) {
	svc, db := newAuditFixture(t)
	ctx := context.Background()

	user := models.User{Username: "ghost", Email: "ghost@example.com", Password: "x", IsActive: true}
	require.NoError(t, db.Create(&user).Error)

	svc.Record(ctx, AuditEntry{
		UserID:   &user.ID,
		Username: user.Username,
		Action:   AuditActionLogin,
	})

	require.NoError(t, db.Unscoped().Delete(&user).Error)

	var stored models.AuditLog
	require.NoError(t, db.Take(&stored).Error)
	require.NotNil(t, stored.UserID)
	require.Equal(t, user.ID, *stored.UserID)
	require.Equal(t, "ghost", stored.Username)
}

func TestAuditRecordWithoutActor(t *testing.T) {
	svc, db := newAuditFixture(t)

	svc.Record(context.Background(), AuditEntry{
		Action:    AuditActionLoginFailed,
		Summary:   "unknown identifier",
		IPAddress: "203.0.113.9",
	})

	var stored models.AuditLog
	require.NoError(t, db.Take(&stored).Error)
	require.Nil(t, stored.UserID)
}

func TestAuditRecordSwallowsInvalidEntries(t *testing.T) {
	svc, db := newAuditFixture(t)

	// Missing action fails persistence but does not panic or bubble up.
	svc.Record(context.Background(), AuditEntry{Summary: "no action"})

	var count int64
	require.NoError(t, db.Model(&models.AuditLog{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestAuditListFiltersAndPaginates(t *testing.T) {
	svc, _ := newAuditFixture(t)
	ctx := context.Background()

	actor := "11111111-1111-1111-1111-111111111111"
	for i := 0; i < 3; i++ {
		svc.Record(ctx, AuditEntry{UserID: &actor, Action: AuditActionLogin})
	}
	svc.Record(ctx, AuditEntry{Action: AuditActionLoginFailed})

	logs, total, err := svc.List(ctx, AuditListOptions{
		Filters: AuditFilters{Action: AuditActionLogin},
	})
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, logs, 3)

	logs, total, err = svc.List(ctx, AuditListOptions{Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.Equal(t, int64(4), total)
	require.Len(t, logs, 2)
}

func TestAuditCleanupOlderThan(t *testing.T) {
	svc, db := newAuditFixture(t)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return now })

	old := models.AuditLog{Action: AuditActionLogin, CreatedAt: now.AddDate(0, 0, -200)}
	recent := models.AuditLog{Action: AuditActionLogin, CreatedAt: now.AddDate(0, 0, -10)}
	require.NoError(t, db.Create(&old).Error)
	require.NoError(t, db.Create(&recent).Error)

	removed, err := svc.CleanupOlderThan(ctx, 180)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	var count int64
	require.NoError(t, db.Model(&models.AuditLog{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	_, err = svc.CleanupOlderThan(ctx, 0)
	require.Error(t, err)
}
