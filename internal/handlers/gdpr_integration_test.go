package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quayside/tradeledger/internal/handlers/testutil"
	"github.com/quayside/tradeledger/internal/models"
)

func TestConsentLifecycle(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("open-sesame-long")
	require.Equal(t, http.StatusOK, env.Login(user.Username, "open-sesame-long").Code)

	rec := env.Do(http.MethodPost, "/api/gdpr/consents", map[string]any{
		"consent_type": "marketing",
		"given":        true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// Withdrawing updates the same record.
	rec = env.Do(http.MethodPost, "/api/gdpr/consents", map[string]any{
		"consent_type": "marketing",
		"given":        false,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var count int64
	require.NoError(t, env.DB.Model(&models.ConsentRecord{}).Where("user_id = ?", user.ID).Count(&count).Error)
	require.Equal(t, int64(1), count)

	rec = env.Do(http.MethodGet, "/api/gdpr/consents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "marketing")
}

func TestConsentUnknownTypeRejected(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("open-sesame-long")
	require.Equal(t, http.StatusOK, env.Login(user.Username, "open-sesame-long").Code)

	rec := env.Do(http.MethodPost, "/api/gdpr/consents", map[string]any{
		"consent_type": "telepathy",
		"given":        true,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDataExport(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("open-sesame-long")
	require.Equal(t, http.StatusOK, env.Login(user.Username, "open-sesame-long").Code)

	rec := env.Do(http.MethodGet, "/api/gdpr/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Data struct {
			User struct {
				ID string `json:"id"`
			} `json:"user"`
			AuditTrail []models.AuditLog `json:"audit_trail"`
		} `json:"data"`
	}
	env.DecodeBody(rec, &payload)
	require.Equal(t, user.ID, payload.Data.User.ID)
	// The login beforehand is part of the trail.
	require.NotEmpty(t, payload.Data.AuditTrail)

	// Exporting is itself audited.
	var entry models.AuditLog
	require.NoError(t, env.DB.Take(&entry, "action = ?", "DATA_EXPORT").Error)
}
