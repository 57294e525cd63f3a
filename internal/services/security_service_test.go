package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aegis-proxy/aegis/internal/models"
)

func TestSecurityService_GetMissing(t *testing.T) {
	svc := NewSecurityService(testDB(t))
	_, err := svc.Get()
	require.ErrorIs(t, err, ErrSecurityConfigNotFound)
}

func TestSecurityService_UpsertCreatesSingleton(t *testing.T) {
	db := testDB(t)
	svc := NewSecurityService(db)

	cfg := &models.SecurityConfig{Enabled: true, WAFMode: "block"}
	require.NoError(t, svc.Upsert(cfg))
	require.NotEmpty(t, cfg.UUID)

	// A second upsert updates the same row.
	cfg2 := &models.SecurityConfig{Enabled: true, WAFMode: "detect"}
	require.NoError(t, svc.Upsert(cfg2))
	require.Equal(t, cfg.UUID, cfg2.UUID)

	var count int64
	require.NoError(t, db.Model(&models.SecurityConfig{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestSecurityService_UpsertValidation(t *testing.T) {
	svc := NewSecurityService(testDB(t))

	require.ErrorIs(t, svc.Upsert(&models.SecurityConfig{WAFMode: "paranoid"}), ErrInvalidWAFMode)
	require.ErrorIs(t, svc.Upsert(&models.SecurityConfig{AdminWhitelist: "not-a-cidr"}), ErrInvalidAdminCIDR)
	require.NoError(t, svc.Upsert(&models.SecurityConfig{AdminWhitelist: "10.0.0.0/8, 192.168.1.1"}))
}

func TestSecurityService_UpsertPreservesSecrets(t *testing.T) {
	db := testDB(t)
	svc := NewSecurityService(db)

	require.NoError(t, svc.Upsert(&models.SecurityConfig{
		Enabled:        true,
		CrowdSecAPIKey: "secret-key",
	}))
	token, err := svc.GenerateBreakGlassToken()
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// An update without secrets keeps the stored ones.
	require.NoError(t, svc.Upsert(&models.SecurityConfig{Enabled: true, WAFMode: "block"}))

	var stored models.SecurityConfig
	require.NoError(t, db.First(&stored).Error)
	require.Equal(t, "secret-key", stored.CrowdSecAPIKey)
	require.NotEmpty(t, stored.BreakGlassHash)
	require.NoError(t, svc.VerifyBreakGlassToken(token))
}

func TestSecurityService_BreakGlass(t *testing.T) {
	svc := NewSecurityService(testDB(t))

	token, err := svc.GenerateBreakGlassToken()
	require.NoError(t, err)
	require.Len(t, token, 48, "24 random bytes hex encoded")

	require.NoError(t, svc.VerifyBreakGlassToken(token))
	require.ErrorIs(t, svc.VerifyBreakGlassToken("wrong"), ErrBreakGlassInvalid)

	// Generating a new token invalidates the old one.
	token2, err := svc.GenerateBreakGlassToken()
	require.NoError(t, err)
	require.NoError(t, svc.VerifyBreakGlassToken(token2))
	require.ErrorIs(t, svc.VerifyBreakGlassToken(token), ErrBreakGlassInvalid)
}
