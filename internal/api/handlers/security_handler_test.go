package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/aegis-proxy/aegis/internal/models"
	"github.com/aegis-proxy/aegis/internal/services"
)

func setupSecurityRouter(t *testing.T) (*gin.Engine, *gorm.DB, *countingTrigger) {
	t.Helper()
	db := setupTestDB(t)
	trigger := &countingTrigger{}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	api := router.Group("/api/v1")
	NewSecurityHandler(db, services.NewRulesetService(db, trigger), trigger).RegisterRoutes(api)

	return router, db, trigger
}

func TestSecurityHandler_GetDefaultConfig(t *testing.T) {
	router, _, _ := setupSecurityRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/security/config", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var cfg models.SecurityConfig
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	assert.False(t, cfg.Enabled, "no stored row yields a zero config")
}

func TestSecurityHandler_UpdateConfig(t *testing.T) {
	router, db, trigger := setupSecurityRouter(t)

	w := doJSON(t, router, http.MethodPut, "/api/v1/security/config", map[string]interface{}{
		"enabled":  true,
		"waf_mode": "block",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(1), trigger.count)

	var stored models.SecurityConfig
	require.NoError(t, db.First(&stored).Error)
	assert.True(t, stored.Enabled)
	assert.Equal(t, "block", stored.WAFMode)
}

func TestSecurityHandler_UpdateConfigInvalidMode(t *testing.T) {
	router, _, trigger := setupSecurityRouter(t)

	w := doJSON(t, router, http.MethodPut, "/api/v1/security/config", map[string]interface{}{
		"waf_mode": "paranoid",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, trigger.count)
}

func TestSecurityHandler_BreakGlass(t *testing.T) {
	router, db, _ := setupSecurityRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/security/break-glass", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Token, 48)

	var stored models.SecurityConfig
	require.NoError(t, db.First(&stored).Error)
	assert.NotEmpty(t, stored.BreakGlassHash)
	assert.NotContains(t, w.Body.String(), stored.BreakGlassHash)
}

func TestSecurityHandler_Rulesets(t *testing.T) {
	router, _, trigger := setupSecurityRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/security/rulesets", map[string]interface{}{
		"name":    "owasp-crs",
		"mode":    "block",
		"content": "SecRuleEngine On\n",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(1), trigger.count)

	w = doJSON(t, router, http.MethodGet, "/api/v1/security/rulesets", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var rulesets []models.SecurityRuleSet
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rulesets))
	require.Len(t, rulesets, 1)

	w = doJSON(t, router, http.MethodDelete, "/api/v1/security/rulesets/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodDelete, "/api/v1/security/rulesets/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSecurityHandler_SaveRulesetEmpty(t *testing.T) {
	router, _, _ := setupSecurityRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/security/rulesets", map[string]interface{}{
		"name": "empty",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
