package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aegis-proxy/aegis/internal/models"
)

type countingTrigger struct {
	count int32
}

func (c *countingTrigger) Trigger(ctx context.Context) error {
	atomic.AddInt32(&c.count, 1)
	return nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.ProxyHost{},
		&models.AccessList{},
		&models.Certificate{},
		&models.SecurityConfig{},
		&models.SecurityRuleSet{},
		&models.ImportSession{},
	))
	return db
}

func setupProxyHostRouter(t *testing.T) (*gin.Engine, *gorm.DB, *countingTrigger) {
	t.Helper()
	db := setupTestDB(t)
	trigger := &countingTrigger{}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	api := router.Group("/api/v1")
	NewProxyHostHandler(db, trigger).RegisterRoutes(api)

	return router, db, trigger
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestProxyHostHandler_CreateTriggersReload(t *testing.T) {
	router, db, trigger := setupProxyHostRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/proxy-hosts", map[string]interface{}{
		"name":           "App",
		"domain_names":   "app.example.com",
		"forward_scheme": "http",
		"forward_host":   "10.0.0.5",
		"forward_port":   3000,
		"enabled":        true,
	})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, int32(1), trigger.count)

	var count int64
	require.NoError(t, db.Model(&models.ProxyHost{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestProxyHostHandler_CreateInvalid(t *testing.T) {
	router, _, trigger := setupProxyHostRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/proxy-hosts", map[string]interface{}{
		"domain_names": "app.example.com",
		"forward_host": "",
		"forward_port": 0,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, trigger.count, "invalid input must not reload")
}

func TestProxyHostHandler_GetUpdateDelete(t *testing.T) {
	router, db, trigger := setupProxyHostRouter(t)

	host := models.ProxyHost{
		UUID:          "host-1",
		DomainNames:   "app.example.com",
		ForwardScheme: "http",
		ForwardHost:   "10.0.0.5",
		ForwardPort:   3000,
		Enabled:       true,
	}
	require.NoError(t, db.Create(&host).Error)

	w := doJSON(t, router, http.MethodGet, "/api/v1/proxy-hosts/host-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/proxy-hosts/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodPut, "/api/v1/proxy-hosts/host-1", map[string]interface{}{
		"domain_names":   "app.example.com",
		"forward_scheme": "http",
		"forward_host":   "10.0.0.9",
		"forward_port":   4000,
		"enabled":        true,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var updated models.ProxyHost
	require.NoError(t, db.Where("uuid = ?", "host-1").First(&updated).Error)
	assert.Equal(t, "10.0.0.9", updated.ForwardHost)

	w = doJSON(t, router, http.MethodDelete, "/api/v1/proxy-hosts/host-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(2), trigger.count, "update and delete each reload once")

	var count int64
	require.NoError(t, db.Model(&models.ProxyHost{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestProxyHostHandler_BulkToggleFlags(t *testing.T) {
	router, db, trigger := setupProxyHostRouter(t)

	for _, name := range []string{"a", "b"} {
		require.NoError(t, db.Create(&models.ProxyHost{
			UUID:          name,
			DomainNames:   name + ".example.com",
			ForwardScheme: "http",
			ForwardHost:   "10.0.0.5",
			ForwardPort:   3000,
			Enabled:       true,
		}).Error)
	}

	w := doJSON(t, router, http.MethodPost, "/api/v1/proxy-hosts/bulk-flags", map[string]interface{}{
		"host_ids": []uint{1, 2, 999},
		"flags":    map[string]interface{}{"block_exploits": true},
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var result struct {
		Updated int `json:"updated"`
		Errors  []struct {
			HostID uint `json:"host_id"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 2, result.Updated)
	assert.Len(t, result.Errors, 1)
	assert.Equal(t, uint(999), result.Errors[0].HostID)
	assert.Equal(t, int32(1), trigger.count, "one reload for the whole batch")
}

func TestProxyHostHandler_BulkApplyACLUnknownList(t *testing.T) {
	router, db, trigger := setupProxyHostRouter(t)

	require.NoError(t, db.Create(&models.ProxyHost{
		UUID:          "a",
		DomainNames:   "a.example.com",
		ForwardScheme: "http",
		ForwardHost:   "10.0.0.5",
		ForwardPort:   3000,
		Enabled:       true,
	}).Error)

	w := doJSON(t, router, http.MethodPost, "/api/v1/proxy-hosts/bulk-acl", map[string]interface{}{
		"host_ids":       []uint{1},
		"access_list_id": 4242,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, trigger.count)
}
