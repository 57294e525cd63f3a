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
)

const importDocument = `{
  "apps": {
    "http": {
      "servers": {
        "srv0": {
          "listen": [":80"],
          "routes": [
            {
              "match": [{"host": ["imported.example.com"]}],
              "handle": [{"handler": "reverse_proxy", "upstreams": [{"dial": "10.1.1.1:8080"}]}]
            }
          ]
        }
      }
    }
  }
}`

func setupImportRouter(t *testing.T) (*gin.Engine, *gorm.DB, *countingTrigger) {
	t.Helper()
	db := setupTestDB(t)
	trigger := &countingTrigger{}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	api := router.Group("/api/v1")
	NewImportHandler(db, trigger).RegisterRoutes(api)

	return router, db, trigger
}

func TestImportHandler_PreviewAndCommit(t *testing.T) {
	router, db, trigger := setupImportRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/import/preview", map[string]interface{}{
		"content":  importDocument,
		"filename": "caddy.json",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var preview struct {
		Session struct {
			UUID   string `json:"uuid"`
			Status string `json:"status"`
		} `json:"session"`
		Conflicts []string `json:"conflicts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &preview))
	assert.Equal(t, "pending", preview.Session.Status)
	assert.Empty(t, preview.Conflicts)

	w = doJSON(t, router, http.MethodPost, "/api/v1/import/commit", map[string]interface{}{
		"session_uuid": preview.Session.UUID,
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(1), trigger.count)

	var host models.ProxyHost
	require.NoError(t, db.Where("domain_names = ?", "imported.example.com").First(&host).Error)
	assert.Equal(t, "10.1.1.1", host.ForwardHost)
}

func TestImportHandler_CommitUnresolvedConflict(t *testing.T) {
	router, db, trigger := setupImportRouter(t)

	require.NoError(t, db.Create(&models.ProxyHost{
		UUID:          "existing-1",
		DomainNames:   "imported.example.com",
		ForwardScheme: "http",
		ForwardHost:   "old.internal",
		ForwardPort:   9000,
		Enabled:       true,
	}).Error)

	w := doJSON(t, router, http.MethodPost, "/api/v1/import/preview", map[string]interface{}{
		"content": importDocument,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var preview struct {
		Session struct {
			UUID string `json:"uuid"`
		} `json:"session"`
		Conflicts []string `json:"conflicts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &preview))
	assert.Len(t, preview.Conflicts, 1)

	w = doJSON(t, router, http.MethodPost, "/api/v1/import/commit", map[string]interface{}{
		"session_uuid": preview.Session.UUID,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Zero(t, trigger.count)
}

func TestImportHandler_PreviewBadDocument(t *testing.T) {
	router, _, _ := setupImportRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/import/preview", map[string]interface{}{
		"content": "not json",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportHandler_CommitUnknownSession(t *testing.T) {
	router, _, _ := setupImportRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/import/commit", map[string]interface{}{
		"session_uuid": "missing",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestImportHandler_Cancel(t *testing.T) {
	router, db, _ := setupImportRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/import/preview", map[string]interface{}{
		"content": importDocument,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var preview struct {
		Session struct {
			UUID string `json:"uuid"`
		} `json:"session"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &preview))

	w = doJSON(t, router, http.MethodDelete, "/api/v1/import/cancel/"+preview.Session.UUID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var session models.ImportSession
	require.NoError(t, db.Where("uuid = ?", preview.Session.UUID).First(&session).Error)
	assert.Equal(t, "cancelled", session.Status)
}
