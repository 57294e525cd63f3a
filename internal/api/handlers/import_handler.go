package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aegis-proxy/aegis/internal/caddy"
	"github.com/aegis-proxy/aegis/internal/importer"
)

// ImportHandler handles engine-config import operations: upload a document,
// review conflicts, commit with resolutions.
type ImportHandler struct {
	service *importer.Service
}

// NewImportHandler creates a new import handler.
func NewImportHandler(db *gorm.DB, reloader ReloadTrigger) *ImportHandler {
	return &ImportHandler{
		service: importer.NewService(db, reloader),
	}
}

// RegisterRoutes registers import-related routes.
func (h *ImportHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/import/preview", h.Preview)
	router.POST("/import/commit", h.Commit)
	router.DELETE("/import/cancel/:uuid", h.Cancel)
}

// Preview parses an uploaded document and stages a conflict preview.
func (h *ImportHandler) Preview(c *gin.Context) {
	var req struct {
		Content  string `json:"content" binding:"required"`
		Filename string `json:"filename"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, preview, err := h.service.Preview(c.Request.Context(), []byte(req.Content), req.Filename)
	if err != nil {
		var verr *caddy.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session": gin.H{
			"uuid":   session.UUID,
			"status": session.Status,
		},
		"preview":   preview,
		"conflicts": preview.Conflicts(),
	})
}

// Commit applies the user's resolutions and triggers one reload for the
// whole batch.
func (h *ImportHandler) Commit(c *gin.Context) {
	var req struct {
		SessionUUID string            `json:"session_uuid" binding:"required"`
		Resolutions map[string]string `json:"resolutions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	applied, err := h.service.CommitImport(c.Request.Context(), req.SessionUUID, req.Resolutions)
	if err != nil {
		switch {
		case errors.Is(err, importer.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, caddy.ErrConflictUnresolved):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "applied": applied})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"applied": applied})
}

// Cancel discards a pending import session.
func (h *ImportHandler) Cancel(c *gin.Context) {
	if err := h.service.Cancel(c.Request.Context(), c.Param("uuid")); err != nil {
		if errors.Is(err, importer.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "import cancelled"})
}
