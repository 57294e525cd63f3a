package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// EnginePinger checks engine admin API reachability.
type EnginePinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports service and engine health.
type HealthHandler struct {
	db     *gorm.DB
	engine EnginePinger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(db *gorm.DB, engine EnginePinger) *HealthHandler {
	return &HealthHandler{db: db, engine: engine}
}

// RegisterRoutes registers health routes.
func (h *HealthHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/health", h.Health)
}

// Health reports store and engine reachability.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	dbOK := true
	if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		dbOK = false
		status = http.StatusServiceUnavailable
	}

	engineOK := true
	if h.engine != nil {
		if err := h.engine.Ping(ctx); err != nil {
			engineOK = false
		}
	}

	c.JSON(status, gin.H{
		"database": dbOK,
		"engine":   engineOK,
	})
}
