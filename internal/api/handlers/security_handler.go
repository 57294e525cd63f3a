package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aegis-proxy/aegis/internal/models"
	"github.com/aegis-proxy/aegis/internal/services"
)

// SecurityHandler exposes the global security settings and WAF rulesets.
type SecurityHandler struct {
	security *services.SecurityService
	rulesets *services.RulesetService
	reloader ReloadTrigger
}

// NewSecurityHandler creates a new security handler.
func NewSecurityHandler(db *gorm.DB, rulesets *services.RulesetService, reloader ReloadTrigger) *SecurityHandler {
	return &SecurityHandler{
		security: services.NewSecurityService(db),
		rulesets: rulesets,
		reloader: reloader,
	}
}

// RegisterRoutes registers security routes.
func (h *SecurityHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/security/config", h.GetConfig)
	router.PUT("/security/config", h.UpdateConfig)
	router.POST("/security/break-glass", h.GenerateBreakGlass)
	router.GET("/security/rulesets", h.ListRulesets)
	router.POST("/security/rulesets", h.SaveRuleset)
	router.DELETE("/security/rulesets/:id", h.DeleteRuleset)
	router.POST("/security/rulesets/refresh", h.RefreshRulesets)
}

// GetConfig returns the singleton security config.
func (h *SecurityHandler) GetConfig(c *gin.Context) {
	cfg, err := h.security.Get()
	if err != nil {
		if errors.Is(err, services.ErrSecurityConfigNotFound) {
			c.JSON(http.StatusOK, models.SecurityConfig{})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// UpdateConfig saves the security config and triggers a reload.
func (h *SecurityHandler) UpdateConfig(c *gin.Context) {
	var cfg models.SecurityConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.security.Upsert(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.reloader != nil {
		if err := h.reloader.Trigger(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply configuration: " + err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, cfg)
}

// GenerateBreakGlass mints a break-glass token. Returned exactly once.
func (h *SecurityHandler) GenerateBreakGlass(c *gin.Context) {
	token, err := h.security.GenerateBreakGlassToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// ListRulesets returns all WAF rulesets.
func (h *SecurityHandler) ListRulesets(c *gin.Context) {
	rulesets, err := h.rulesets.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rulesets)
}

// SaveRuleset creates or updates a ruleset and triggers a reload.
func (h *SecurityHandler) SaveRuleset(c *gin.Context) {
	var rs models.SecurityRuleSet
	if err := c.ShouldBindJSON(&rs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.rulesets.Save(&rs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.reloader != nil {
		if err := h.reloader.Trigger(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply configuration: " + err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, rs)
}

// DeleteRuleset removes a ruleset and triggers a reload.
func (h *SecurityHandler) DeleteRuleset(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if err := h.rulesets.Delete(uint(id)); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrRulesetNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	if h.reloader != nil {
		if err := h.reloader.Trigger(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply configuration: " + err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "ruleset deleted"})
}

// RefreshRulesets re-downloads rulesets with a source URL immediately.
func (h *SecurityHandler) RefreshRulesets(c *gin.Context) {
	changed, err := h.rulesets.RefreshAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "changed": changed})
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed})
}
