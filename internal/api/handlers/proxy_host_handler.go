package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aegis-proxy/aegis/internal/models"
	"github.com/aegis-proxy/aegis/internal/services"
)

// ReloadTrigger requests one compile-and-apply cycle downstream.
type ReloadTrigger interface {
	Trigger(ctx context.Context) error
}

// ProxyHostHandler handles CRUD and bulk operations for proxy hosts.
type ProxyHostHandler struct {
	service  *services.ProxyHostService
	bulk     *services.BulkService
	reloader ReloadTrigger
}

// NewProxyHostHandler creates a new proxy host handler.
func NewProxyHostHandler(db *gorm.DB, reloader ReloadTrigger) *ProxyHostHandler {
	return &ProxyHostHandler{
		service:  services.NewProxyHostService(db),
		bulk:     services.NewBulkService(db, reloader),
		reloader: reloader,
	}
}

// RegisterRoutes registers proxy host routes.
func (h *ProxyHostHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/proxy-hosts", h.List)
	router.POST("/proxy-hosts", h.Create)
	router.GET("/proxy-hosts/:uuid", h.Get)
	router.PUT("/proxy-hosts/:uuid", h.Update)
	router.DELETE("/proxy-hosts/:uuid", h.Delete)
	router.POST("/proxy-hosts/test", h.TestConnection)
	router.POST("/proxy-hosts/bulk-acl", h.BulkApplyACL)
	router.POST("/proxy-hosts/bulk-flags", h.BulkToggleFlags)
}

// List retrieves all proxy hosts.
func (h *ProxyHostHandler) List(c *gin.Context) {
	hosts, err := h.service.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, hosts)
}

// Get retrieves one proxy host.
func (h *ProxyHostHandler) Get(c *gin.Context) {
	host, err := h.service.GetByUUID(c.Param("uuid"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "proxy host not found"})
		return
	}
	c.JSON(http.StatusOK, host)
}

// Create creates a new proxy host and triggers a reload.
func (h *ProxyHostHandler) Create(c *gin.Context) {
	var host models.ProxyHost
	if err := c.ShouldBindJSON(&host); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.Create(&host); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.reload(c); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply configuration: " + err.Error()})
		return
	}

	c.JSON(http.StatusCreated, host)
}

// Update saves changes to an existing proxy host and triggers a reload.
func (h *ProxyHostHandler) Update(c *gin.Context) {
	existing, err := h.service.GetByUUID(c.Param("uuid"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "proxy host not found"})
		return
	}

	var host models.ProxyHost
	if err := c.ShouldBindJSON(&host); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	host.ID = existing.ID
	host.UUID = existing.UUID

	if err := h.service.Update(&host); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.reload(c); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply configuration: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, host)
}

// Delete removes a proxy host and triggers a reload.
func (h *ProxyHostHandler) Delete(c *gin.Context) {
	host, err := h.service.GetByUUID(c.Param("uuid"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "proxy host not found"})
		return
	}

	if err := h.service.Delete(host.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.reload(c); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply configuration: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "proxy host deleted"})
}

// TestConnection checks if an upstream target is reachable.
func (h *ProxyHostHandler) TestConnection(c *gin.Context) {
	var req struct {
		ForwardHost string `json:"forward_host" binding:"required"`
		ForwardPort int    `json:"forward_port" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.TestConnection(req.ForwardHost, req.ForwardPort); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "connection successful"})
}

// BulkApplyACL attaches or detaches an access list on many hosts at once.
// A nil access_list_id detaches.
func (h *ProxyHostHandler) BulkApplyACL(c *gin.Context) {
	var req struct {
		HostIDs      []uint `json:"host_ids" binding:"required"`
		AccessListID *uint  `json:"access_list_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.bulk.BulkApplyACL(c.Request.Context(), req.HostIDs, req.AccessListID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrAccessListNotFound) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error(), "updated": result.Updated, "errors": result.Errors})
		return
	}

	c.JSON(http.StatusOK, result)
}

// BulkToggleFlags toggles feature flags on many hosts at once.
func (h *ProxyHostHandler) BulkToggleFlags(c *gin.Context) {
	var req struct {
		HostIDs []uint               `json:"host_ids" binding:"required"`
		Flags   services.FlagChanges `json:"flags"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.bulk.BulkToggleFlags(c.Request.Context(), req.HostIDs, req.Flags)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "updated": result.Updated, "errors": result.Errors})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *ProxyHostHandler) reload(c *gin.Context) error {
	if h.reloader == nil {
		return nil
	}
	return h.reloader.Trigger(c.Request.Context())
}
