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

// AccessListHandler handles CRUD operations for access lists.
type AccessListHandler struct {
	service  *services.AccessListService
	reloader ReloadTrigger
}

// NewAccessListHandler creates a new access list handler.
func NewAccessListHandler(db *gorm.DB, reloader ReloadTrigger) *AccessListHandler {
	return &AccessListHandler{
		service:  services.NewAccessListService(db),
		reloader: reloader,
	}
}

// RegisterRoutes registers access list routes.
func (h *AccessListHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/access-lists", h.List)
	router.POST("/access-lists", h.Create)
	router.GET("/access-lists/:uuid", h.Get)
	router.PUT("/access-lists/:uuid", h.Update)
	router.DELETE("/access-lists/:id", h.Delete)
}

// List retrieves all access lists.
func (h *AccessListHandler) List(c *gin.Context) {
	acls, err := h.service.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, acls)
}

// Get retrieves one access list.
func (h *AccessListHandler) Get(c *gin.Context) {
	acl, err := h.service.GetByUUID(c.Param("uuid"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "access list not found"})
		return
	}
	c.JSON(http.StatusOK, acl)
}

// Create creates a new access list and triggers a reload.
func (h *AccessListHandler) Create(c *gin.Context) {
	var acl models.AccessList
	if err := c.ShouldBindJSON(&acl); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.Create(&acl); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.reloader != nil {
		if err := h.reloader.Trigger(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply configuration: " + err.Error()})
			return
		}
	}

	c.JSON(http.StatusCreated, acl)
}

// Update saves changes to an existing access list and triggers a reload.
func (h *AccessListHandler) Update(c *gin.Context) {
	existing, err := h.service.GetByUUID(c.Param("uuid"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "access list not found"})
		return
	}

	var acl models.AccessList
	if err := c.ShouldBindJSON(&acl); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	acl.ID = existing.ID
	acl.UUID = existing.UUID

	if err := h.service.Update(&acl); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.reloader != nil {
		if err := h.reloader.Trigger(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply configuration: " + err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, acl)
}

// Delete removes an access list and triggers a reload.
func (h *AccessListHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if err := h.service.Delete(uint(id)); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, services.ErrAccessListNotFound):
			status = http.StatusNotFound
		case errors.Is(err, services.ErrAccessListInUse):
			status = http.StatusConflict
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

	c.JSON(http.StatusOK, gin.H{"message": "access list deleted"})
}
