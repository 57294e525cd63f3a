package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/aegis-proxy/aegis/internal/api/handlers"
	"github.com/aegis-proxy/aegis/internal/api/middleware"
	"github.com/aegis-proxy/aegis/internal/metrics"
	"github.com/aegis-proxy/aegis/internal/services"
)

// Deps carries the shared components the route handlers need.
type Deps struct {
	DB       *gorm.DB
	Reloader handlers.ReloadTrigger
	Engine   handlers.EnginePinger
	Rulesets *services.RulesetService
	Verbose  bool
}

// Register wires up middleware and API routes.
func Register(router *gin.Engine, deps Deps) {
	router.Use(middleware.RequestID(), middleware.RequestLogger(), middleware.Recovery(deps.Verbose))

	registry := prometheus.NewRegistry()
	metrics.Register(registry)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")

	handlers.NewHealthHandler(deps.DB, deps.Engine).RegisterRoutes(api)
	handlers.NewProxyHostHandler(deps.DB, deps.Reloader).RegisterRoutes(api)
	handlers.NewAccessListHandler(deps.DB, deps.Reloader).RegisterRoutes(api)
	handlers.NewSecurityHandler(deps.DB, deps.Rulesets, deps.Reloader).RegisterRoutes(api)
	handlers.NewImportHandler(deps.DB, deps.Reloader).RegisterRoutes(api)
}
