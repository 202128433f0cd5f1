package api

import (
	"log"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codeteki/outreach/internal/engine"
	"github.com/codeteki/outreach/internal/metrics"
	"github.com/codeteki/outreach/internal/stores/crm"
	"github.com/codeteki/outreach/pkg/utils"

	crm_module "github.com/codeteki/outreach/internal/api/modules/crm"
	health_module "github.com/codeteki/outreach/internal/api/modules/health"
	tracking_module "github.com/codeteki/outreach/internal/api/modules/tracking"
	webhooks_module "github.com/codeteki/outreach/internal/api/modules/webhooks"
)

// NewRouter builds the gin engine with every module registered. Split from
// Start so tests can drive the router with httptest.
func NewRouter(cfg *utils.Config, store crm.StoreInterface, eng *engine.Engine) *gin.Engine {
	router := gin.Default()

	// Add trusted proxies
	router.SetTrustedProxies(nil)

	// Add CORS using gin-contrib/cors (https://github.com/gin-contrib/cors for documentation)
	router.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(cfg.GetWithDefault("CORS_ALLOWED_ORIGINS", "*"), ","),
		AllowMethods:     []string{"OPTIONS", "GET", "POST", "PATCH", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "X-API-KEY"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.Use(metrics.Middleware())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Base group '/api' for all API routes
	baseGroup := router.Group("/api")

	// Adding custom modules
	health_module.RegisterRoutes(baseGroup)

	crm_module.Init(store, eng)
	crm_module.RegisterRoutes(baseGroup, cfg.Get("API_KEY"))

	webhooks_module.Init(store, eng)
	webhooks_module.RegisterRoutes(baseGroup)

	tracking_module.Init(store)
	tracking_module.RegisterRoutes(baseGroup)

	return router
}

// Start runs the API server until it fails
func Start(cfg *utils.Config, store crm.StoreInterface, eng *engine.Engine) {
	port := cfg.GetWithDefault("API_PORT", "8080")

	router := NewRouter(cfg, store, eng)

	if err := router.Run(":" + port); err != nil {
		log.Fatal("[API-MAIN]: Failed to start server: ", err)
	}
}
