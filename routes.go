package main

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/di"
	"github.com/johnnyhall81/clientdining-v1-sub000/internal/metrics"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/config"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/middleware"
	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/telemetry"
)

// newRouter registers every route of the reservation API
func newRouter(cfg *config.Config, container *di.Container) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(telemetry.TracingMiddleware())
	router.Use(requestMetrics())
	router.Use(corsMiddleware(cfg.Server.CORSOrigins))

	// Health check endpoints
	router.GET("/health", container.HealthHandler.Health)
	router.GET("/ready", container.HealthHandler.Ready)

	// Pool usage for monitoring
	if container.DB != nil {
		router.GET("/metrics/db", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"db_pool": container.DB.Stats()})
		})
	}

	// Write-route guards
	writeGuards := []gin.HandlerFunc{}
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(&middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		})
		writeGuards = append(writeGuards, limiter.Middleware())
	}
	if cfg.Idempotency.Enabled && container.Redis != nil {
		idempotencyConfig := middleware.DefaultIdempotencyConfig(container.Redis.Client())
		idempotencyConfig.Required = cfg.Idempotency.Required
		if cfg.Idempotency.TTL > 0 {
			idempotencyConfig.TTL = cfg.Idempotency.TTL
		}
		writeGuards = append(writeGuards, middleware.IdempotencyMiddleware(idempotencyConfig))
	}
	guarded := func(h gin.HandlerFunc) []gin.HandlerFunc {
		return append(slices.Clone(writeGuards), h)
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "ok",
				"version": cfg.App.Version,
				"service": cfg.App.Name,
			})
		})

		// Queue read model is public
		v1.GET("/slots/:id/queue", container.AlertHandler.GetQueue)

		authed := v1.Group("")
		authed.Use(middleware.JWTAuth(&middleware.AuthConfig{Secret: cfg.JWT.Secret}))
		{
			slots := authed.Group("/slots/:id")
			slots.GET("/eligibility", container.ReservationHandler.CheckEligibility)
			slots.POST("/alerts", guarded(container.AlertHandler.RegisterAlert)...)
			slots.DELETE("/alerts", guarded(container.AlertHandler.WithdrawAlert)...)
			slots.GET("/alerts/position", container.AlertHandler.GetPosition)

			bookings := authed.Group("/bookings")
			bookings.POST("", guarded(container.ReservationHandler.Book)...)
			bookings.GET("/:id", container.ReservationHandler.GetBooking)
			bookings.DELETE("/:id", guarded(container.ReservationHandler.CancelBooking)...)

			admin := authed.Group("/admin")
			admin.Use(middleware.RequireRole(middleware.RoleOperator))
			admin.POST("/slots", container.AdminHandler.PublishSlot)
			admin.DELETE("/slots/:id", container.AdminHandler.RemoveSlot)
			admin.POST("/slots/:id/expire", container.AdminHandler.ExpireHold)
			admin.POST("/sweep", container.AdminHandler.TriggerSweep)
			admin.GET("/sweeper/stats", container.AdminHandler.GetSweeperStats)
		}
	}

	return router
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Authorization", "Content-Type", middleware.IdempotencyKeyHeader},
		ExposeHeaders: []string{"Content-Length", "Retry-After", "Idempotent-Replayed"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// requestMetrics records latency per route template
func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordRequestDuration(c.Request.Context(), c.Request.Method+" "+route, time.Since(start).Seconds())
	}
}
